package ratelimit

import "fmt"

func limitKey(jobType string) string {
	return fmt.Sprintf("pulse:jobtype:%s:concurrency_limit", jobType)
}

func inflightKey(jobType string) string {
	return fmt.Sprintf("pulse:jobtype:%s:inflight", jobType)
}
