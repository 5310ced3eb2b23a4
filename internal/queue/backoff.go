package queue

import "time"

// maxBackoffShift caps the exponent so the shift cannot overflow. At 20 the
// delay is already over two years, far past any sane max_retries.
const maxBackoffShift = 20

// Backoff returns the retry delay for a job whose retry_count has just been
// incremented to retryCount: 2^retryCount minutes. The first failure
// (retryCount 1) waits 2 minutes, the second 4, and so on.
//
// The SQL failure transition computes the same expression server-side; this
// function exists for callers and tests that need the schedule in Go.
func Backoff(retryCount int) time.Duration {
	shift := retryCount
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	if shift < 0 {
		shift = 0
	}
	return time.Duration(int64(1)<<shift) * time.Minute
}
