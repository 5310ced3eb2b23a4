// Package queue implements the durable job queue: priority-ordered claims,
// retry with exponential backoff, and terminal-state cleanup. Every operation
// is a single atomic statement (or a single transaction) against Postgres so
// that correctness holds across independent worker processes with no shared
// memory.
package queue

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yourorg/pulse/internal/domain"
)

var (
	// ErrNotFound is returned when the job ID does not exist.
	ErrNotFound = errors.New("job not found")

	// ErrAlreadyTerminal is returned by Complete and MarkFailed when the job
	// is already completed or failed. This indicates duplicate execution in
	// the worker loop and callers should log it loudly.
	ErrAlreadyTerminal = errors.New("job already in terminal state")

	// ErrNotProcessing is returned when a transition requires the job to be
	// in the processing state and it is not.
	ErrNotProcessing = errors.New("job is not processing")
)

// Queue provides the job queue operations over a shared Postgres pool.
type Queue struct {
	pool         *pgxpool.Pool
	leaseSeconds int
}

// New returns a Queue. leaseSeconds bounds how long a claim is considered
// live before the reaper may return the job to pending; values <= 0 fall
// back to 60.
func New(pool *pgxpool.Pool, leaseSeconds int) *Queue {
	if leaseSeconds <= 0 {
		leaseSeconds = 60
	}
	return &Queue{pool: pool, leaseSeconds: leaseSeconds}
}

// Pool exposes the underlying pool for collaborators that read job state
// directly (status CLI, reporting). Mutation must go through Queue methods.
func (q *Queue) Pool() *pgxpool.Pool { return q.pool }

const jobColumns = `
    id, job_type, payload, status, priority, scheduled_at, started_at,
    completed_at, retry_count, max_retries, error_message, claimed_by,
    claim_expires_at, created_at, updated_at`

// scanJob populates a Job from a row selected with jobColumns. The column
// order must match exactly.
func scanJob(row pgx.Row, job *domain.Job) error {
	var status string
	err := row.Scan(
		&job.ID,
		&job.Type,
		&job.Payload,
		&status,
		&job.Priority,
		&job.ScheduledAt,
		&job.StartedAt,
		&job.CompletedAt,
		&job.RetryCount,
		&job.MaxRetries,
		&job.ErrorMessage,
		&job.ClaimedBy,
		&job.ClaimExpiresAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return err
	}
	job.Status = domain.JobStatus(status)
	return nil
}
