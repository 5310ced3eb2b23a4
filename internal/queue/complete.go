package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/yourorg/pulse/internal/domain"
)

// CompleteResult reports the transition Complete performed.
type CompleteResult struct {
	Status     domain.JobStatus
	RetryCount int
	// NextRunAt is the retry schedule when Status is pending; meaningless
	// for terminal outcomes.
	NextRunAt time.Time
}

const completeSQL = `
UPDATE jobs SET
	status           = 'completed',
	completed_at     = NOW(),
	started_at       = NULL,
	claimed_by       = NULL,
	claim_expires_at = NULL,
	updated_at       = NOW()
WHERE id = $1 AND status = 'processing'
RETURNING status, retry_count, scheduled_at`

// failSQL applies the failure transition in one statement: the retry counter
// increments, and the CASE branches pick retry (back to pending with
// exponential backoff) or terminal failure once the ceiling is reached. The
// backoff is 2^retry_count minutes of the post-increment count, with the
// exponent capped to keep the shift in range.
const failSQL = `
UPDATE jobs SET
	retry_count      = retry_count + 1,
	status           = CASE WHEN retry_count + 1 >= max_retries
	                        THEN 'failed' ELSE 'pending' END,
	scheduled_at     = CASE WHEN retry_count + 1 >= max_retries
	                        THEN scheduled_at
	                        ELSE NOW() + interval '1 minute' * (1::bigint << LEAST(retry_count + 1, 20)) END,
	completed_at     = CASE WHEN retry_count + 1 >= max_retries
	                        THEN NOW() ELSE NULL END,
	started_at       = NULL,
	error_message    = $2,
	claimed_by       = NULL,
	claim_expires_at = NULL,
	updated_at       = NOW()
WHERE id = $1 AND status = 'processing'
RETURNING status, retry_count, scheduled_at`

// Complete finishes an attempt on a processing job and applies the resulting
// transition: completed on success; on failure either a backoff-scheduled
// retry or, once retry_count reaches max_retries, terminal failed.
//
// Calling Complete on a job already in a terminal state returns
// ErrAlreadyTerminal without mutating anything.
func (q *Queue) Complete(ctx context.Context, id uuid.UUID, success bool, errMsg string) (*CompleteResult, error) {
	var row pgx.Row
	if success {
		row = q.pool.QueryRow(ctx, completeSQL, id)
	} else {
		row = q.pool.QueryRow(ctx, failSQL, id, errMsg)
	}

	res := &CompleteResult{}
	var status string
	err := row.Scan(&status, &res.RetryCount, &res.NextRunAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, q.transitionError(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("complete %s: %w", id, err)
	}
	res.Status = domain.JobStatus(status)
	return res, nil
}

// MarkFailed moves a processing job straight to terminal failed regardless of
// remaining retries. Used for fatal handler errors and unknown job types,
// where retrying cannot help.
func (q *Queue) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	tag, err := q.pool.Exec(ctx, `
		UPDATE jobs SET
			status           = 'failed',
			completed_at     = NOW(),
			started_at       = NULL,
			error_message    = $2,
			claimed_by       = NULL,
			claim_expires_at = NULL,
			updated_at       = NOW()
		WHERE id = $1 AND status = 'processing'`, id, errMsg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return q.transitionError(ctx, id)
	}
	return nil
}

// transitionError classifies why a processing-guarded update matched no row.
// Runs only on the failure path, so the extra read does not touch the
// happy-path atomicity guarantee.
func (q *Queue) transitionError(ctx context.Context, id uuid.UUID) error {
	var status string
	err := q.pool.QueryRow(ctx,
		`SELECT status FROM jobs WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	if domain.JobStatus(status).Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, id, status)
	}
	return fmt.Errorf("%w: %s is %s", ErrNotProcessing, id, status)
}
