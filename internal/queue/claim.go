package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/yourorg/pulse/internal/domain"
)

// claimSQL atomically selects and locks the single most eligible pending job.
//
// FOR UPDATE SKIP LOCKED is what makes concurrent claims safe: a worker that
// loses the race skips past the locked candidate row instead of blocking, so
// two callers can never both observe the same job as pending. Ordering is
// priority descending, then scheduled_at ascending, so older jobs within a
// priority band are served first.
const claimSQL = `
WITH candidate AS (
    SELECT id FROM jobs
    WHERE status       = 'pending'
      AND scheduled_at <= NOW()
    ORDER BY priority DESC, scheduled_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
)
UPDATE jobs SET
    status           = 'processing',
    started_at       = NOW(),
    claimed_by       = $1,
    claim_expires_at = NOW() + ($2 * interval '1 second'),
    updated_at       = NOW()
FROM candidate
WHERE jobs.id = candidate.id
RETURNING jobs.id, jobs.job_type, jobs.payload, jobs.status, jobs.priority,
    jobs.scheduled_at, jobs.started_at, jobs.completed_at, jobs.retry_count,
    jobs.max_retries, jobs.error_message, jobs.claimed_by,
    jobs.claim_expires_at, jobs.created_at, jobs.updated_at`

// ClaimNext claims the highest-priority eligible pending job for claimedBy
// and returns it in processing state. Returns nil, nil when no job is
// eligible — an empty queue is a normal idle outcome, not an error.
func (q *Queue) ClaimNext(ctx context.Context, claimedBy string) (*domain.Job, error) {
	row := q.pool.QueryRow(ctx, claimSQL, claimedBy, q.leaseSeconds)
	job := &domain.Job{}
	if err := scanJob(row, job); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return job, nil
}

// ExtendClaim refreshes the claim lease on a processing job. Returns false
// when the claim is no longer held by claimedBy (lease expired and the job
// was requeued, or the job reached a terminal state); the caller must stop
// extending in that case.
func (q *Queue) ExtendClaim(ctx context.Context, id uuid.UUID, claimedBy string) (bool, error) {
	tag, err := q.pool.Exec(ctx, `
		UPDATE jobs
		SET claim_expires_at = NOW() + ($1 * interval '1 second'),
		    updated_at       = NOW()
		WHERE id = $2
		  AND status = 'processing'
		  AND claimed_by = $3
		  AND claim_expires_at > NOW()`,
		q.leaseSeconds, id, claimedBy)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Release returns a processing job to pending without consuming a retry.
// scheduled_at is pushed delay into the future. Used when a worker claims a
// job but cannot run it yet (for example the job type is at its concurrency
// limit).
func (q *Queue) Release(ctx context.Context, id uuid.UUID, delay time.Duration) error {
	tag, err := q.pool.Exec(ctx, `
		UPDATE jobs SET
			status           = 'pending',
			scheduled_at     = NOW() + ($1 * interval '1 millisecond'),
			started_at       = NULL,
			claimed_by       = NULL,
			claim_expires_at = NULL,
			updated_at       = NOW()
		WHERE id = $2 AND status = 'processing'`,
		delay.Milliseconds(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return q.transitionError(ctx, id)
	}
	return nil
}
