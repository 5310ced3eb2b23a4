package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// PurgeOld deletes terminal jobs whose completed_at is older than
// retentionDays. Pending and processing jobs are never touched regardless of
// age. Returns the number of rows removed.
func (q *Queue) PurgeOld(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays < 0 {
		return 0, fmt.Errorf("retention days must be >= 0")
	}
	tag, err := q.pool.Exec(ctx, `
		DELETE FROM jobs
		WHERE status IN ('completed', 'failed')
		  AND completed_at < NOW() - ($1 * interval '1 day')`,
		retentionDays)
	if err != nil {
		return 0, fmt.Errorf("purge old jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// StaleJob identifies one job recovered from an expired claim. The job type
// rides along so the reaper can free the job's concurrency-gate slot — a
// crashed worker never runs its deferred gate release.
type StaleJob struct {
	ID   uuid.UUID
	Type string
}

// RequeueStale returns processing jobs whose claim lease has expired to
// pending so another worker can claim them. This recovers jobs abandoned by
// a crashed worker; an actively running handler keeps its lease fresh via
// ExtendClaim and is never touched.
//
// FOR UPDATE SKIP LOCKED keeps the reaper from blocking on a row a worker is
// concurrently updating. limit bounds work per sweep.
func (q *Queue) RequeueStale(ctx context.Context, limit int) ([]StaleJob, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := q.pool.Query(ctx, `
		WITH stale AS (
			SELECT id, job_type FROM jobs
			WHERE status = 'processing'
			  AND claim_expires_at < NOW()
			ORDER BY claim_expires_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE jobs SET
			status           = 'pending',
			scheduled_at     = clock_timestamp() + interval '1 second',
			started_at       = NULL,
			claimed_by       = NULL,
			claim_expires_at = NULL,
			updated_at       = NOW()
		FROM stale
		WHERE jobs.id = stale.id
		RETURNING stale.id, stale.job_type`, limit)
	if err != nil {
		return nil, fmt.Errorf("requeue stale jobs: %w", err)
	}
	defer rows.Close()

	var requeued []StaleJob
	for rows.Next() {
		var j StaleJob
		if err := rows.Scan(&j.ID, &j.Type); err != nil {
			return requeued, err
		}
		requeued = append(requeued, j)
	}
	return requeued, rows.Err()
}
