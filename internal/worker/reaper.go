package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yourorg/pulse/internal/queue"
	"github.com/yourorg/pulse/internal/ratelimit"
)

// reaperLockKey is the Postgres advisory lock key for reaper election. Only
// one reaper runs across all worker processes at a time.
const reaperLockKey = int64(0x50554C53)

// sweepInterval is how often the winning reaper sweeps for stale claims and
// silent workers. Purging old terminal jobs runs on its own, longer cadence.
const sweepInterval = 30 * time.Second

// ReaperConfig controls the periodic maintenance pass.
type ReaperConfig struct {
	RetentionDays int
	PurgeInterval time.Duration
	// RequeueStale recovers processing jobs whose claim lease expired
	// (crashed worker). When false such jobs stay processing until an
	// operator intervenes.
	RequeueStale bool
}

// RunReaper competes for the advisory lock and runs the maintenance loop on
// the winner. The lock is held on a dedicated connection so it auto-releases
// if the process dies. Losers retry the election every 10 seconds.
func RunReaper(ctx context.Context, pool *pgxpool.Pool, q *queue.Queue,
	gate *ratelimit.Gate, cfg ReaperConfig, logger *slog.Logger) {
	if cfg.PurgeInterval <= 0 {
		cfg.PurgeInterval = time.Hour
	}
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := pool.Acquire(ctx)
		if err != nil {
			logger.Error("reaper: acquire failed", "err", err)
			sleepCtx(ctx, 5*time.Second)
			continue
		}

		var won bool
		err = conn.QueryRow(ctx,
			`SELECT pg_try_advisory_lock($1)`, reaperLockKey).Scan(&won)
		if err != nil || !won {
			conn.Release()
			sleepCtx(ctx, 10*time.Second)
			continue
		}

		logger.Info("reaper: won election")
		runReaperLoop(ctx, pool, q, gate, cfg, logger)
		releaseReaperLock(conn, logger)
	}
}

// releaseReaperLock drops the advisory lock before handing the session back
// to the pool. Without the explicit unlock the lock would ride along on the
// pooled session and block re-election from any other connection. Runs on a
// fresh context because the loop usually exits with ctx already canceled.
func releaseReaperLock(conn *pgxpool.Conn, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, reaperLockKey); err != nil {
		logger.Warn("reaper: advisory unlock failed", "err", err)
	}
	conn.Release()
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// runReaperLoop sweeps every sweepInterval and exits when ctx is canceled or
// a sweep hits a storage error (dropping back to the election loop, so a
// healthy peer can take over).
func runReaperLoop(ctx context.Context, pool *pgxpool.Pool, q *queue.Queue,
	gate *ratelimit.Gate, cfg ReaperConfig, logger *slog.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	lastPurge := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if cfg.RequeueStale {
				requeued, err := q.RequeueStale(ctx, 500)
				if err != nil {
					logger.Error("reaper: stale requeue failed", "err", err)
					return
				}
				for _, j := range requeued {
					logger.Info("reaper: requeued stale job",
						"job_id", j.ID, "job_type", j.Type)
				}
				releaseGateSlots(ctx, gate, requeued, logger)
			}

			markSilentWorkersDead(ctx, pool, logger)

			if time.Since(lastPurge) >= cfg.PurgeInterval {
				n, err := q.PurgeOld(ctx, cfg.RetentionDays)
				if err != nil {
					logger.Error("reaper: purge failed", "err", err)
					return
				}
				if n > 0 {
					logger.Info("reaper: purged old jobs",
						"count", n,
						"retention_days", cfg.RetentionDays)
				}
				lastPurge = time.Now()
			}
		}
	}
}

// releaseGateSlots frees the concurrency-gate tokens of jobs recovered from
// expired claims. A worker that died between acquiring its slot and the
// deferred release leaves the job's token in the inflight set with no TTL;
// left there it occupies a slot forever, and the requeued job itself can end
// up blocked on its own stale token.
func releaseGateSlots(ctx context.Context, gate *ratelimit.Gate,
	jobs []queue.StaleJob, logger *slog.Logger) {
	if gate == nil {
		return
	}
	for _, j := range jobs {
		if err := gate.Release(ctx, j.Type, j.ID.String()); err != nil {
			logger.Warn("reaper: gate release failed",
				"job_id", j.ID, "job_type", j.Type, "err", err)
		}
	}
}

// markSilentWorkersDead flags workers with no heartbeat for 30 seconds.
// Informational only — job recovery rides on claim-lease expiry, not on
// worker status.
func markSilentWorkersDead(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) {
	tag, err := pool.Exec(ctx, `
		UPDATE workers SET status = 'dead'
		WHERE status = 'active'
		  AND last_heartbeat < NOW() - interval '30 seconds'`)
	if err != nil {
		logger.Error("reaper: dead worker sweep failed", "err", err)
		return
	}
	if tag.RowsAffected() > 0 {
		logger.Info("reaper: marked workers dead", "count", tag.RowsAffected())
	}
}
