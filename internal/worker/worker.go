// Package worker runs the pull loop that drives the job queue: claim a job,
// dispatch it through the handler registry, and report the outcome back.
// Multiple worker processes run the same loop with no shared memory; all
// coordination happens through the queue's storage-level atomicity.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yourorg/pulse/internal/domain"
	"github.com/yourorg/pulse/internal/queue"
	"github.com/yourorg/pulse/internal/ratelimit"
	"github.com/yourorg/pulse/internal/registry"
)

// JobQueue is the slice of queue behavior the loop needs. *queue.Queue
// satisfies it; tests substitute an in-memory fake.
type JobQueue interface {
	ClaimNext(ctx context.Context, claimedBy string) (*domain.Job, error)
	Complete(ctx context.Context, id uuid.UUID, success bool, errMsg string) (*queue.CompleteResult, error)
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
	Release(ctx context.Context, id uuid.UUID, delay time.Duration) error
	ExtendClaim(ctx context.Context, id uuid.UUID, claimedBy string) (bool, error)
}

// gateReleaseDelay is how far a job is pushed back when its type is at the
// concurrency limit. Short, so capacity freed elsewhere is picked up quickly.
const gateReleaseDelay = 2 * time.Second

type Worker struct {
	ID           uuid.UUID
	Hostname     string
	Queue        JobQueue
	Pool         *pgxpool.Pool // worker registration and heartbeat only
	Registry     *registry.Registry
	Gate         *ratelimit.Gate // nil disables concurrency gating
	Logger       *slog.Logger
	PollInterval time.Duration
	LeaseSeconds int

	startDone     chan struct{}
	startDoneOnce sync.Once
}

func New(
	id uuid.UUID,
	hostname string,
	q JobQueue,
	pool *pgxpool.Pool,
	reg *registry.Registry,
	gate *ratelimit.Gate,
	logger *slog.Logger,
	pollInterval time.Duration,
	leaseSeconds int,
) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if leaseSeconds <= 0 {
		leaseSeconds = 60
	}
	return &Worker{
		ID:           id,
		Hostname:     hostname,
		Queue:        q,
		Pool:         pool,
		Registry:     reg,
		Gate:         gate,
		Logger:       logger,
		PollInterval: pollInterval,
		LeaseSeconds: leaseSeconds,
		startDone:    make(chan struct{}),
	}
}

// Start runs the poll loop until ctx is canceled. Jobs execute synchronously;
// the lease-extension goroutine lives only for the duration of each job.
func (w *Worker) Start(ctx context.Context) {
	defer w.startDoneOnce.Do(func() { close(w.startDone) })

	w.Logger.Info("worker starting",
		"worker_id", w.ID,
		"job_types", w.Registry.Types())

	for {
		if ctx.Err() != nil {
			return
		}

		job, err := w.Queue.ClaimNext(ctx, w.ID.String())
		if err != nil {
			w.Logger.Error("claim error", "err", err)
			w.sleep(ctx)
			continue
		}
		if job == nil {
			w.sleep(ctx)
			continue
		}

		w.runJob(ctx, job)
	}
}

func (w *Worker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.PollInterval):
	}
}

// DrainAndWait blocks until the poll loop exits (usually after ctx
// cancellation) or until the caller's deadline is reached.
func (w *Worker) DrainAndWait(ctx context.Context) error {
	select {
	case <-w.startDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) runJob(ctx context.Context, job *domain.Job) {
	log := w.Logger.With(
		"job_id", job.ID,
		"job_type", job.Type,
		"attempt", job.RetryCount,
	)

	if w.Gate != nil {
		ok, err := w.Gate.Acquire(ctx, job.Type, job.ID.String())
		if err != nil {
			// A broken gate must not stall the queue; run ungated.
			log.Warn("concurrency gate unavailable, running ungated", "err", err)
		} else if !ok {
			log.Info("job type at concurrency limit, releasing claim")
			if err := w.Queue.Release(ctx, job.ID, gateReleaseDelay); err != nil {
				log.Error("release failed", "err", err)
			}
			return
		} else {
			defer func() {
				if err := w.Gate.Release(ctx, job.Type, job.ID.String()); err != nil {
					log.Warn("gate release failed", "err", err)
				}
			}()
		}
	}

	handler, err := w.Registry.Lookup(job.Type)
	if err != nil {
		// Unknown type is a deployment misconfiguration; retrying on this
		// worker cannot succeed.
		log.Error("unknown job type, marking failed", "err", err)
		if markErr := w.Queue.MarkFailed(ctx, job.ID, err.Error()); markErr != nil {
			w.logTransitionFailure(log, "mark failed", markErr)
		}
		return
	}

	log.Info("job started")
	result := w.execute(ctx, job, handler, log)

	switch result.outcome {
	case outcomeAbandoned:
		// Shutdown mid-execution: leave the job processing so the lease
		// expiry path hands it to another worker.
		log.Info("job abandoned due to shutdown")

	case outcomeFatal:
		if err := w.Queue.MarkFailed(ctx, job.ID, result.err.Error()); err != nil {
			w.logTransitionFailure(log, "mark failed", err)
			return
		}
		log.Warn("job failed permanently", "err", result.err, "fatal", true)

	case outcomeFailed:
		res, err := w.Queue.Complete(ctx, job.ID, false, result.err.Error())
		if err != nil {
			w.logTransitionFailure(log, "complete", err)
			return
		}
		if res.Status == domain.StatusFailed {
			log.Warn("job failed permanently",
				"err", result.err,
				"retry_count", res.RetryCount)
		} else {
			log.Warn("job failed, will retry",
				"err", result.err,
				"retry_count", res.RetryCount,
				"next_run_at", res.NextRunAt)
		}

	case outcomeCompleted:
		if _, err := w.Queue.Complete(ctx, job.ID, true, ""); err != nil {
			w.logTransitionFailure(log, "complete", err)
			return
		}
		log.Info("job completed")
	}
}

// logTransitionFailure distinguishes duplicate execution (a worker-loop bug
// worth shouting about) from plain storage errors.
func (w *Worker) logTransitionFailure(log *slog.Logger, op string, err error) {
	if errors.Is(err, queue.ErrAlreadyTerminal) {
		log.Error("duplicate terminal transition, possible double execution",
			"op", op, "err", err)
		return
	}
	log.Error("transition failed", "op", op, "err", err)
}
