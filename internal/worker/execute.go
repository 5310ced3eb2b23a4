package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/pulse/internal/domain"
	"github.com/yourorg/pulse/internal/registry"
)

type outcome int

const (
	outcomeCompleted outcome = iota
	outcomeFailed
	outcomeFatal
	outcomeAbandoned
)

type executeResult struct {
	outcome outcome
	err     error
}

// execute runs the handler with a lease extender keeping the claim fresh for
// the duration. A panicking handler is converted into a failed attempt so a
// bad payload cannot take the whole worker down.
func (w *Worker) execute(
	ctx context.Context,
	job *domain.Job,
	handler registry.Handler,
	log *slog.Logger,
) executeResult {
	stop := make(chan struct{})
	go w.extendLease(ctx, job.ID, stop, log)
	defer close(stop)

	handlerErr := runHandler(ctx, handler, job.Payload)

	if ctx.Err() != nil {
		return executeResult{outcome: outcomeAbandoned}
	}
	if handlerErr != nil {
		var fatal *registry.FatalError
		if errors.As(handlerErr, &fatal) {
			return executeResult{outcome: outcomeFatal, err: handlerErr}
		}
		return executeResult{outcome: outcomeFailed, err: handlerErr}
	}
	return executeResult{outcome: outcomeCompleted}
}

func runHandler(ctx context.Context, handler registry.Handler, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(ctx, payload)
}

// extendLease refreshes the claim every LeaseSeconds/3 so the reaper does not
// requeue a job that is still actively running. It stops on its own when the
// extension is fenced out, which means the lease already expired and another
// worker may own the job now.
func (w *Worker) extendLease(
	ctx context.Context,
	jobID uuid.UUID,
	stop <-chan struct{},
	log *slog.Logger,
) {
	interval := time.Duration(w.LeaseSeconds) * time.Second / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			extended, err := w.Queue.ExtendClaim(ctx, jobID, w.ID.String())
			if err != nil {
				log.Warn("lease extension failed", "err", err)
				continue
			}
			if !extended {
				log.Warn("lease extension fenced, stopping extender")
				return
			}
		}
	}
}
