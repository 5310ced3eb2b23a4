// Package registry maps job_type tags to handler functions. The registry is
// populated at process startup and read-only afterwards, so lookups need no
// locking.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Handler executes one job attempt. A nil return completes the job; an error
// return schedules a retry (or terminal failure once retries are exhausted).
type Handler func(ctx context.Context, payload []byte) error

// ErrUnknownType is wrapped by Lookup for unregistered job types. An unknown
// tag is a configuration error: the job is marked failed and reported, never
// a crash.
var ErrUnknownType = errors.New("unknown job type")

// FatalError wraps a handler error that must not be retried. Returning it
// moves the job straight to terminal failed.
type FatalError struct {
	Cause error
}

func (e *FatalError) Error() string { return e.Cause.Error() }
func (e *FatalError) Unwrap() error { return e.Cause }

// Fatal wraps err so the worker skips remaining retries.
func Fatal(err error) error { return &FatalError{Cause: err} }

type Registry struct {
	handlers map[string]Handler
}

func New() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds jobType to h, replacing any previous binding.
func (r *Registry) Register(jobType string, h Handler) {
	r.handlers[jobType] = h
}

func (r *Registry) Lookup(jobType string) (Handler, error) {
	h, ok := r.handlers[jobType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, jobType)
	}
	return h, nil
}

// Types returns the registered job types in sorted order.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
