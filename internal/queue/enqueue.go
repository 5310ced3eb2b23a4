package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnqueueOptions configures a single job submission.
type EnqueueOptions struct {
	Type       string
	Payload    []byte
	Priority   *int           // nil = default 5
	MaxRetries *int           // nil = default 3
	RunAt      *time.Time     // absolute schedule; wins over Delay
	Delay      *time.Duration // relative schedule from now
}

const (
	defaultPriority   = 5
	defaultMaxRetries = 3
)

const insertSQL = `
INSERT INTO jobs (job_type, payload, status, priority, max_retries, scheduled_at)
VALUES ($1, $2, 'pending', $3, $4, $5)
RETURNING id`

// Enqueue inserts a new pending job and returns its ID. Payload shape is the
// handler's concern; an empty payload is stored as an empty JSON object.
func (q *Queue) Enqueue(ctx context.Context, opts EnqueueOptions) (uuid.UUID, error) {
	if opts.Type == "" {
		return uuid.Nil, fmt.Errorf("job type is required")
	}

	priority := defaultPriority
	if opts.Priority != nil {
		priority = *opts.Priority
	}
	maxRetries := defaultMaxRetries
	if opts.MaxRetries != nil {
		if *opts.MaxRetries < 0 {
			return uuid.Nil, fmt.Errorf("max_retries must be >= 0")
		}
		maxRetries = *opts.MaxRetries
	}

	scheduledAt := time.Now()
	if opts.RunAt != nil {
		scheduledAt = *opts.RunAt
	} else if opts.Delay != nil {
		scheduledAt = scheduledAt.Add(*opts.Delay)
	}

	payload := opts.Payload
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}

	var id uuid.UUID
	err := q.pool.QueryRow(ctx, insertSQL,
		opts.Type, payload, priority, maxRetries, scheduledAt,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("enqueue %s: %w", opts.Type, err)
	}
	return id, nil
}
