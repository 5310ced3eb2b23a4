package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/yourorg/pulse/internal/domain"
)

// Get fetches a job by ID. Read-only; used by status surfaces.
func (q *Queue) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	row := q.pool.QueryRow(ctx,
		`SELECT`+jobColumns+` FROM jobs WHERE id = $1`, id)
	job := &domain.Job{}
	if err := scanJob(row, job); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	return job, nil
}
