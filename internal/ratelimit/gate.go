// Package ratelimit bounds how many jobs of a given type run concurrently
// across the whole worker fleet, using a Redis SET per job type. Jobs over
// the limit are released back to the queue with a short delay rather than
// executed, which keeps a rate-limited downstream (an AI provider, say) from
// being hammered by every worker at once.
package ratelimit

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Gate tracks in-flight executions per job type.
//
// Membership is a SET, not a counter: SREM is idempotent, so a crashed
// worker or a double release can never push the in-flight count negative.
// There is a small window between the capacity check and the SADD where two
// workers can both pass; overshoot is bounded by worker count, which is an
// acceptable trade against scripting complexity.
type Gate struct {
	rc           *redis.Client
	defaultLimit int64
}

// NewGate returns a Gate. defaultLimit applies to job types with no explicit
// limit configured; <= 0 means unlimited by default.
func NewGate(rc *redis.Client, defaultLimit int64) *Gate {
	return &Gate{rc: rc, defaultLimit: defaultLimit}
}

// Acquire reserves an in-flight slot for token under jobType. Returns false
// without reserving when the type is at its limit.
func (g *Gate) Acquire(ctx context.Context, jobType, token string) (bool, error) {
	limit, err := g.Limit(ctx, jobType)
	if err != nil {
		return false, err
	}
	if limit > 0 {
		inflight, err := g.Inflight(ctx, jobType)
		if err != nil {
			return false, err
		}
		if inflight >= limit {
			return false, nil
		}
	}
	if err := g.rc.SAdd(ctx, inflightKey(jobType), token).Err(); err != nil {
		return false, err
	}
	return true, nil
}

// Release frees the slot held by token. Safe to call more than once.
func (g *Gate) Release(ctx context.Context, jobType, token string) error {
	return g.rc.SRem(ctx, inflightKey(jobType), token).Err()
}

// Inflight returns the number of currently reserved slots for jobType.
func (g *Gate) Inflight(ctx context.Context, jobType string) (int64, error) {
	return g.rc.SCard(ctx, inflightKey(jobType)).Result()
}

// Limit returns the concurrency limit for jobType, falling back to the
// gate's default when none is set. 0 means unlimited.
func (g *Gate) Limit(ctx context.Context, jobType string) (int64, error) {
	v, err := g.rc.Get(ctx, limitKey(jobType)).Int64()
	if err == redis.Nil {
		return g.defaultLimit, nil
	}
	return v, err
}

// SetLimit sets an explicit concurrency limit for jobType. 0 removes the
// bound for that type.
func (g *Gate) SetLimit(ctx context.Context, jobType string, limit int64) error {
	return g.rc.Set(ctx, limitKey(jobType), limit, 0).Err()
}
