package ratelimit

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGate(t *testing.T, defaultLimit int64) *Gate {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rc.Close() })
	return NewGate(rc, defaultLimit)
}

func TestAcquireUpToLimit(t *testing.T) {
	ctx := context.Background()
	g := newTestGate(t, 2)

	ok, err := g.Acquire(ctx, "report", "a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.Acquire(ctx, "report", "b")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.Acquire(ctx, "report", "c")
	require.NoError(t, err)
	assert.False(t, ok, "third acquire should be over the limit of 2")

	n, err := g.Inflight(ctx, "report")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestReleaseFreesSlot(t *testing.T) {
	ctx := context.Background()
	g := newTestGate(t, 1)

	ok, err := g.Acquire(ctx, "report", "a")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = g.Acquire(ctx, "report", "b")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, g.Release(ctx, "report", "a"))

	ok, err = g.Acquire(ctx, "report", "b")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseIdempotent(t *testing.T) {
	ctx := context.Background()
	g := newTestGate(t, 5)

	ok, err := g.Acquire(ctx, "sync", "x")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, g.Release(ctx, "sync", "x"))
	require.NoError(t, g.Release(ctx, "sync", "x"))
	require.NoError(t, g.Release(ctx, "sync", "never-acquired"))

	n, err := g.Inflight(ctx, "sync")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "double release must not go negative")
}

func TestZeroDefaultLimitIsUnlimited(t *testing.T) {
	ctx := context.Background()
	g := newTestGate(t, 0)

	for i := 0; i < 50; i++ {
		ok, err := g.Acquire(ctx, "push", fmt.Sprintf("tok-%d", i))
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestSetLimitOverridesDefault(t *testing.T) {
	ctx := context.Background()
	g := newTestGate(t, 10)

	require.NoError(t, g.SetLimit(ctx, "report", 1))

	limit, err := g.Limit(ctx, "report")
	require.NoError(t, err)
	assert.Equal(t, int64(1), limit)

	// Other types still see the default.
	limit, err = g.Limit(ctx, "sync")
	require.NoError(t, err)
	assert.Equal(t, int64(10), limit)
}

func TestInflightIsPerJobType(t *testing.T) {
	ctx := context.Background()
	g := newTestGate(t, 1)

	ok, err := g.Acquire(ctx, "report", "a")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = g.Acquire(ctx, "sync", "a")
	require.NoError(t, err)
	assert.True(t, ok, "limits are scoped per job type")
}
