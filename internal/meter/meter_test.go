package meter_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/pulse/internal/db"
	"github.com/yourorg/pulse/internal/meter"
	"github.com/yourorg/pulse/internal/migrate"
)

func newTestMeter(t *testing.T) (*meter.Meter, *pgxpool.Pool) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, migrate.Run(ctx, pool, logger))

	_, err = pool.Exec(ctx, `TRUNCATE usage_records`)
	require.NoError(t, err)

	return meter.New(pool), pool
}

type bucket struct {
	usageCount int64
	tokensUsed int64
	cost       decimal.Decimal
}

func readBucket(t *testing.T, pool *pgxpool.Pool, date time.Time, provider, service string) bucket {
	t.Helper()
	var b bucket
	var cost string
	err := pool.QueryRow(context.Background(), `
		SELECT usage_count, tokens_used, estimated_cost::text
		FROM usage_records
		WHERE usage_date = $1 AND provider = $2 AND service = $3`,
		date.Format("2006-01-02"), provider, service,
	).Scan(&b.usageCount, &b.tokensUsed, &cost)
	require.NoError(t, err)
	b.cost = decimal.RequireFromString(cost)
	return b
}

func TestIncrementCreatesBucketLazily(t *testing.T) {
	m, pool := newTestMeter(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	require.NoError(t, m.Increment(ctx, meter.Entry{
		Date:          day,
		Provider:      "anthropic",
		Service:       "health_report",
		UsageCount:    1,
		TokensUsed:    850,
		EstimatedCost: decimal.RequireFromString("0.0214"),
	}))

	b := readBucket(t, pool, day, "anthropic", "health_report")
	assert.Equal(t, int64(1), b.usageCount)
	assert.Equal(t, int64(850), b.tokensUsed)
	assert.True(t, b.cost.Equal(decimal.RequireFromString("0.0214")), "got %s", b.cost)
}

func TestIncrementAccumulatesInPlace(t *testing.T) {
	m, pool := newTestMeter(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, m.Increment(ctx, meter.Entry{
			Date:          day,
			Provider:      "anthropic",
			Service:       "chat",
			UsageCount:    1,
			TokensUsed:    100,
			EstimatedCost: decimal.RequireFromString("0.01"),
		}))
	}

	b := readBucket(t, pool, day, "anthropic", "chat")
	assert.Equal(t, int64(5), b.usageCount)
	assert.Equal(t, int64(500), b.tokensUsed)
	assert.True(t, b.cost.Equal(decimal.RequireFromString("0.05")), "got %s", b.cost)

	// Only one row exists for the key.
	var rows int
	err := pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM usage_records WHERE provider='anthropic' AND service='chat'`,
	).Scan(&rows)
	require.NoError(t, err)
	assert.Equal(t, 1, rows)
}

func TestSeparateKeysSeparateBuckets(t *testing.T) {
	m, pool := newTestMeter(t)
	ctx := context.Background()
	day1 := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	entries := []meter.Entry{
		{Date: day1, Provider: "anthropic", Service: "chat", UsageCount: 1},
		{Date: day2, Provider: "anthropic", Service: "chat", UsageCount: 2},
		{Date: day1, Provider: "onesignal", Service: "chat", UsageCount: 3},
		{Date: day1, Provider: "anthropic", Service: "push", UsageCount: 4},
	}
	for _, e := range entries {
		require.NoError(t, m.Increment(ctx, e))
	}

	assert.Equal(t, int64(1), readBucket(t, pool, day1, "anthropic", "chat").usageCount)
	assert.Equal(t, int64(2), readBucket(t, pool, day2, "anthropic", "chat").usageCount)
	assert.Equal(t, int64(3), readBucket(t, pool, day1, "onesignal", "chat").usageCount)
	assert.Equal(t, int64(4), readBucket(t, pool, day1, "anthropic", "push").usageCount)
}

// TestConcurrentIncrementsLoseNothing is the central correctness property:
// the stored accumulators equal the exact sum of all increments ever issued,
// no matter how many callers race on the same key.
func TestConcurrentIncrementsLoseNothing(t *testing.T) {
	m, pool := newTestMeter(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	const callers = 120
	var wg sync.WaitGroup
	errs := make(chan error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- m.Increment(ctx, meter.Entry{
				Date:          day,
				Provider:      "anthropic",
				Service:       "health_report",
				UsageCount:    1,
				TokensUsed:    10,
				EstimatedCost: decimal.RequireFromString("0.001"),
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	b := readBucket(t, pool, day, "anthropic", "health_report")
	assert.Equal(t, int64(callers), b.usageCount)
	assert.Equal(t, int64(10*callers), b.tokensUsed)
	assert.True(t, b.cost.Equal(decimal.RequireFromString("0.120")), "got %s", b.cost)
}

func TestIncrementRequiresKey(t *testing.T) {
	m, _ := newTestMeter(t)
	ctx := context.Background()

	assert.Error(t, m.Increment(ctx, meter.Entry{Service: "chat"}))
	assert.Error(t, m.Increment(ctx, meter.Entry{Provider: "anthropic"}))
}
