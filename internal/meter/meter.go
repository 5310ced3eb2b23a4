// Package meter aggregates per-provider, per-service daily usage: call
// counts, token counts, and estimated cost. Increment is a single atomic
// upsert so concurrent callers — job workers and request handlers hitting
// the same (date, provider, service) bucket all day — never lose an update.
package meter

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Meter provides idempotent usage accumulation over a shared Postgres pool.
type Meter struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Meter {
	return &Meter{pool: pool}
}

// Entry is one usage increment. Zero-value accumulator fields are valid and
// add nothing.
type Entry struct {
	Date          time.Time // truncated to the day
	Provider      string
	Service       string
	UsageCount    int64
	TokensUsed    int64
	EstimatedCost decimal.Decimal
}

// incrementSQL is the whole correctness story of this package: insert the
// bucket row if absent, otherwise add the increments to the stored
// accumulators — in one statement, so a read-modify-write race cannot occur.
const incrementSQL = `
INSERT INTO usage_records (usage_date, provider, service, usage_count, tokens_used, estimated_cost)
VALUES ($1, $2, $3, $4, $5, $6::numeric)
ON CONFLICT (usage_date, provider, service) DO UPDATE SET
	usage_count    = usage_records.usage_count    + EXCLUDED.usage_count,
	tokens_used    = usage_records.tokens_used    + EXCLUDED.tokens_used,
	estimated_cost = usage_records.estimated_cost + EXCLUDED.estimated_cost,
	updated_at     = NOW()`

// Increment records one unit of metered work against the entry's
// (date, provider, service) bucket, creating the bucket on first use.
func (m *Meter) Increment(ctx context.Context, e Entry) error {
	if e.Provider == "" || e.Service == "" {
		return fmt.Errorf("provider and service are required")
	}
	date := e.Date
	if date.IsZero() {
		date = time.Now()
	}
	_, err := m.pool.Exec(ctx, incrementSQL,
		date.Format("2006-01-02"), e.Provider, e.Service,
		e.UsageCount, e.TokensUsed, e.EstimatedCost.String())
	if err != nil {
		return fmt.Errorf("increment usage %s/%s: %w", e.Provider, e.Service, err)
	}
	return nil
}
