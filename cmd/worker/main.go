// cmd/worker/main.go — worker daemon: claims jobs, dispatches handlers,
// meters provider usage, and participates in reaper election.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	flag "github.com/spf13/pflag"

	"github.com/yourorg/pulse/internal/config"
	"github.com/yourorg/pulse/internal/db"
	"github.com/yourorg/pulse/internal/meter"
	"github.com/yourorg/pulse/internal/migrate"
	"github.com/yourorg/pulse/internal/queue"
	"github.com/yourorg/pulse/internal/ratelimit"
	"github.com/yourorg/pulse/internal/registry"
	"github.com/yourorg/pulse/internal/worker"
)

func main() {
	cfgPath := flag.StringP("config", "c", "", "config file (default pulse.yaml)")
	flag.Parse()
	if *cfgPath == "" {
		*cfgPath = os.Getenv("PULSE_CONFIG")
	}
	if *cfgPath == "" {
		*cfgPath = "pulse.yaml"
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Error("load config failed", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	logger.Info("connecting to database", "url", cfg.DatabaseURL)
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect to database failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := migrate.Run(ctx, pool, logger); err != nil {
		logger.Error("run migrations failed", "err", err)
		os.Exit(1)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("parse redis URL failed", "err", err, "url", cfg.RedisURL)
		os.Exit(1)
	}
	rc := redis.NewClient(redisOpts)
	defer rc.Close()

	logger.Info("connecting to redis", "url", cfg.RedisURL)
	if err := rc.Ping(ctx).Err(); err != nil {
		logger.Error("redis ping failed", "err", err)
		os.Exit(1)
	}

	gate := ratelimit.NewGate(rc, cfg.Concurrency.DefaultLimit)
	for jobType, limit := range cfg.Concurrency.Limits {
		if err := gate.SetLimit(ctx, jobType, limit); err != nil {
			logger.Warn("set concurrency limit failed",
				"job_type", jobType, "err", err)
		}
	}

	q := queue.New(pool, cfg.Worker.LeaseSeconds)
	usage := meter.New(pool)
	reg := registry.New()
	registerHandlers(reg, usage, logger)

	hostname, _ := os.Hostname()
	workerID := uuid.New()

	w := worker.New(workerID, hostname, q, pool, reg, gate, logger,
		cfg.Worker.PollInterval.Std(), cfg.Worker.LeaseSeconds)

	if err := worker.Register(ctx, pool, w); err != nil {
		logger.Error("register worker failed", "err", err)
		os.Exit(1)
	}
	logger.Info("worker registered",
		"worker_id", workerID,
		"hostname", hostname,
		"job_types", reg.Types())

	go w.RunHeartbeat(ctx)
	go worker.RunReaper(ctx, pool, q, gate, worker.ReaperConfig{
		RetentionDays: cfg.Purge.RetentionDays,
		PurgeInterval: cfg.Purge.Interval.Std(),
		RequeueStale:  cfg.Worker.RequeueStale,
	}, logger)

	go w.Start(ctx)

	<-ctx.Done()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer drainCancel()
	if err := w.DrainAndWait(drainCtx); err != nil {
		logger.Warn("shutdown drain timeout; abandoned jobs will be requeued by lease expiry", "err", err)
	}
	logger.Info("shutdown complete")
}

// registerHandlers binds the product job types. Handler bodies talk to the
// actual providers in production; the metering calls are the part that
// matters to the queue core — every metered provider call increments the
// daily usage bucket whether the call succeeded or not, since cost is
// incurred either way.
func registerHandlers(reg *registry.Registry, usage *meter.Meter, logger *slog.Logger) {
	reg.Register("generate_health_report", func(ctx context.Context, payload []byte) error {
		var req struct {
			UserID string `json:"user_id"`
			Model  string `json:"model"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return registry.Fatal(fmt.Errorf("malformed payload: %w", err))
		}
		if req.UserID == "" {
			return registry.Fatal(fmt.Errorf("user_id is required"))
		}

		tokens, cost, genErr := simulateReportGeneration(ctx, req.UserID, req.Model)
		if merr := usage.Increment(ctx, meter.Entry{
			Provider:      "anthropic",
			Service:       "health_report",
			UsageCount:    1,
			TokensUsed:    tokens,
			EstimatedCost: cost,
		}); merr != nil {
			logger.Error("usage increment failed", "err", merr)
		}
		return genErr
	})

	reg.Register("sync_device_data", func(ctx context.Context, payload []byte) error {
		var req struct {
			DeviceID string `json:"device_id"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return registry.Fatal(fmt.Errorf("malformed payload: %w", err))
		}
		if err := simulateDeviceSync(ctx, req.DeviceID); err != nil {
			return err
		}
		return usage.Increment(ctx, meter.Entry{
			Provider:   "terra",
			Service:    "device_sync",
			UsageCount: 1,
		})
	})

	reg.Register("send_push_notification", func(ctx context.Context, payload []byte) error {
		var req struct {
			UserID string `json:"user_id"`
			Title  string `json:"title"`
			Body   string `json:"body"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return registry.Fatal(fmt.Errorf("malformed payload: %w", err))
		}
		if err := simulatePush(ctx, req.UserID, req.Title, req.Body); err != nil {
			return err
		}
		return usage.Increment(ctx, meter.Entry{
			Provider:   "onesignal",
			Service:    "push",
			UsageCount: 1,
		})
	})
}

// The functions below simulate the downstream provider calls. The worker
// binary ships with them so the claim, gate, and metering paths can be run
// end to end without provider credentials; deployments swap in their own
// handlers via registerHandlers.

// simulateReportGeneration stands in for the AI provider call, returning
// representative token and cost figures after a short delay.
func simulateReportGeneration(ctx context.Context, userID, model string) (int64, decimal.Decimal, error) {
	_ = userID
	_ = model
	select {
	case <-ctx.Done():
		return 0, decimal.Zero, ctx.Err()
	case <-time.After(100 * time.Millisecond):
	}
	return 1200, decimal.RequireFromString("0.0342"), nil
}

// simulateDeviceSync stands in for the wearables API call.
func simulateDeviceSync(ctx context.Context, deviceID string) error {
	_ = deviceID
	return ctx.Err()
}

// simulatePush stands in for the push delivery call.
func simulatePush(ctx context.Context, userID, title, body string) error {
	_, _, _ = userID, title, body
	return ctx.Err()
}
