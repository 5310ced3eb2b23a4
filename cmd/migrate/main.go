// cmd/migrate/main.go — standalone migration runner for deploy pipelines.
package main

import (
	"context"
	"log/slog"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/yourorg/pulse/internal/config"
	"github.com/yourorg/pulse/internal/db"
	"github.com/yourorg/pulse/internal/migrate"
)

func main() {
	cfgPath := flag.StringP("config", "c", "", "config file (default pulse.yaml)")
	flag.Parse()
	if *cfgPath == "" {
		*cfgPath = os.Getenv("PULSE_CONFIG")
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Error("load config failed", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect to database failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := migrate.Run(ctx, pool, logger); err != nil {
		logger.Error("migrate failed", "err", err)
		os.Exit(1)
	}
	logger.Info("migrations up to date")
}
