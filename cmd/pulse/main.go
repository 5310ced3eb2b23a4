// cmd/pulse/main.go — operator CLI for the pulse job queue and usage meter.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/yourorg/pulse/internal/config"
	"github.com/yourorg/pulse/internal/db"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:           "pulse",
		Short:         "Operate the pulse job queue and usage meter",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default pulse.yaml)")

	root.AddCommand(newEnqueueCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newPurgeCmd())
	root.AddCommand(newUsageCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// connect loads config and opens the database pool shared by all
// subcommands. Callers must Close the returned pool.
func connect(ctx context.Context) (*pgxpool.Pool, error) {
	path := cfgFile
	if path == "" {
		path = os.Getenv("PULSE_CONFIG")
	}
	if path == "" {
		path = "pulse.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return db.Connect(ctx, cfg.DatabaseURL)
}
