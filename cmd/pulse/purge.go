package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yourorg/pulse/internal/queue"
)

func newPurgeCmd() *cobra.Command {
	var retentionDays int

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete terminal jobs older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			n, err := queue.New(pool, 0).PurgeOld(cmd.Context(), retentionDays)
			if err != nil {
				return err
			}
			fmt.Printf("purged %d jobs older than %d days\n", n, retentionDays)
			return nil
		},
	}

	cmd.Flags().IntVar(&retentionDays, "retention-days", 7, "keep terminal jobs this many days")
	return cmd
}
