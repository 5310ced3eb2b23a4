package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yourorg/pulse/internal/domain"
	"github.com/yourorg/pulse/internal/queue"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job's state, attempts, and last error",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job ID %q: %w", args[0], err)
			}

			pool, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			job, err := queue.New(pool, 0).Get(cmd.Context(), id)
			if err != nil {
				return err
			}

			fmt.Printf("id:           %s\n", job.ID)
			fmt.Printf("type:         %s\n", job.Type)
			fmt.Printf("status:       %s\n", colorStatus(job.Status))
			fmt.Printf("priority:     %d\n", job.Priority)
			fmt.Printf("retries:      %d/%d\n", job.RetryCount, job.MaxRetries)
			fmt.Printf("scheduled_at: %s\n", job.ScheduledAt.Format("2006-01-02 15:04:05 MST"))
			if job.StartedAt != nil {
				fmt.Printf("started_at:   %s\n", job.StartedAt.Format("2006-01-02 15:04:05 MST"))
			}
			if job.CompletedAt != nil {
				fmt.Printf("completed_at: %s\n", job.CompletedAt.Format("2006-01-02 15:04:05 MST"))
			}
			if job.ClaimedBy != nil {
				fmt.Printf("claimed_by:   %s\n", *job.ClaimedBy)
			}
			if job.ErrorMessage != nil {
				fmt.Printf("last error:   %s\n", *job.ErrorMessage)
			}
			return nil
		},
	}
}

func colorStatus(s domain.JobStatus) string {
	switch s {
	case domain.StatusCompleted:
		return color.GreenString(string(s))
	case domain.StatusFailed:
		return color.RedString(string(s))
	case domain.StatusProcessing:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}
