package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourorg/pulse/internal/queue"
)

func newEnqueueCmd() *cobra.Command {
	var (
		payload    string
		priority   int
		maxRetries int
		delay      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "enqueue <job-type>",
		Short: "Submit a job to the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !json.Valid([]byte(payload)) {
				return fmt.Errorf("payload is not valid JSON")
			}

			pool, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			opts := queue.EnqueueOptions{
				Type:       args[0],
				Payload:    []byte(payload),
				Priority:   &priority,
				MaxRetries: &maxRetries,
			}
			if delay > 0 {
				opts.Delay = &delay
			}

			id, err := queue.New(pool, 0).Enqueue(cmd.Context(), opts)
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}

	cmd.Flags().StringVar(&payload, "payload", "{}", "job payload as JSON")
	cmd.Flags().IntVar(&priority, "priority", 5, "priority, higher runs first")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 3, "retry ceiling")
	cmd.Flags().DurationVar(&delay, "delay", 0, "defer execution by this duration")
	return cmd
}
