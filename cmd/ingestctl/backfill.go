package main

import (
	"fmt"

	"shop-ingest/internal/adapter/http/dto"
	"shop-ingest/internal/app"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func (c *cli) backfillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Enqueue, inspect and run backfill jobs",
	}

	var tenant string
	enqueue := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue a backfill job for a tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, err := parseUUIDFlag("tenant", tenant)
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(a *app.App) error {
				job, err := a.Backfill.Enqueue(cmd.Context(), tenantID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), dto.EnqueueResponse{OK: true, JobID: job.ID.String()})
			})
		},
	}
	enqueue.Flags().StringVar(&tenant, "tenant", "", "tenant id")

	status := &cobra.Command{
		Use:   "status JOB_ID",
		Short: "Show a job snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id: %w", err)
			}
			return c.withApp(cmd, func(a *app.App) error {
				job, err := a.Backfill.Status(cmd.Context(), jobID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), job)
			})
		},
	}

	poll := &cobra.Command{
		Use:   "poll",
		Short: "Run every queued job once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(a *app.App) error {
				ran := a.NewPoller().Poll(cmd.Context())
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "ran %d job(s)\n", ran)
				return err
			})
		},
	}

	cmd.AddCommand(enqueue, status, poll)
	return cmd
}
