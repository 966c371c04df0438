package main

import (
	"shop-ingest/internal/adapter/http/dto"
	"shop-ingest/internal/app"
	"shop-ingest/internal/core/domain"

	"github.com/spf13/cobra"
)

func (c *cli) stateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect and reset resource watermarks",
	}

	var tenant, resource string

	list := &cobra.Command{
		Use:   "list",
		Short: "List the watermarks of a tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, err := parseUUIDFlag("tenant", tenant)
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(a *app.App) error {
				states, err := a.Backfill.States(cmd.Context(), tenantID)
				if err != nil {
					return err
				}
				if states == nil {
					states = []domain.BackfillState{}
				}
				return printJSON(cmd.OutOrStdout(), states)
			})
		},
	}
	list.Flags().StringVar(&tenant, "tenant", "", "tenant id")

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Clear a watermark so the next backfill fetches everything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, err := parseUUIDFlag("tenant", tenant)
			if err != nil {
				return err
			}
			r, err := domain.ParseResource(resource)
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(a *app.App) error {
				if err := a.Backfill.ResetState(cmd.Context(), tenantID, r); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), dto.OKResponse{OK: true})
			})
		},
	}
	reset.Flags().StringVar(&tenant, "tenant", "", "tenant id")
	reset.Flags().StringVar(&resource, "resource", "", "products, customers or orders")

	cmd.AddCommand(list, reset)
	return cmd
}
