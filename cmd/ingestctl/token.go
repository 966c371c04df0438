package main

import (
	"errors"
	"time"

	"shop-ingest/internal/app"

	"github.com/spf13/cobra"
)

type tokenOutput struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (c *cli) tokenCmd() *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an operator bearer token for the backfill API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tokens := app.NewTokenService(c.cfg.Auth)
			if tokens == nil {
				return errors.New("auth.jwt_secret is not set")
			}
			tok, exp, err := tokens.Generate(subject)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), tokenOutput{Token: tok, ExpiresAt: exp})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject")
	return cmd
}
