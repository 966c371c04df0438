package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"shop-ingest/internal/adapter/http/dto"
	"shop-ingest/internal/app"
	"shop-ingest/internal/service"

	"github.com/spf13/cobra"
)

func (c *cli) webhooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhooks",
		Short: "Register webhooks and sign test payloads",
	}

	var tenant, baseURL string
	register := &cobra.Command{
		Use:   "register",
		Short: "Subscribe a tenant's shop to the ingestion topics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, err := parseUUIDFlag("tenant", tenant)
			if err != nil {
				return err
			}
			if baseURL == "" {
				baseURL = c.cfg.Server.PublicURL
			}
			return c.withApp(cmd, func(a *app.App) error {
				topics, err := a.TenantSvc.RegisterWebhooks(cmd.Context(), tenantID, baseURL)
				if topics == nil {
					topics = []string{}
				}
				if perr := printJSON(cmd.OutOrStdout(), dto.RegisterWebhooksResponse{OK: err == nil, Topics: topics}); perr != nil {
					return perr
				}
				return err
			})
		},
	}
	register.Flags().StringVar(&tenant, "tenant", "", "tenant id")
	register.Flags().StringVar(&baseURL, "base-url", "", "public base URL (default server.public_url)")

	var file, secret string
	sign := &cobra.Command{
		Use:   "sign",
		Short: "Print the X-Shopify-Hmac-Sha256 value for a payload",
		Long:  "Reads the payload from --file, or stdin when --file is empty or \"-\".",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				secret = c.cfg.Webhook.Secret
			}
			if secret == "" {
				return errors.New("no secret: pass --secret or set webhook.secret")
			}

			var body []byte
			var err error
			if file == "" || file == "-" {
				body, err = io.ReadAll(cmd.InOrStdin())
			} else {
				body, err = os.ReadFile(file)
			}
			if err != nil {
				return fmt.Errorf("reading payload: %w", err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), service.NewHMACWebhookSigner().Sign(secret, body))
			return err
		},
	}
	sign.Flags().StringVar(&file, "file", "", "payload file")
	sign.Flags().StringVar(&secret, "secret", "", "signing secret (default webhook.secret)")

	cmd.AddCommand(register, sign)
	return cmd
}
