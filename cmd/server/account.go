package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cicconel11/TeamNetwork-sub008/internal/gateway"
	"github.com/cicconel11/TeamNetwork-sub008/internal/repository"
	"github.com/cicconel11/TeamNetwork-sub008/pkg/database"
)

func connectAccountCmd() *cobra.Command {
	var (
		orgID   string
		email   string
		country string
	)

	cmd := &cobra.Command{
		Use:   "connect-account",
		Short: "Create a connected account for an organization",
		Long: `Create an express connected account and link it to the organization.

Re-running for the same organization returns the same account: the request
is sent with an idempotency key derived from the organization id.

Examples:
  payments connect-account --organization 6f1c... --email treasurer@club.org
  payments connect-account --organization 6f1c... --country GB`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync()
			if cfg.DatabaseURL == "" || cfg.StripeSecretKey == "" {
				return errors.New("DATABASE_URL and STRIPE_SECRET_KEY are required")
			}

			db, err := database.NewPostgresDB(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			orgs := repository.NewOrganizationRepository(db.DB)
			org, err := orgs.GetByID(ctx, orgID)
			if err != nil {
				return err
			}
			if org.ConnectedAccountID != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already linked to %s\n", org.Slug, org.ConnectedAccountID)
				return nil
			}

			gw := gateway.NewStripeGateway(cfg.StripeSecretKey, gateway.Options{
				Timeout:           cfg.GatewayTimeout,
				MaxNetworkRetries: cfg.StripeMaxRetries,
				Logger:            log,
			})
			account, err := gw.CreateConnectedAccount(ctx, gateway.ConnectedAccountParams{
				IdempotencyKey: "connect-account:" + org.ID,
				Email:          email,
				Country:        country,
				Metadata:       map[string]string{"organization_id": org.ID},
			})
			if err != nil {
				return err
			}
			if err := orgs.SetConnectedAccount(ctx, org.ID, account.AccountID); err != nil {
				return err
			}

			log.Info("connected account linked",
				zap.String("organization_id", org.ID),
				zap.String("account_id", account.AccountID))
			fmt.Fprintf(cmd.OutOrStdout(), "%s linked to %s\n", org.Slug, account.AccountID)
			return nil
		},
	}

	cmd.Flags().StringVar(&orgID, "organization", "", "organization id")
	cmd.Flags().StringVar(&email, "email", "", "account holder email")
	cmd.Flags().StringVar(&country, "country", "", "two-letter country code")
	_ = cmd.MarkFlagRequired("organization")
	return cmd
}
