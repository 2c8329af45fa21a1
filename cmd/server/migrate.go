package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cicconel11/TeamNetwork-sub008/internal/models"
	"github.com/cicconel11/TeamNetwork-sub008/pkg/database"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create tables and indexes",
		Long: `Apply the payments schema to DATABASE_URL.

Every statement is idempotent, so migrate is safe to run on each deploy.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync()
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}

			db, err := database.NewPostgresDB(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			if _, err := db.ExecContext(ctx, models.Schema); err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}
			log.Info("schema applied", zap.String("environment", cfg.Environment))
			return nil
		},
	}
}
