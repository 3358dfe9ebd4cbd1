package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"inkvault/api/internal/store"
)

var migrateStatus bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for migrate")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		db, err := store.Open(ctx, cfg.DatabaseURL, store.PoolOptions{MaxOpenConns: 2})
		if err != nil {
			return err
		}
		defer db.Close()

		if migrateStatus {
			pending, err := store.PendingMigrations(ctx, db, cfg.MigrationsDir)
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "database is up to date")
				return nil
			}
			for _, name := range pending {
				fmt.Fprintf(cmd.OutOrStdout(), "pending  %s\n", name)
			}
			return nil
		}

		applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
		if err != nil {
			return err
		}
		logger.Info().Strs("applied", applied).Msg("migrations complete")
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateStatus, "status", false, "list pending migrations without applying them")
}
