package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/d9705996/steward/internal/account"
	"github.com/d9705996/steward/internal/config"
	"github.com/d9705996/steward/internal/db"
	"github.com/d9705996/steward/internal/notify"
	"github.com/d9705996/steward/internal/observability"
	"github.com/d9705996/steward/internal/worker"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// openDB opens and migrates the configured database for one-shot commands.
// The returned close func releases the connections.
func openDB(ctx context.Context) (*gorm.DB, *slog.Logger, func(), error) {
	dbCfg, logCfg, err := config.LoadDB()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	log := observability.NewLogger(os.Stderr, logCfg.Level, logCfg.Format)

	gormDB, pool, err := db.New(ctx, dbCfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open db: %w", err)
	}
	if pool != nil {
		if err := worker.MigrateRiver(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("river migrations: %w", err)
		}
	}
	closeFn := func() {
		if pool != nil {
			pool.Close()
		}
		if sqlDB, err := gormDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return gormDB, log, closeFn, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, log, closeFn, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			log.Info("migrations applied")
			return nil
		},
	}
}

func cleanupCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete read and dismissed notifications older than --days",
		RunE: func(cmd *cobra.Command, _ []string) error {
			gormDB, log, closeFn, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			n, err := notify.NewService(gormDB).Cleanup(cmd.Context(), days)
			if err != nil {
				return err
			}
			log.Info("notification cleanup", "days", days, "deleted", n)
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d notifications\n", n)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 90, "Retention period in days")
	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	var in account.NewUser
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			gormDB, log, closeFn, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			u, err := account.NewService(gormDB).Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			log.Info("user created", "user_id", u.ID, "email", u.Email)
			fmt.Fprintln(cmd.OutOrStdout(), u.ID)
			return nil
		},
	}
	create.Flags().StringVar(&in.Email, "email", "", "Email address (required)")
	create.Flags().StringVar(&in.Name, "name", "", "Display name")
	create.Flags().StringVar(&in.Password, "password", "", "Password, at least 8 characters (required)")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("password")

	cmd.AddCommand(create)
	return cmd
}
