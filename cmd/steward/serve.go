package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/d9705996/steward/internal/app"
	"github.com/d9705996/steward/internal/config"
	"github.com/d9705996/steward/internal/db"
	"github.com/d9705996/steward/internal/health"
	"github.com/d9705996/steward/internal/observability"
	"github.com/d9705996/steward/internal/seed"
	"github.com/d9705996/steward/internal/version"
	"github.com/d9705996/steward/internal/worker"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the notification worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability -------------------------------------------------------
	obs, log, err := observability.New(ctx, &observability.Config{
		ServiceName:    "steward",
		ServiceVersion: version.Version,
		LogLevel:       cfg.Log.Level,
		LogFormat:      cfg.Log.Format,
		OTLPEndpoint:   cfg.OTel.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer obs.Shutdown(context.Background())
	slog.SetDefault(log)
	log.Info("starting steward", "version", version.Version, "commit", version.Commit, "db_driver", cfg.DB.Driver)

	// --- Database ------------------------------------------------------------
	// db.New migrates the schema (AutoMigrate for SQLite, golang-migrate for
	// Postgres). The pgxpool is non-nil only for postgres and backs River.
	gormDB, pool, err := db.New(ctx, &cfg.DB)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if pool != nil {
		defer pool.Close()
		if err := worker.MigrateRiver(ctx, pool); err != nil {
			return fmt.Errorf("river migrations: %w", err)
		}
		log.Info("river migrations applied")
	}
	log.Info("database ready", "driver", cfg.DB.Driver)

	// --- Seed admin ----------------------------------------------------------
	if err := seed.EnsureAdmin(ctx, gormDB, seed.AdminOptions{
		Email:       cfg.App.SeedAdminEmail,
		Password:    cfg.App.SeedAdminPassword,
		CompanyName: cfg.App.SeedCompanyName,
		Out:         os.Stderr,
	}, log); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	// --- Services and worker queue -------------------------------------------
	a, err := app.New(gormDB, pool, cfg, log)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Stop(stopCtx); err != nil {
			log.Error("worker stop error", "err", err)
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      a.Handler(obs.MetricsHandler(), health.Check{Name: "database", Pinger: db.NewPinger(gormDB)}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Start server --------------------------------------------------------
	log.Info("http server listening", "addr", srv.Addr)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("server stopped cleanly")
	return nil
}
