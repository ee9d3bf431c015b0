// Package app is the composition root: it builds every service, the worker
// queue and the HTTP handlers from an open database.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/d9705996/steward/internal/access"
	"github.com/d9705996/steward/internal/account"
	"github.com/d9705996/steward/internal/api"
	"github.com/d9705996/steward/internal/api/handler"
	"github.com/d9705996/steward/internal/auth"
	"github.com/d9705996/steward/internal/company"
	"github.com/d9705996/steward/internal/config"
	"github.com/d9705996/steward/internal/health"
	"github.com/d9705996/steward/internal/location"
	"github.com/d9705996/steward/internal/membership"
	"github.com/d9705996/steward/internal/notify"
	"github.com/d9705996/steward/internal/preference"
	"github.com/d9705996/steward/internal/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/gorm"
)

// App holds the wired services.
type App struct {
	Accounts      *account.Service
	Companies     *company.Service
	Members       *membership.Store
	Authz         *access.Authorizer
	Locations     *location.Manager
	Preferences   *preference.Resolver
	Notifications *notify.Service
	Dispatcher    *notify.Dispatcher
	Refresh       *auth.RefreshStore
	Queue         worker.Queue

	cfg *config.Config
	log *slog.Logger
}

// New wires the services on gdb. pool is only used when cfg.DB.Driver is
// "postgres" and may be nil otherwise.
func New(gdb *gorm.DB, pool *pgxpool.Pool, cfg *config.Config, log *slog.Logger) (*App, error) {
	members := membership.NewStore(gdb)
	prefs := preference.NewResolver(gdb)
	notifications := notify.NewService(gdb)

	dispatcher, err := notify.NewDispatcher(gdb, members, prefs, log)
	if err != nil {
		return nil, fmt.Errorf("create dispatcher: %w", err)
	}
	queue, err := worker.New(pool, &worker.Jobs{
		Dispatcher:    dispatcher,
		Notifications: notifications,
		Log:           log,
	}, worker.Options{
		Driver:        cfg.DB.Driver,
		Concurrency:   cfg.Worker.Concurrency,
		RetentionDays: cfg.Notifications.RetentionDays,
	})
	if err != nil {
		return nil, fmt.Errorf("create worker: %w", err)
	}

	return &App{
		Accounts:      account.NewService(gdb),
		Companies:     company.NewService(gdb),
		Members:       members,
		Authz:         access.New(members),
		Locations:     location.NewManager(gdb, members),
		Preferences:   prefs,
		Notifications: notifications,
		Dispatcher:    dispatcher,
		Refresh:       auth.NewRefreshStore(gdb, cfg.JWT.RefreshTTL),
		Queue:         queue,
		cfg:           cfg,
		log:           log,
	}, nil
}

// Start starts the worker queue.
func (a *App) Start(ctx context.Context) error {
	if err := a.Queue.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	return nil
}

// Stop drains the worker queue.
func (a *App) Stop(ctx context.Context) error {
	return a.Queue.Stop(ctx)
}

// Handler returns the HTTP API. metrics may be nil.
func (a *App) Handler(metrics http.Handler, checks ...health.Check) http.Handler {
	mux := http.NewServeMux()
	api.RegisterRoutes(mux, &api.Handlers{
		Health:        health.New(checks...),
		Auth:          handler.NewAuthHandler(a.Accounts, a.Refresh, a.cfg.JWT.Secret, a.cfg.JWT.AccessTTL),
		Companies:     handler.NewCompanyHandler(a.Companies, a.Locations),
		Members:       handler.NewMemberHandler(a.Members, a.Accounts),
		Locations:     handler.NewLocationHandler(a.Locations, a.Members, a.Authz, a.Queue, a.log),
		Preferences:   handler.NewPreferenceHandler(a.Preferences),
		Notifications: handler.NewNotificationHandler(a.Notifications),
		Events:        handler.NewEventHandler(a.Queue),
		Metrics:       metrics,
		RetentionDays: a.cfg.Notifications.RetentionDays,
	}, a.Authz, a.cfg.JWT.Secret)
	return mux
}
