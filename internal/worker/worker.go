// Package worker runs notification work off the request path: event
// dispatch and retention cleanup. On Postgres jobs go through River; on
// SQLite they run inline.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/d9705996/steward/internal/apperr"
	"github.com/d9705996/steward/internal/model"
	"github.com/d9705996/steward/internal/notify"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
)

const cleanupInterval = 24 * time.Hour

// DispatchArgs describes one domain event to fan out as notifications.
// Exactly one payload matching Type is set.
type DispatchArgs struct {
	Type         model.NotificationType `json:"type"`
	Survey       *notify.Survey         `json:"survey,omitempty"`
	Announcement *notify.Announcement   `json:"announcement,omitempty"`
	Goal         *notify.Goal           `json:"goal,omitempty"`
	UserID       string                 `json:"user_id,omitempty"`
	LocationID   string                 `json:"location_id,omitempty"`
}

// Kind returns the unique job type identifier for dispatch jobs.
func (DispatchArgs) Kind() string { return "dispatch" }

// CleanupArgs asks for notifications older than Days to be purged.
type CleanupArgs struct {
	Days int `json:"days"`
}

// Kind returns the unique job type identifier for cleanup jobs.
func (CleanupArgs) Kind() string { return "notification_cleanup" }

var errMissingPayload = apperr.New(apperr.ErrValidation, "dispatch job is missing its event payload")

// Jobs executes job payloads. It is shared by the River workers and the
// inline queue.
type Jobs struct {
	Dispatcher    *notify.Dispatcher
	Notifications *notify.Service
	Log           *slog.Logger
}

// Dispatch runs one dispatch job.
func (j *Jobs) Dispatch(ctx context.Context, args DispatchArgs) error {
	var (
		res notify.Result
		err error
	)
	switch {
	case args.Type == model.TypeSurveyAvailable && args.Survey != nil:
		res, err = j.Dispatcher.DispatchSurveyAvailable(ctx, *args.Survey)
	case args.Type == model.TypeAnnouncement && args.Announcement != nil:
		res, err = j.Dispatcher.DispatchAnnouncement(ctx, *args.Announcement)
	case args.Type == model.TypeGoalUpdate && args.Goal != nil:
		res, err = j.Dispatcher.DispatchGoalUpdate(ctx, *args.Goal)
	case args.Type == model.TypeLocationAssignment && args.UserID != "" && args.LocationID != "":
		res, err = j.Dispatcher.DispatchLocationAssignment(ctx, args.UserID, args.LocationID)
	default:
		return errMissingPayload
	}
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", args.Type, err)
	}
	j.Log.Debug("dispatch job done", "type", args.Type, "created", res.Created, "failed", res.Failed)
	return nil
}

// Cleanup runs one retention job.
func (j *Jobs) Cleanup(ctx context.Context, args CleanupArgs) error {
	n, err := j.Notifications.Cleanup(ctx, args.Days)
	if err != nil {
		return err
	}
	j.Log.Info("notification cleanup", "days", args.Days, "deleted", n)
	return nil
}

type dispatchWorker struct {
	river.WorkerDefaults[DispatchArgs]
	jobs *Jobs
}

func (w *dispatchWorker) Work(ctx context.Context, job *river.Job[DispatchArgs]) error {
	return retryable(w.jobs.Dispatch(ctx, job.Args))
}

type cleanupWorker struct {
	river.WorkerDefaults[CleanupArgs]
	jobs *Jobs
}

func (w *cleanupWorker) Work(ctx context.Context, job *river.Job[CleanupArgs]) error {
	return retryable(w.jobs.Cleanup(ctx, job.Args))
}

// retryable cancels jobs that failed with a domain error; retrying a missing
// company or a malformed payload cannot succeed.
func retryable(err error) error {
	if err != nil && apperr.KindOf(err) != nil {
		return river.JobCancel(err)
	}
	return err
}

// Queue is the interface exposed by both the River client and inlineQueue.
type Queue interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	EnqueueDispatch(ctx context.Context, args DispatchArgs) error
	EnqueueCleanup(ctx context.Context, days int) error
}

// Client wraps river.Client and exposes a Start/Stop lifecycle.
type Client struct {
	client *river.Client[pgx.Tx]
	log    *slog.Logger
}

// Start begins processing queued jobs.
func (c *Client) Start(ctx context.Context) error { return c.client.Start(ctx) }

// Stop gracefully shuts down the worker client.
func (c *Client) Stop(ctx context.Context) error { return c.client.Stop(ctx) }

// EnqueueDispatch inserts a dispatch job.
func (c *Client) EnqueueDispatch(ctx context.Context, args DispatchArgs) error {
	if _, err := c.client.Insert(ctx, args, nil); err != nil {
		return fmt.Errorf("enqueue dispatch: %w", err)
	}
	return nil
}

// EnqueueCleanup inserts a cleanup job.
func (c *Client) EnqueueCleanup(ctx context.Context, days int) error {
	if _, err := c.client.Insert(ctx, CleanupArgs{Days: days}, nil); err != nil {
		return fmt.Errorf("enqueue cleanup: %w", err)
	}
	return nil
}

// inlineQueue is used when River is unavailable (DB_DRIVER=sqlite). Jobs run
// synchronously in the caller's goroutine; the retention job runs on a ticker.
type inlineQueue struct {
	jobs          *Jobs
	retentionDays int
	log           *slog.Logger

	mu   sync.Mutex
	stop context.CancelFunc
	done chan struct{}
}

func (q *inlineQueue) Start(ctx context.Context) error {
	q.log.Info("worker queue running inline (sqlite driver; River requires postgres)")
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stop != nil || q.retentionDays <= 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	q.stop = cancel
	q.done = make(chan struct{})
	go q.loop(ctx)
	return nil
}

func (q *inlineQueue) loop(ctx context.Context) {
	defer close(q.done)
	t := time.NewTicker(cleanupInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := q.EnqueueCleanup(ctx, q.retentionDays); err != nil {
				q.log.Error("scheduled notification cleanup", "err", err)
			}
		}
	}
}

func (q *inlineQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	stop, done := q.stop, q.done
	q.stop = nil
	q.mu.Unlock()
	if stop == nil {
		return nil
	}
	stop()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *inlineQueue) EnqueueDispatch(ctx context.Context, args DispatchArgs) error {
	return q.jobs.Dispatch(ctx, args)
}

func (q *inlineQueue) EnqueueCleanup(ctx context.Context, days int) error {
	return q.jobs.Cleanup(ctx, CleanupArgs{Days: days})
}

// Options configures New.
type Options struct {
	Driver        string
	Concurrency   int
	RetentionDays int // daily cleanup; 0 disables the schedule
}

// New creates a queue implementation appropriate for the given driver.
//   - "postgres": returns a River client backed by pool.
//   - anything else: returns an inline queue.
//
// pool may be nil when the driver is not "postgres".
func New(pool *pgxpool.Pool, jobs *Jobs, opts Options) (Queue, error) {
	if jobs == nil || jobs.Dispatcher == nil || jobs.Notifications == nil || jobs.Log == nil {
		return nil, errors.New("worker: jobs must be fully wired")
	}
	if opts.Driver != "postgres" {
		return &inlineQueue{jobs: jobs, retentionDays: opts.RetentionDays, log: jobs.Log}, nil
	}
	workers := river.NewWorkers()
	river.AddWorker(workers, &dispatchWorker{jobs: jobs})
	river.AddWorker(workers, &cleanupWorker{jobs: jobs})

	var periodic []*river.PeriodicJob
	if opts.RetentionDays > 0 {
		days := opts.RetentionDays
		periodic = append(periodic, river.NewPeriodicJob(
			river.PeriodicInterval(cleanupInterval),
			func() (river.JobArgs, *river.InsertOpts) { return CleanupArgs{Days: days}, nil },
			&river.PeriodicJobOpts{RunOnStart: true},
		))
	}

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: opts.Concurrency},
		},
		Workers:      workers,
		PeriodicJobs: periodic,
		Logger:       jobs.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("create river client: %w", err)
	}
	return &Client{client: client, log: jobs.Log}, nil
}

// MigrateRiver runs River's built-in schema migrations against the given pool.
// Only call this when DB_DRIVER=postgres.
func MigrateRiver(ctx context.Context, pool *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return fmt.Errorf("run river migrations: %w", err)
	}
	return nil
}
