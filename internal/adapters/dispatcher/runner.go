// Package dispatcher provides the adapter for running periodic publish sweeps.
package dispatcher

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/merchkit/postline/config"
	"github.com/merchkit/postline/internal/core"
	"github.com/merchkit/postline/internal/data"
	"github.com/merchkit/postline/internal/service"
)

// Runner drives DispatcherService.Sweep on a ticker until shutdown. The HTTP
// sweep trigger shares the same service, so a manual sweep and a tick racing
// each other is safe.
type Runner struct {
	dispatcher *service.DispatcherService
	interval   time.Duration
	logger     *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB        *sql.DB
	Config    config.DispatcherConfig
	Fetcher   core.MediaFetcher
	Publisher core.PostPublisher
	Logger    *slog.Logger

	// Optional dependency injection for testing/decoupling
	Repo       core.PostRepository
	Cache      core.CacheRepository
	Dispatcher *service.DispatcherService
}

// NewRunner creates a new dispatcher runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		var err error
		dispatcher, err = wireDispatcherService(opts)
		if err != nil {
			return nil, fmt.Errorf("wire dispatcher service: %w", err)
		}
	}

	return &Runner{
		dispatcher: dispatcher,
		interval:   opts.Config.Interval,
		logger:     opts.Logger.With("component", "dispatcher_runner"),
	}, nil
}

// validateRunnerOptions validates and sets defaults for RunnerOptions.
func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.Dispatcher == nil {
		if opts.DB == nil && opts.Repo == nil {
			return errors.New("database connection is required")
		}
		if opts.Fetcher == nil {
			return errors.New("media fetcher is required")
		}
		if opts.Publisher == nil {
			return errors.New("post publisher is required")
		}
	}
	if opts.Config.Interval <= 0 {
		opts.Config.Interval = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

// wireDispatcherService wires up all dependencies for the dispatcher service.
func wireDispatcherService(opts RunnerOptions) (*service.DispatcherService, error) {
	repo := opts.Repo
	if repo == nil {
		repo = data.NewPostRepo(opts.DB, data.PostRepoConfig{Logger: opts.Logger})
	}

	return service.NewDispatcherService(service.DispatcherServiceOptions{
		Repo:              repo,
		Fetcher:           opts.Fetcher,
		Publisher:         opts.Publisher,
		Cache:             opts.Cache,
		MediaFetchTimeout: opts.Config.MediaFetchTimeout,
		PublishTimeout:    opts.Config.PublishTimeout,
		Logger:            opts.Logger,
	})
}

// Service exposes the underlying dispatcher service so the HTTP trigger can
// share it.
func (r *Runner) Service() *service.DispatcherService {
	return r.dispatcher
}

// Run executes sweeps at the configured interval until the context is
// cancelled. Returns nil on graceful shutdown.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting dispatcher", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// First sweep immediately so queued posts are not delayed a full interval
	r.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "dispatcher stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Runner) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	result, err := r.dispatcher.Sweep(ctx, time.Now().UTC())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		r.logger.ErrorContext(ctx, "sweep failed", "error", err)
		return
	}

	if result.Due > 0 {
		r.logger.InfoContext(ctx, "sweep complete",
			"due", result.Due,
			"posted", result.Posted,
			"failed", result.Failed,
		)
	}
}
