package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"log/slog"
	"time"

	"github.com/merchkit/postline/config"
	"github.com/merchkit/postline/internal/core"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo   core.PostRepository // Required: post repository
	Config config.ReaperConfig // Required: reaper configuration
	Logger *slog.Logger        // Optional: structured logger
}

// ReaperService fails posts stuck in processing. A post whose claim outlives
// the configured timeout had its dispatcher die mid-publish; the publish
// outcome is unknown, so the post is failed rather than re-queued to avoid a
// possible duplicate publish.
type ReaperService struct {
	repo   core.PostRepository
	config config.ReaperConfig
	logger *slog.Logger
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("PostRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reaper_service")
		logger.Debug("ReaperService initialized",
			"interval", opts.Config.Interval,
			"processing_timeout", opts.Config.ProcessingTimeout,
			"batch_size", opts.Config.BatchSize,
		)
	}

	return &ReaperService{
		repo:   opts.Repo,
		config: opts.Config,
		logger: logger,
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	if s.config.ProcessingTimeout <= 0 {
		if s.logger != nil {
			s.logger.InfoContext(ctx, "reaper disabled, processing timeout is zero")
		}
		<-ctx.Done()
		return nil
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)
	}

	// Add jitter to prevent thundering herd if multiple instances start together
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if err := s.reapOnce(ctx); err != nil {
		s.logReapError(ctx, err)
	}

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if err := s.reapOnce(ctx); err != nil {
				s.logReapError(ctx, err)
				// Continue running despite errors
			}
		}
	}
}

// ReapOnce runs a single cleanup pass. Exposed for the manual trigger path.
func (s *ReaperService) ReapOnce(ctx context.Context) (int64, error) {
	return s.repo.FailStaleProcessing(ctx, s.config.ProcessingTimeout, s.config.BatchSize)
}

func (s *ReaperService) reapOnce(ctx context.Context) error {
	count, err := s.ReapOnce(ctx)
	if err != nil {
		return err
	}
	if count > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "reaped stale processing posts", "count", count)
	}
	return nil
}

func (s *ReaperService) logReapError(ctx context.Context, err error) {
	if s.logger == nil {
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		s.logger.InfoContext(ctx, "reap pass interrupted", "error", err)
		return
	}
	s.logger.ErrorContext(ctx, "reap pass failed", "error", err)
}

// waitWithJitter adds a random delay up to 10% of the interval to prevent thundering herd.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// If crypto/rand fails, skip jitter rather than failing startup
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
		// Graceful shutdown during jitter
	}
}
