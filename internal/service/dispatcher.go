package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/merchkit/postline/internal/core"
	"github.com/merchkit/postline/internal/domain/model"
	apperrors "github.com/merchkit/postline/internal/errors"
	"github.com/merchkit/postline/internal/observability/statsd"
)

// DispatcherServiceOptions groups dependencies for DispatcherService.
type DispatcherServiceOptions struct {
	Repo              core.PostRepository  // Required: post repository
	Fetcher           core.MediaFetcher    // Required: media download
	Publisher         core.PostPublisher   // Required: platform publish
	Cache             core.CacheRepository // Optional: list cache to invalidate on writes
	MediaFetchTimeout time.Duration        // Optional: per-post media download deadline
	PublishTimeout    time.Duration        // Optional: per-post publish deadline
	Logger            *slog.Logger         // Optional: structured logger
	Metrics           statsd.Sink          // Optional: sweep outcome metrics
}

// DispatcherService publishes due posts. Any number of sweeps may run
// concurrently against the same queue: the conditional claim guarantees each
// post is processed by at most one of them.
type DispatcherService struct {
	repo              core.PostRepository
	fetcher           core.MediaFetcher
	publisher         core.PostPublisher
	cache             core.CacheRepository
	mediaFetchTimeout time.Duration
	publishTimeout    time.Duration
	logger            *slog.Logger
	metrics           statsd.Sink
}

// NewDispatcherService constructs a new DispatcherService.
func NewDispatcherService(opts DispatcherServiceOptions) (*DispatcherService, error) {
	if opts.Repo == nil {
		return nil, errors.New("PostRepository is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("MediaFetcher is required")
	}
	if opts.Publisher == nil {
		return nil, errors.New("PostPublisher is required")
	}

	mediaTimeout := opts.MediaFetchTimeout
	if mediaTimeout <= 0 {
		mediaTimeout = 30 * time.Second
	}
	publishTimeout := opts.PublishTimeout
	if publishTimeout <= 0 {
		publishTimeout = 60 * time.Second
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "dispatcher_service")
	}

	return &DispatcherService{
		repo:              opts.Repo,
		fetcher:           opts.Fetcher,
		publisher:         opts.Publisher,
		cache:             opts.Cache,
		mediaFetchTimeout: mediaTimeout,
		publishTimeout:    publishTimeout,
		logger:            logger,
		metrics:           opts.Metrics,
	}, nil
}

// Sweep finds posts due at now and publishes each one it manages to claim.
// Posts another sweep claimed first are skipped silently. A failure while
// fetching media or publishing marks that post failed and moves on to the
// next; an error from the store itself aborts the sweep.
func (s *DispatcherService) Sweep(ctx context.Context, now time.Time) (*model.SweepResult, error) {
	started := time.Now()
	sweepID := uuid.NewString()
	logger := s.logger
	if logger != nil {
		logger = logger.With("sweep_id", sweepID)
	}

	due, err := s.repo.FindDue(ctx, now)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}

	result := &model.SweepResult{
		Due:       len(due),
		CheckedAt: now.UTC(),
	}

	if logger != nil && len(due) > 0 {
		logger.InfoContext(ctx, "sweep started", "due", len(due))
	}

	for _, post := range due {
		if ctx.Err() != nil {
			return result, apperrors.Wrap(ctx.Err(), apperrors.ErrCodeCanceled, "sweep interrupted")
		}

		claimed, err := s.repo.Claim(ctx, post.ID)
		if err != nil {
			return result, apperrors.MapDBError(err)
		}
		if !claimed {
			// Another sweep won the race; not our post.
			if logger != nil {
				logger.DebugContext(ctx, "claim lost, skipping", "post_id", post.ID)
			}
			continue
		}

		posted, err := s.publishOne(ctx, logger, post)
		if err != nil {
			return result, err
		}
		if posted {
			result.Posted++
		} else {
			result.Failed++
		}
	}

	if logger != nil {
		logger.InfoContext(ctx, "sweep finished",
			"due", result.Due,
			"posted", result.Posted,
			"failed", result.Failed,
		)
	}

	if result.Posted > 0 || result.Failed > 0 {
		invalidateListCache(ctx, s.cache, logger)
	}

	s.emitSweepMetrics(result, time.Since(started))

	return result, nil
}

// emitSweepMetrics publishes sweep outcome counters and duration when a
// metrics sink is configured.
func (s *DispatcherService) emitSweepMetrics(result *model.SweepResult, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.Count("sweep.due", int64(result.Due), nil)
	s.metrics.Count("sweep.outcome", int64(result.Posted), map[string]string{"status": "posted"})
	s.metrics.Count("sweep.outcome", int64(result.Failed), map[string]string{"status": "failed"})
	s.metrics.Timing("sweep.duration", elapsed, nil)
}

// publishOne fetches media and publishes a single claimed post, then records
// the terminal state. The returned error is non-nil only for store failures;
// fetch and publish failures land the post in failed and return (false, nil),
// as does a terminal update lost to a concurrent transition.
func (s *DispatcherService) publishOne(ctx context.Context, logger *slog.Logger, post *model.ScheduledPost) (bool, error) {
	media, err := s.fetchMedia(ctx, post.MediaURL)
	if err != nil {
		return false, s.markFailed(ctx, logger, post.ID, fmt.Sprintf("media fetch: %v", err))
	}

	externalID, err := s.publish(ctx, post, media)
	if err != nil {
		return false, s.markFailed(ctx, logger, post.ID, fmt.Sprintf("publish: %v", err))
	}

	ok, err := s.repo.MarkPosted(ctx, post.ID, externalID)
	if err != nil {
		return false, apperrors.MapDBError(err)
	}
	if !ok {
		// Reaper or operator moved the post out of processing mid-publish;
		// the row's terminal state is whatever they recorded, not posted.
		if logger != nil {
			logger.WarnContext(ctx, "post left processing before completion", "post_id", post.ID)
		}
		return false, nil
	}

	if logger != nil {
		logger.InfoContext(ctx, "post published",
			"post_id", post.ID,
			"external_post_id", externalID,
		)
	}
	return true, nil
}

func (s *DispatcherService) fetchMedia(ctx context.Context, mediaURL string) ([]byte, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.mediaFetchTimeout)
	defer cancel()
	return s.fetcher.Fetch(fetchCtx, mediaURL)
}

func (s *DispatcherService) publish(ctx context.Context, post *model.ScheduledPost, media []byte) (string, error) {
	publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()
	return s.publisher.Publish(publishCtx, core.PublishParams{
		Content:     post.Content,
		Media:       media,
		Credentials: post.Credentials,
	})
}

// markFailed records a terminal failure for a claimed post. Only a store
// error propagates; the publish failure itself is captured on the row.
func (s *DispatcherService) markFailed(ctx context.Context, logger *slog.Logger, id int64, errMsg string) error {
	ok, err := s.repo.MarkFailed(ctx, id, errMsg)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	if logger != nil {
		logger.WarnContext(ctx, "post failed",
			"post_id", id,
			"error_message", errMsg,
			"recorded", ok,
		)
	}
	return nil
}
