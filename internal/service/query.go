package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/merchkit/postline/internal/core"
	"github.com/merchkit/postline/internal/domain/model"
	apperrors "github.com/merchkit/postline/internal/errors"
)

// MaxListLimit caps how many posts a single list call returns.
const MaxListLimit = 50

// recentPostsCacheKey holds the cached view of the most recent MaxListLimit
// posts. Smaller limits are served by truncating the cached slice, so one key
// covers every request shape and a single delete invalidates all of them.
const recentPostsCacheKey = "postline:posts:recent"

// QueryServiceOptions groups dependencies for QueryService.
type QueryServiceOptions struct {
	Repo     core.PostRepository  // Required: post repository
	Cache    core.CacheRepository // Optional: read-through list cache
	CacheTTL time.Duration        // Optional: cache entry lifetime
	Logger   *slog.Logger         // Optional: structured logger
}

// QueryService serves read-only views of the queue.
type QueryService struct {
	repo     core.PostRepository
	cache    core.CacheRepository
	cacheTTL time.Duration
	logger   *slog.Logger
}

// NewQueryService constructs a new QueryService.
func NewQueryService(opts QueryServiceOptions) (*QueryService, error) {
	if opts.Repo == nil {
		return nil, errors.New("PostRepository is required")
	}

	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Second
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "query_service")
	}

	return &QueryService{
		repo:     opts.Repo,
		cache:    opts.Cache,
		cacheTTL: ttl,
		logger:   logger,
	}, nil
}

// List returns up to limit posts, newest scheduled time first. Limit values
// outside (0, MaxListLimit] are clamped to MaxListLimit. Credentials are never
// part of the returned views.
func (s *QueryService) List(ctx context.Context, limit int) ([]model.PostView, error) {
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}

	if views, ok := s.cachedViews(ctx); ok {
		if len(views) > limit {
			views = views[:limit]
		}
		return views, nil
	}

	posts, err := s.repo.ListRecent(ctx, MaxListLimit)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}

	views := make([]model.PostView, 0, len(posts))
	for _, p := range posts {
		views = append(views, model.NewPostView(p))
	}

	s.storeViews(ctx, views)

	if len(views) > limit {
		views = views[:limit]
	}
	return views, nil
}

// Get returns a single post view by id.
func (s *QueryService) Get(ctx context.Context, id int64) (*model.PostView, error) {
	post, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if isRepoNotFound(err) {
			return nil, apperrors.NotFoundf("post %d not found", id)
		}
		return nil, apperrors.MapDBError(err)
	}
	view := model.NewPostView(post)
	return &view, nil
}

func (s *QueryService) cachedViews(ctx context.Context) ([]model.PostView, bool) {
	if s.cache == nil {
		return nil, false
	}

	raw, err := s.cache.Get(ctx, recentPostsCacheKey)
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "list cache read failed", "error", err)
		}
		return nil, false
	}
	if raw == nil {
		return nil, false
	}

	var views []model.PostView
	if err := json.Unmarshal(raw, &views); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "list cache entry corrupt, dropping", "error", err)
		}
		if _, delErr := s.cache.Delete(ctx, recentPostsCacheKey); delErr != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "list cache delete failed", "error", delErr)
		}
		return nil, false
	}
	return views, true
}

func (s *QueryService) storeViews(ctx context.Context, views []model.PostView) {
	if s.cache == nil {
		return
	}

	raw, err := json.Marshal(views)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, recentPostsCacheKey, raw, s.cacheTTL); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "list cache write failed", "error", err)
	}
}

// invalidateListCache drops the cached recent-posts view. Shared by every
// service that mutates the queue.
func invalidateListCache(ctx context.Context, cache core.CacheRepository, logger *slog.Logger) {
	if cache == nil {
		return
	}
	if _, err := cache.Delete(ctx, recentPostsCacheKey); err != nil && logger != nil {
		logger.WarnContext(ctx, "list cache invalidation failed", "error", err)
	}
}
