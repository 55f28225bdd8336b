package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/merchkit/postline/internal/core"
	"github.com/merchkit/postline/internal/data"
	"github.com/merchkit/postline/internal/domain/model"
	apperrors "github.com/merchkit/postline/internal/errors"
)

// CancelServiceOptions groups dependencies for CancelService.
type CancelServiceOptions struct {
	Repo   core.PostRepository  // Required: post repository
	Cache  core.CacheRepository // Optional: list cache to invalidate on writes
	Logger *slog.Logger         // Optional: structured logger
}

// CancelService removes posts that have not been picked up yet.
type CancelService struct {
	repo   core.PostRepository
	cache  core.CacheRepository
	logger *slog.Logger
}

// NewCancelService constructs a new CancelService.
func NewCancelService(opts CancelServiceOptions) (*CancelService, error) {
	if opts.Repo == nil {
		return nil, errors.New("PostRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "cancel_service")
	}

	return &CancelService{
		repo:   opts.Repo,
		cache:  opts.Cache,
		logger: logger,
	}, nil
}

// Cancel deletes a pending post. Returns NotFound when the post does not
// exist and InvalidState when it has already left pending, including the case
// where a concurrent sweep claims the post between the status check and the
// conditional delete.
func (s *CancelService) Cancel(ctx context.Context, id int64) error {
	post, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if isRepoNotFound(err) {
			return apperrors.NotFoundf("post %d not found", id)
		}
		return apperrors.MapDBError(err)
	}

	if post.Status != model.PostStatusPending {
		return apperrors.InvalidStatef("post %d is %s and can no longer be canceled", id, post.Status)
	}

	deleted, err := s.repo.DeletePending(ctx, id)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	if !deleted {
		// Lost the race against a sweep between the read and the delete.
		return apperrors.InvalidStatef("post %d is no longer pending", id)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "post canceled", "post_id", id)
	}

	invalidateListCache(ctx, s.cache, s.logger)
	return nil
}

func isRepoNotFound(err error) bool {
	return errors.Is(err, data.ErrPostNotFound)
}
