// Package service contains the business logic for the scheduled-post queue.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/merchkit/postline/internal/core"
	"github.com/merchkit/postline/internal/data"
	"github.com/merchkit/postline/internal/domain/model"
	apperrors "github.com/merchkit/postline/internal/errors"
)

// SubmitBuffer is the minimum lead time between submission and the scheduled
// publish instant. It absorbs processing latency so a post is never due the
// moment it is created.
const SubmitBuffer = 10 * time.Second

// Accepted layouts for the scheduled-time string. Layouts without a zone are
// interpreted as UTC.
var scheduledAtLayouts = []struct {
	layout string
	utc    bool
}{
	{time.RFC3339, false},
	{"2006-01-02T15:04:05", true},
	{"2006-01-02 15:04:05", true},
	{"2006-01-02 15:04", true},
}

// SubmitServiceOptions groups dependencies for SubmitService.
type SubmitServiceOptions struct {
	Repo               core.PostRepository // Required: post repository
	Cache              core.CacheRepository // Optional: list cache to invalidate on writes
	DefaultCredentials model.Credentials   // Optional: fallback for requests without credentials
	TimeProvider       data.TimeProvider   // Optional: defaults to real time
	Logger             *slog.Logger        // Optional: structured logger
}

// SubmitService validates and enqueues new scheduled posts.
type SubmitService struct {
	repo         core.PostRepository
	cache        core.CacheRepository
	defaultCreds model.Credentials
	timeProvider data.TimeProvider
	logger       *slog.Logger
}

// NewSubmitService constructs a new SubmitService.
func NewSubmitService(opts SubmitServiceOptions) (*SubmitService, error) {
	if opts.Repo == nil {
		return nil, errors.New("PostRepository is required")
	}

	tp := opts.TimeProvider
	if tp == nil {
		tp = &data.RealTimeProvider{}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "submit_service")
	}

	return &SubmitService{
		repo:         opts.Repo,
		cache:        opts.Cache,
		defaultCreds: opts.DefaultCredentials,
		timeProvider: tp,
		logger:       logger,
	}, nil
}

// Submit validates the request and inserts a pending post. Validation runs in
// a fixed order: content, media URL, time parse, buffer window. The credential
// bundle is captured on the stored row at submission time, so later
// configuration changes never affect posts already queued.
func (s *SubmitService) Submit(ctx context.Context, req *model.SubmitPostRequest) (*model.SubmitPostResponse, error) {
	if req == nil {
		return nil, apperrors.Internal("submit request is required")
	}
	req.Normalize()

	if req.Content == "" {
		return nil, apperrors.Validation(apperrors.ReasonEmptyContent, "content is required")
	}
	if req.MediaURL == "" {
		return nil, apperrors.Validation(apperrors.ReasonEmptyMedia, "media_url is required")
	}

	scheduledAt, err := parseScheduledAt(req.ScheduledAt)
	if err != nil {
		return nil, apperrors.Validationf(apperrors.ReasonBadTime, "scheduled_at %q is not a recognized time", req.ScheduledAt)
	}

	now := s.timeProvider.Now().UTC()
	earliest := now.Add(SubmitBuffer)
	// The boundary itself is rejected: scheduled_at must be strictly after
	// now+buffer.
	if !scheduledAt.After(earliest) {
		shortfall := earliest.Sub(scheduledAt)
		return nil, apperrors.Validationf(apperrors.ReasonTooSoon,
			"scheduled_at must be more than %s in the future (short by %s)", SubmitBuffer, shortfall)
	}

	post, err := s.repo.Insert(ctx, core.InsertPostParams{
		Content:     req.Content,
		MediaURL:    req.MediaURL,
		OriginURL:   req.OriginURL,
		ScheduledAt: scheduledAt,
		Credentials: s.resolveCredentials(req.RequestCredentials()),
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "post scheduled",
			"post_id", post.ID,
			"scheduled_at", post.ScheduledAt.UTC().Format(time.RFC3339),
		)
	}

	s.invalidateListCache(ctx)

	return &model.SubmitPostResponse{
		ID:          post.ID,
		ScheduledAt: post.ScheduledAt.UTC(),
	}, nil
}

// resolveCredentials fills empty credential fields from the configured
// defaults.
func (s *SubmitService) resolveCredentials(creds model.Credentials) model.Credentials {
	if creds.APIKey == "" {
		creds.APIKey = s.defaultCreds.APIKey
	}
	if creds.APISecret == "" {
		creds.APISecret = s.defaultCreds.APISecret
	}
	if creds.AccessToken == "" {
		creds.AccessToken = s.defaultCreds.AccessToken
	}
	if creds.AccessSecret == "" {
		creds.AccessSecret = s.defaultCreds.AccessSecret
	}
	return creds
}

func (s *SubmitService) invalidateListCache(ctx context.Context) {
	invalidateListCache(ctx, s.cache, s.logger)
}

func parseScheduledAt(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("empty time string")
	}
	for _, l := range scheduledAtLayouts {
		var (
			t   time.Time
			err error
		)
		if l.utc {
			t, err = time.ParseInLocation(l.layout, raw, time.UTC)
		} else {
			t, err = time.Parse(l.layout, raw)
		}
		if err == nil {
			return t.UTC().Truncate(time.Second), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time string %q", raw)
}
