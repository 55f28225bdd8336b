package core

import (
	"context"
	"time"

	"github.com/merchkit/postline/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// These interfaces define the contracts between the service layer and data layer.
// Service implementations should depend on these interfaces, not concrete implementations.

// PostRepository defines the interface for scheduled-post data operations.
// The conditional transition methods (Claim, MarkPosted, MarkFailed,
// DeletePending) return false without error when the expected current status
// did not hold, which is how a lost race surfaces.
type PostRepository interface {
	Insert(ctx context.Context, p InsertPostParams) (*model.ScheduledPost, error)
	GetByID(ctx context.Context, id int64) (*model.ScheduledPost, error)
	ListRecent(ctx context.Context, limit int) ([]*model.ScheduledPost, error)
	FindDue(ctx context.Context, now time.Time) ([]*model.ScheduledPost, error)
	Claim(ctx context.Context, id int64) (bool, error)
	MarkPosted(ctx context.Context, id int64, externalPostID string) (bool, error)
	MarkFailed(ctx context.Context, id int64, errMsg string) (bool, error)
	DeletePending(ctx context.Context, id int64) (bool, error)
	FailStaleProcessing(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
}

// InsertPostParams groups parameters for PostRepository.Insert.
type InsertPostParams struct {
	Content     string
	MediaURL    string
	OriginURL   *string
	ScheduledAt time.Time
	Credentials model.Credentials
}

// CacheRepository defines the interface for cache operations.
type CacheRepository interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) (bool, error)
	Health(ctx context.Context) error
}

// MediaFetcher retrieves media bytes from a URL at publish time.
type MediaFetcher interface {
	Fetch(ctx context.Context, mediaURL string) ([]byte, error)
}

// PublishParams groups parameters for PostPublisher.Publish.
type PublishParams struct {
	Content     string
	Media       []byte
	Credentials model.Credentials
}

// PostPublisher publishes a post with its media to the target platform and
// returns the platform's post id.
type PostPublisher interface {
	Publish(ctx context.Context, p PublishParams) (string, error)
}
