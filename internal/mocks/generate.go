// Package mocks provides mock implementations for testing the postline queue.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our repository interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockRepo := mocks.NewMockPostRepository(ctrl)
//	mockRepo.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(post, nil)
package mocks

// Generate mock for PostRepository interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=post_repository_mock.go github.com/merchkit/postline/internal/core PostRepository

// Generate mock for CacheRepository interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=cache_repository_mock.go github.com/merchkit/postline/internal/core CacheRepository

// Generate mocks for the publisher-side ports from internal/core package.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=publisher_mock.go github.com/merchkit/postline/internal/core MediaFetcher,PostPublisher
