package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/merchkit/postline/config"
	"github.com/merchkit/postline/internal/mocks"
)

func TestReaperService_ReapOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	repo := mocks.NewMockPostRepository(ctrl)

	svc, err := NewReaperService(ReaperServiceOptions{
		Repo: repo,
		Config: config.ReaperConfig{
			Interval:          time.Minute,
			ProcessingTimeout: 15 * time.Minute,
			BatchSize:         100,
		},
	})
	require.NoError(t, err)

	repo.EXPECT().FailStaleProcessing(gomock.Any(), 15*time.Minute, 100).Return(int64(3), nil)

	count, err := svc.ReapOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestReaperService_RequiresRepo(t *testing.T) {
	_, err := NewReaperService(ReaperServiceOptions{})
	require.Error(t, err)
}

func TestReaperService_Run_DisabledWaitsForShutdown(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	repo := mocks.NewMockPostRepository(ctrl)

	svc, err := NewReaperService(ReaperServiceOptions{
		Repo:   repo,
		Config: config.ReaperConfig{Interval: time.Minute, ProcessingTimeout: 0},
	})
	require.NoError(t, err)

	// FailStaleProcessing is never called when the timeout is zero
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	cancel()
	select {
	case runErr := <-done:
		require.NoError(t, runErr)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestReaperService_Run_StopsOnCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	repo := mocks.NewMockPostRepository(ctrl)

	svc, err := NewReaperService(ReaperServiceOptions{
		Repo: repo,
		Config: config.ReaperConfig{
			Interval:          10 * time.Millisecond,
			ProcessingTimeout: time.Minute,
			BatchSize:         10,
		},
	})
	require.NoError(t, err)

	repo.EXPECT().FailStaleProcessing(gomock.Any(), time.Minute, 10).Return(int64(0), nil).AnyTimes()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case runErr := <-done:
		require.NoError(t, runErr)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
