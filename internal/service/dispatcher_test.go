package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/merchkit/postline/internal/core"
	"github.com/merchkit/postline/internal/domain/model"
	"github.com/merchkit/postline/internal/mocks"
)

type dispatcherMocks struct {
	repo      *mocks.MockPostRepository
	fetcher   *mocks.MockMediaFetcher
	publisher *mocks.MockPostPublisher
}

func newTestDispatcher(t *testing.T, ctrl *gomock.Controller) (*DispatcherService, dispatcherMocks) {
	t.Helper()
	m := dispatcherMocks{
		repo:      mocks.NewMockPostRepository(ctrl),
		fetcher:   mocks.NewMockMediaFetcher(ctrl),
		publisher: mocks.NewMockPostPublisher(ctrl),
	}
	svc, err := NewDispatcherService(DispatcherServiceOptions{
		Repo:      m.repo,
		Fetcher:   m.fetcher,
		Publisher: m.publisher,
	})
	require.NoError(t, err)
	return svc, m
}

func duePost(id int64) *model.ScheduledPost {
	return &model.ScheduledPost{
		ID:          id,
		Content:     "hello",
		MediaURL:    "https://cdn.example/img.png",
		ScheduledAt: testNow.Add(-time.Minute),
		Status:      model.PostStatusPending,
		CreatedAt:   testNow.Add(-time.Hour),
		Credentials: model.Credentials{APIKey: "k", APISecret: "s", AccessToken: "t", AccessSecret: "ts"},
	}
}

func TestDispatcherService_Sweep_Publishes(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	svc, m := newTestDispatcher(t, ctrl)

	post := duePost(1)
	media := []byte{0x89, 'P', 'N', 'G'}

	m.repo.EXPECT().FindDue(gomock.Any(), testNow).Return([]*model.ScheduledPost{post}, nil)
	m.repo.EXPECT().Claim(gomock.Any(), int64(1)).Return(true, nil)
	m.fetcher.EXPECT().Fetch(gomock.Any(), post.MediaURL).Return(media, nil)
	m.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, p core.PublishParams) (string, error) {
			assert.Equal(t, post.Content, p.Content)
			assert.Equal(t, media, p.Media)
			assert.Equal(t, post.Credentials, p.Credentials)
			return "9001", nil
		})
	m.repo.EXPECT().MarkPosted(gomock.Any(), int64(1), "9001").Return(true, nil)

	result, err := svc.Sweep(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Due)
	assert.Equal(t, 1, result.Posted)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, testNow, result.CheckedAt)
}

func TestDispatcherService_Sweep_TerminalRaceNotCountedPosted(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	svc, m := newTestDispatcher(t, ctrl)

	post := duePost(1)

	m.repo.EXPECT().FindDue(gomock.Any(), testNow).Return([]*model.ScheduledPost{post}, nil)
	m.repo.EXPECT().Claim(gomock.Any(), int64(1)).Return(true, nil)
	m.fetcher.EXPECT().Fetch(gomock.Any(), post.MediaURL).Return([]byte{1}, nil)
	m.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return("9001", nil)
	// The reaper failed the row while the publish was in flight.
	m.repo.EXPECT().MarkPosted(gomock.Any(), int64(1), "9001").Return(false, nil)

	result, err := svc.Sweep(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Posted, "a lost terminal update must not count as posted")
	assert.Equal(t, 1, result.Failed)
}

func TestDispatcherService_Sweep_EmptyQueue(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	svc, m := newTestDispatcher(t, ctrl)

	m.repo.EXPECT().FindDue(gomock.Any(), testNow).Return(nil, nil)

	result, err := svc.Sweep(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, &model.SweepResult{Due: 0, Posted: 0, Failed: 0, CheckedAt: testNow}, result)
}

func TestDispatcherService_Sweep_LostClaimSkipsSilently(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	svc, m := newTestDispatcher(t, ctrl)

	first := duePost(1)
	second := duePost(2)

	m.repo.EXPECT().FindDue(gomock.Any(), testNow).Return([]*model.ScheduledPost{first, second}, nil)
	// A concurrent sweep already took post 1
	m.repo.EXPECT().Claim(gomock.Any(), int64(1)).Return(false, nil)
	m.repo.EXPECT().Claim(gomock.Any(), int64(2)).Return(true, nil)
	m.fetcher.EXPECT().Fetch(gomock.Any(), second.MediaURL).Return([]byte("img"), nil)
	m.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return("42", nil)
	m.repo.EXPECT().MarkPosted(gomock.Any(), int64(2), "42").Return(true, nil)

	result, err := svc.Sweep(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Due)
	assert.Equal(t, 1, result.Posted)
	assert.Equal(t, 0, result.Failed)
}

func TestDispatcherService_Sweep_FetchFailureIsolated(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	svc, m := newTestDispatcher(t, ctrl)

	broken := duePost(1)
	healthy := duePost(2)

	m.repo.EXPECT().FindDue(gomock.Any(), testNow).Return([]*model.ScheduledPost{broken, healthy}, nil)

	m.repo.EXPECT().Claim(gomock.Any(), int64(1)).Return(true, nil)
	m.fetcher.EXPECT().Fetch(gomock.Any(), broken.MediaURL).Return(nil, errors.New("dial tcp: no such host"))
	m.repo.EXPECT().MarkFailed(gomock.Any(), int64(1), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ int64, errMsg string) (bool, error) {
			assert.Contains(t, errMsg, "media fetch")
			assert.Contains(t, errMsg, "no such host")
			return true, nil
		})

	m.repo.EXPECT().Claim(gomock.Any(), int64(2)).Return(true, nil)
	m.fetcher.EXPECT().Fetch(gomock.Any(), healthy.MediaURL).Return([]byte("img"), nil)
	m.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return("7", nil)
	m.repo.EXPECT().MarkPosted(gomock.Any(), int64(2), "7").Return(true, nil)

	result, err := svc.Sweep(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Posted)
	assert.Equal(t, 1, result.Failed)
}

func TestDispatcherService_Sweep_PublishFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	svc, m := newTestDispatcher(t, ctrl)

	post := duePost(1)

	m.repo.EXPECT().FindDue(gomock.Any(), testNow).Return([]*model.ScheduledPost{post}, nil)
	m.repo.EXPECT().Claim(gomock.Any(), int64(1)).Return(true, nil)
	m.fetcher.EXPECT().Fetch(gomock.Any(), post.MediaURL).Return([]byte("img"), nil)
	m.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return("", errors.New("401 unauthorized"))
	m.repo.EXPECT().MarkFailed(gomock.Any(), int64(1), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ int64, errMsg string) (bool, error) {
			assert.Contains(t, errMsg, "publish")
			assert.Contains(t, errMsg, "401")
			return true, nil
		})

	result, err := svc.Sweep(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Posted)
	assert.Equal(t, 1, result.Failed)
}

func TestDispatcherService_Sweep_StoreErrorAborts(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	svc, m := newTestDispatcher(t, ctrl)

	m.repo.EXPECT().FindDue(gomock.Any(), testNow).Return(nil, errors.New("connection refused"))

	_, err := svc.Sweep(context.Background(), testNow)
	require.Error(t, err)
}

func TestDispatcherService_Sweep_ClaimStoreErrorAborts(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	svc, m := newTestDispatcher(t, ctrl)

	m.repo.EXPECT().FindDue(gomock.Any(), testNow).Return([]*model.ScheduledPost{duePost(1), duePost(2)}, nil)
	m.repo.EXPECT().Claim(gomock.Any(), int64(1)).Return(false, errors.New("connection refused"))
	// Post 2 is never attempted

	result, err := svc.Sweep(context.Background(), testNow)
	require.Error(t, err)
	assert.Equal(t, 2, result.Due)
	assert.Equal(t, 0, result.Posted)
}

type capturedMetric struct {
	name  string
	value int64
	tags  map[string]string
}

// recordingSink captures emitted metrics for assertions.
type recordingSink struct {
	counts  []capturedMetric
	timings []string
}

func (r *recordingSink) Count(name string, value int64, tags map[string]string) {
	r.counts = append(r.counts, capturedMetric{name: name, value: value, tags: tags})
}

func (r *recordingSink) Timing(name string, _ time.Duration, _ map[string]string) {
	r.timings = append(r.timings, name)
}

func TestDispatcherService_Sweep_EmitsOutcomeMetrics(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockPostRepository(ctrl)
	fetcher := mocks.NewMockMediaFetcher(ctrl)
	publisher := mocks.NewMockPostPublisher(ctrl)
	sink := &recordingSink{}

	svc, err := NewDispatcherService(DispatcherServiceOptions{
		Repo:      repo,
		Fetcher:   fetcher,
		Publisher: publisher,
		Metrics:   sink,
	})
	require.NoError(t, err)

	posted := duePost(1)
	failed := duePost(2)

	repo.EXPECT().FindDue(gomock.Any(), testNow).Return([]*model.ScheduledPost{posted, failed}, nil)
	repo.EXPECT().Claim(gomock.Any(), int64(1)).Return(true, nil)
	fetcher.EXPECT().Fetch(gomock.Any(), posted.MediaURL).Return([]byte("img"), nil)
	publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return("7", nil)
	repo.EXPECT().MarkPosted(gomock.Any(), int64(1), "7").Return(true, nil)
	repo.EXPECT().Claim(gomock.Any(), int64(2)).Return(true, nil)
	fetcher.EXPECT().Fetch(gomock.Any(), failed.MediaURL).Return(nil, errors.New("timeout"))
	repo.EXPECT().MarkFailed(gomock.Any(), int64(2), gomock.Any()).Return(true, nil)

	_, err = svc.Sweep(context.Background(), testNow)
	require.NoError(t, err)

	require.Len(t, sink.counts, 3)
	assert.Equal(t, capturedMetric{name: "sweep.due", value: 2}, sink.counts[0])
	assert.Equal(t, capturedMetric{name: "sweep.outcome", value: 1, tags: map[string]string{"status": "posted"}}, sink.counts[1])
	assert.Equal(t, capturedMetric{name: "sweep.outcome", value: 1, tags: map[string]string{"status": "failed"}}, sink.counts[2])
	assert.Equal(t, []string{"sweep.duration"}, sink.timings)
}

func TestDispatcherService_Sweep_InvalidatesCacheAfterWork(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	repo := mocks.NewMockPostRepository(ctrl)
	fetcher := mocks.NewMockMediaFetcher(ctrl)
	publisher := mocks.NewMockPostPublisher(ctrl)
	cache := mocks.NewMockCacheRepository(ctrl)

	svc, err := NewDispatcherService(DispatcherServiceOptions{
		Repo:      repo,
		Fetcher:   fetcher,
		Publisher: publisher,
		Cache:     cache,
	})
	require.NoError(t, err)

	post := duePost(1)
	repo.EXPECT().FindDue(gomock.Any(), testNow).Return([]*model.ScheduledPost{post}, nil)
	repo.EXPECT().Claim(gomock.Any(), int64(1)).Return(true, nil)
	fetcher.EXPECT().Fetch(gomock.Any(), post.MediaURL).Return([]byte("img"), nil)
	publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return("1", nil)
	repo.EXPECT().MarkPosted(gomock.Any(), int64(1), "1").Return(true, nil)
	cache.EXPECT().Delete(gomock.Any(), gomock.Any()).Return(true, nil)

	_, err = svc.Sweep(context.Background(), testNow)
	require.NoError(t, err)
}
