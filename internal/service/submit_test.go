package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/merchkit/postline/internal/core"
	"github.com/merchkit/postline/internal/data"
	"github.com/merchkit/postline/internal/domain/model"
	apperrors "github.com/merchkit/postline/internal/errors"
	"github.com/merchkit/postline/internal/mocks"
)

var testNow = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

func newTestSubmitService(t *testing.T, repo core.PostRepository, defaults model.Credentials) *SubmitService {
	t.Helper()
	svc, err := NewSubmitService(SubmitServiceOptions{
		Repo:               repo,
		DefaultCredentials: defaults,
		TimeProvider:       data.NewFixedTimeProvider(testNow),
	})
	require.NoError(t, err)
	return svc
}

func validSubmitRequest() *model.SubmitPostRequest {
	return &model.SubmitPostRequest{
		Content:      "hello world",
		MediaURL:     "https://cdn.example/img.png",
		ScheduledAt:  testNow.Add(time.Minute).Format(time.RFC3339),
		APIKey:       "k",
		APISecret:    "s",
		AccessToken:  "t",
		AccessSecret: "ts",
	}
}

func TestSubmitService_ValidationOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	repo := mocks.NewMockPostRepository(ctrl)
	svc := newTestSubmitService(t, repo, model.Credentials{})

	tests := []struct {
		name       string
		mutate     func(*model.SubmitPostRequest)
		wantReason string
	}{
		{
			name: "empty content wins over empty media",
			mutate: func(r *model.SubmitPostRequest) {
				r.Content = "   "
				r.MediaURL = ""
				r.ScheduledAt = "garbage"
			},
			wantReason: apperrors.ReasonEmptyContent,
		},
		{
			name: "empty media wins over bad time",
			mutate: func(r *model.SubmitPostRequest) {
				r.MediaURL = ""
				r.ScheduledAt = "garbage"
			},
			wantReason: apperrors.ReasonEmptyMedia,
		},
		{
			name: "bad time",
			mutate: func(r *model.SubmitPostRequest) {
				r.ScheduledAt = "next tuesday-ish"
			},
			wantReason: apperrors.ReasonBadTime,
		},
		{
			name: "empty time is bad time",
			mutate: func(r *model.SubmitPostRequest) {
				r.ScheduledAt = ""
			},
			wantReason: apperrors.ReasonBadTime,
		},
		{
			name: "too soon",
			mutate: func(r *model.SubmitPostRequest) {
				r.ScheduledAt = testNow.Add(5 * time.Second).Format(time.RFC3339)
			},
			wantReason: apperrors.ReasonTooSoon,
		},
		{
			name: "in the past",
			mutate: func(r *model.SubmitPostRequest) {
				r.ScheduledAt = testNow.Add(-time.Hour).Format(time.RFC3339)
			},
			wantReason: apperrors.ReasonTooSoon,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validSubmitRequest()
			tt.mutate(req)

			_, err := svc.Submit(context.Background(), req)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
			assert.Equal(t, tt.wantReason, apperrors.GetReason(err))
		})
	}
}

func TestSubmitService_TooSoonCarriesShortfall(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	repo := mocks.NewMockPostRepository(ctrl)
	svc := newTestSubmitService(t, repo, model.Credentials{})

	req := validSubmitRequest()
	req.ScheduledAt = testNow.Add(4 * time.Second).Format(time.RFC3339)

	_, err := svc.Submit(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, apperrors.ReasonTooSoon, apperrors.GetReason(err))
	assert.Contains(t, err.Error(), "short by 6s")
}

func TestSubmitService_BoundaryExactlyAtBufferRejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	repo := mocks.NewMockPostRepository(ctrl)
	svc := newTestSubmitService(t, repo, model.Credentials{})

	// scheduled_at equal to now+buffer sits on the boundary and is too soon.
	req := validSubmitRequest()
	req.ScheduledAt = testNow.Add(SubmitBuffer).Format(time.RFC3339)

	_, err := svc.Submit(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, apperrors.ReasonTooSoon, apperrors.GetReason(err))
	assert.Contains(t, err.Error(), "short by 0s")
}

func TestSubmitService_BoundaryJustPastBufferAccepted(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	repo := mocks.NewMockPostRepository(ctrl)
	svc := newTestSubmitService(t, repo, model.Credentials{})

	scheduled := testNow.Add(SubmitBuffer + time.Second)
	repo.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(&model.ScheduledPost{
		ID:          1,
		ScheduledAt: scheduled,
		Status:      model.PostStatusPending,
	}, nil)

	req := validSubmitRequest()
	req.ScheduledAt = scheduled.Format(time.RFC3339)

	resp, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.ID)
	assert.Equal(t, scheduled, resp.ScheduledAt)
}

func TestSubmitService_InsertParams(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	repo := mocks.NewMockPostRepository(ctrl)
	svc := newTestSubmitService(t, repo, model.Credentials{})

	var got core.InsertPostParams
	repo.EXPECT().Insert(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, p core.InsertPostParams) (*model.ScheduledPost, error) {
			got = p
			return &model.ScheduledPost{ID: 9, ScheduledAt: p.ScheduledAt, Status: model.PostStatusPending}, nil
		})

	origin := " https://shop.example/p/2 "
	req := validSubmitRequest()
	req.Content = "  trimmed  "
	req.OriginURL = &origin
	// Zone-less layouts parse as UTC
	req.ScheduledAt = "2026-09-01 12:30:00"

	_, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "trimmed", got.Content)
	require.NotNil(t, got.OriginURL)
	assert.Equal(t, "https://shop.example/p/2", *got.OriginURL)
	assert.Equal(t, time.Date(2026, 9, 1, 12, 30, 0, 0, time.UTC), got.ScheduledAt)
	assert.Equal(t, model.Credentials{APIKey: "k", APISecret: "s", AccessToken: "t", AccessSecret: "ts"}, got.Credentials)
}

func TestSubmitService_CredentialFallback(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	repo := mocks.NewMockPostRepository(ctrl)
	defaults := model.Credentials{
		APIKey:       "default-key",
		APISecret:    "default-secret",
		AccessToken:  "default-token",
		AccessSecret: "default-token-secret",
	}
	svc := newTestSubmitService(t, repo, defaults)

	var got core.InsertPostParams
	repo.EXPECT().Insert(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, p core.InsertPostParams) (*model.ScheduledPost, error) {
			got = p
			return &model.ScheduledPost{ID: 3, ScheduledAt: p.ScheduledAt, Status: model.PostStatusPending}, nil
		})

	req := validSubmitRequest()
	req.APIKey = ""
	req.APISecret = ""
	req.AccessToken = ""
	req.AccessSecret = ""

	_, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, defaults, got.Credentials)
}

func TestSubmitService_PartialCredentialFallback(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	repo := mocks.NewMockPostRepository(ctrl)
	svc := newTestSubmitService(t, repo, model.Credentials{APIKey: "default-key", APISecret: "default-secret"})

	var got core.InsertPostParams
	repo.EXPECT().Insert(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, p core.InsertPostParams) (*model.ScheduledPost, error) {
			got = p
			return &model.ScheduledPost{ID: 4, ScheduledAt: p.ScheduledAt, Status: model.PostStatusPending}, nil
		})

	req := validSubmitRequest()
	req.APIKey = ""

	_, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "default-key", got.Credentials.APIKey)
	assert.Equal(t, "s", got.Credentials.APISecret)
}

func TestSubmitService_InvalidatesListCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	repo := mocks.NewMockPostRepository(ctrl)
	cache := mocks.NewMockCacheRepository(ctrl)

	svc, err := NewSubmitService(SubmitServiceOptions{
		Repo:         repo,
		Cache:        cache,
		TimeProvider: data.NewFixedTimeProvider(testNow),
	})
	require.NoError(t, err)

	repo.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(&model.ScheduledPost{
		ID:          5,
		ScheduledAt: testNow.Add(time.Minute),
		Status:      model.PostStatusPending,
	}, nil)
	cache.EXPECT().Delete(gomock.Any(), gomock.Any()).Return(true, nil)

	_, err = svc.Submit(context.Background(), validSubmitRequest())
	require.NoError(t, err)
}

func TestParseScheduledAt(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)

	tests := []struct {
		name    string
		raw     string
		want    time.Time
		wantErr bool
	}{
		{
			name: "rfc3339 with zone converts to utc",
			raw:  time.Date(2026, 9, 1, 7, 0, 0, 0, est).Format(time.RFC3339),
			want: time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			name: "zone-less T layout is utc",
			raw:  "2026-09-01T12:00:00",
			want: time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			name: "zone-less space layout is utc",
			raw:  "2026-09-01 12:00:00",
			want: time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			name: "minute precision layout",
			raw:  "2026-09-01 12:00",
			want: time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			name: "sub-second input truncates",
			raw:  "2026-09-01T12:00:00.750Z",
			want: time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
		},
		{name: "garbage", raw: "soon", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseScheduledAt(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %v want %v", got, tt.want)
		})
	}
}
