package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/merchkit/postline/internal/core"
	"github.com/merchkit/postline/internal/domain/model"
	"github.com/merchkit/postline/internal/testutil"
)

func testCredentials() model.Credentials {
	return model.Credentials{
		APIKey:       "key",
		APISecret:    "secret",
		AccessToken:  "token",
		AccessSecret: "token-secret",
	}
}

func insertTestPost(t *testing.T, repo *PostRepo, scheduledAt time.Time) *model.ScheduledPost {
	t.Helper()
	post, err := repo.Insert(context.Background(), core.InsertPostParams{
		Content:     "hello from postline",
		MediaURL:    "https://cdn.example/img.png",
		ScheduledAt: scheduledAt,
		Credentials: testCredentials(),
	})
	require.NoError(t, err)
	return post
}

// TestPostRepo_Integration_Lifecycle tests the complete lifecycle of a post.
func TestPostRepo_Integration_Lifecycle(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		fixed := NewFixedTimeProvider(time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC))
		repo := NewPostRepo(db, PostRepoConfig{TimeProvider: fixed})

		// 1. Insert a pending post
		origin := "https://shop.example/p/1"
		post, err := repo.Insert(context.Background(), core.InsertPostParams{
			Content:     "hello",
			MediaURL:    "https://cdn.example/img.png",
			OriginURL:   &origin,
			ScheduledAt: time.Date(2026, 9, 1, 12, 30, 0, 500_000_000, time.UTC),
			Credentials: testCredentials(),
		})
		require.NoError(t, err)
		assert.Equal(t, model.PostStatusPending, post.Status)
		require.NotNil(t, post.OriginURL)
		assert.Equal(t, origin, *post.OriginURL)
		// Stored at second precision
		assert.Equal(t, time.Date(2026, 9, 1, 12, 30, 0, 0, time.UTC), post.ScheduledAt.UTC())
		assert.Equal(t, testCredentials(), post.Credentials)
		assert.Nil(t, post.ClaimedAt)

		// 2. Claim it
		fixed.SetTime(time.Date(2026, 9, 1, 12, 30, 1, 0, time.UTC))
		claimed, err := repo.Claim(context.Background(), post.ID)
		require.NoError(t, err)
		assert.True(t, claimed)

		got, err := repo.GetByID(context.Background(), post.ID)
		require.NoError(t, err)
		assert.Equal(t, model.PostStatusProcessing, got.Status)
		require.NotNil(t, got.ClaimedAt)

		// 3. A second claim loses
		claimed, err = repo.Claim(context.Background(), post.ID)
		require.NoError(t, err)
		assert.False(t, claimed)

		// 4. Mark posted
		ok, err := repo.MarkPosted(context.Background(), post.ID, "1234567890")
		require.NoError(t, err)
		assert.True(t, ok)

		got, err = repo.GetByID(context.Background(), post.ID)
		require.NoError(t, err)
		assert.Equal(t, model.PostStatusPosted, got.Status)
		require.NotNil(t, got.PostedAt)
		require.NotNil(t, got.ExternalPostID)
		assert.Equal(t, "1234567890", *got.ExternalPostID)

		// 5. Terminal states are immutable
		ok, err = repo.MarkFailed(context.Background(), post.ID, "late failure")
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = repo.MarkPosted(context.Background(), post.ID, "999")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestPostRepo_Integration_FindDue(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewPostRepo(db, PostRepoConfig{})
		now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

		past := insertTestPost(t, repo, now.Add(-time.Minute))
		atNow := insertTestPost(t, repo, now)
		future := insertTestPost(t, repo, now.Add(time.Hour))

		due, err := repo.FindDue(context.Background(), now)
		require.NoError(t, err)
		require.Len(t, due, 2)
		// Oldest scheduled time first
		assert.Equal(t, past.ID, due[0].ID)
		assert.Equal(t, atNow.ID, due[1].ID)

		// Claimed posts drop out of the due set
		claimed, err := repo.Claim(context.Background(), past.ID)
		require.NoError(t, err)
		require.True(t, claimed)

		due, err = repo.FindDue(context.Background(), now)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, atNow.ID, due[0].ID)

		_ = future
	})
}

func TestPostRepo_Integration_ListRecent(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewPostRepo(db, PostRepoConfig{})
		base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

		var ids []int64
		for i := 0; i < 5; i++ {
			p := insertTestPost(t, repo, base.Add(time.Duration(i)*time.Minute))
			ids = append(ids, p.ID)
		}

		posts, err := repo.ListRecent(context.Background(), 3)
		require.NoError(t, err)
		require.Len(t, posts, 3)
		// Newest scheduled time first
		assert.Equal(t, ids[4], posts[0].ID)
		assert.Equal(t, ids[3], posts[1].ID)
		assert.Equal(t, ids[2], posts[2].ID)
	})
}

func TestPostRepo_Integration_DeletePending(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewPostRepo(db, PostRepoConfig{})
		now := time.Now().UTC()

		post := insertTestPost(t, repo, now.Add(time.Hour))

		deleted, err := repo.DeletePending(context.Background(), post.ID)
		require.NoError(t, err)
		assert.True(t, deleted)

		_, err = repo.GetByID(context.Background(), post.ID)
		require.ErrorIs(t, err, ErrPostNotFound)

		// A claimed post cannot be deleted
		post = insertTestPost(t, repo, now.Add(time.Hour))
		claimed, err := repo.Claim(context.Background(), post.ID)
		require.NoError(t, err)
		require.True(t, claimed)

		deleted, err = repo.DeletePending(context.Background(), post.ID)
		require.NoError(t, err)
		assert.False(t, deleted)
	})
}

func TestPostRepo_Integration_ConcurrentClaims(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewPostRepo(db, PostRepoConfig{})
		post := insertTestPost(t, repo, time.Now().UTC().Add(-time.Minute))

		const claimers = 8
		results := make(chan bool, claimers)
		var g errgroup.Group
		for i := 0; i < claimers; i++ {
			g.Go(func() error {
				ok, err := repo.Claim(context.Background(), post.ID)
				results <- ok
				return err
			})
		}
		require.NoError(t, g.Wait())
		close(results)

		won := 0
		for ok := range results {
			if ok {
				won++
			}
		}
		assert.Equal(t, 1, won, "exactly one claimer should win")
	})
}

func TestPostRepo_FailStaleProcessing(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		fixed := NewFixedTimeProvider(time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC))
		repo := NewPostRepo(db, PostRepoConfig{TimeProvider: fixed})

		stale := insertTestPost(t, repo, fixed.Now().Add(-time.Hour))
		claimed, err := repo.Claim(context.Background(), stale.ID)
		require.NoError(t, err)
		require.True(t, claimed)

		// Claim a second post much later; it should survive the reaper
		fixed.AddTime(30 * time.Minute)
		fresh := insertTestPost(t, repo, fixed.Now().Add(-time.Hour))
		claimed, err = repo.Claim(context.Background(), fresh.ID)
		require.NoError(t, err)
		require.True(t, claimed)

		count, err := repo.FailStaleProcessing(context.Background(), 15*time.Minute, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		got, err := repo.GetByID(context.Background(), stale.ID)
		require.NoError(t, err)
		assert.Equal(t, model.PostStatusFailed, got.Status)
		require.NotNil(t, got.ErrorMessage)
		assert.Contains(t, *got.ErrorMessage, "outcome unknown")

		got, err = repo.GetByID(context.Background(), fresh.ID)
		require.NoError(t, err)
		assert.Equal(t, model.PostStatusProcessing, got.Status)

		// Pending posts are never touched
		pending := insertTestPost(t, repo, fixed.Now().Add(-2*time.Hour))
		count, err = repo.FailStaleProcessing(context.Background(), 15*time.Minute, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)

		got, err = repo.GetByID(context.Background(), pending.ID)
		require.NoError(t, err)
		assert.Equal(t, model.PostStatusPending, got.Status)
	})
}
