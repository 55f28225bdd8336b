package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/merchkit/postline/internal/core"
	"github.com/merchkit/postline/internal/data/pgxutil"
	"github.com/merchkit/postline/internal/domain/model"
)

var (
	// ErrPostNotFound is returned when a scheduled post does not exist.
	ErrPostNotFound = errors.New("post not found")
)

// PostRepoConfig holds configuration options for the post repository.
type PostRepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// PostRepo provides database operations for the scheduled-post queue. All
// state transitions are conditional writes keyed on the expected current
// status; the affected-row count is the success signal. No in-memory locks.
type PostRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewPostRepo creates a new PostRepo instance with the given database connection and configuration.
func NewPostRepo(db *sql.DB, cfg PostRepoConfig) *PostRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &PostRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const postColumns = `
  id,
  content,
  media_url,
  origin_url,
  scheduled_at,
  status,
  created_at,
  claimed_at,
  posted_at,
  external_post_id,
  error_message,
  api_key,
  api_secret,
  access_token,
  access_secret
`

type postRowScanner interface {
	Scan(dest ...any) error
}

func scanPost(scanner postRowScanner) (*model.ScheduledPost, error) {
	p := &model.ScheduledPost{}
	var (
		originURL      sql.NullString
		claimedAt      sql.NullTime
		postedAt       sql.NullTime
		externalPostID sql.NullString
		errorMessage   sql.NullString
	)
	if err := scanner.Scan(
		&p.ID,
		&p.Content,
		&p.MediaURL,
		&originURL,
		&p.ScheduledAt,
		&p.Status,
		&p.CreatedAt,
		&claimedAt,
		&postedAt,
		&externalPostID,
		&errorMessage,
		&p.Credentials.APIKey,
		&p.Credentials.APISecret,
		&p.Credentials.AccessToken,
		&p.Credentials.AccessSecret,
	); err != nil {
		return nil, err
	}

	p.OriginURL = cloneNullableString(originURL)
	p.ClaimedAt = cloneNullableTime(claimedAt)
	p.PostedAt = cloneNullableTime(postedAt)
	p.ExternalPostID = cloneNullableString(externalPostID)
	p.ErrorMessage = cloneNullableString(errorMessage)
	return p, nil
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// Insert creates a new scheduled post in pending status and returns the
// stored record. ScheduledAt is persisted in UTC at second precision.
func (r *PostRepo) Insert(ctx context.Context, p core.InsertPostParams) (*model.ScheduledPost, error) {
	query := `
      INSERT INTO scheduled_posts(content, media_url, origin_url, scheduled_at, status, created_at, api_key, api_secret, access_token, access_secret)
      VALUES ($1, $2, $3, $4, 'pending', $5, $6, $7, $8, $9)
      RETURNING ` + postColumns

	now := r.timeProvider.Now().UTC()
	row := r.DB.QueryRowContext(ctx, query,
		p.Content,
		p.MediaURL,
		p.OriginURL,
		p.ScheduledAt.UTC().Truncate(time.Second),
		now,
		p.Credentials.APIKey,
		p.Credentials.APISecret,
		p.Credentials.AccessToken,
		p.Credentials.AccessSecret,
	)

	post, err := scanPost(row)
	if err != nil {
		return nil, fmt.Errorf("insert post: %w", err)
	}
	return post, nil
}

// GetByID retrieves a scheduled post by its ID.
func (r *PostRepo) GetByID(ctx context.Context, id int64) (*model.ScheduledPost, error) {
	query := `SELECT ` + postColumns + ` FROM scheduled_posts WHERE id = $1`

	post, err := scanPost(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPostNotFound
		}
		return nil, fmt.Errorf("get post: %w", err)
	}
	return post, nil
}

// ListRecent returns up to limit posts ordered by scheduled time descending.
func (r *PostRepo) ListRecent(ctx context.Context, limit int) ([]*model.ScheduledPost, error) {
	query := `
      SELECT ` + postColumns + `
      FROM scheduled_posts
      ORDER BY scheduled_at DESC, id DESC
      LIMIT $1`

	rows, err := r.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	return collectPosts(rows)
}

// FindDue returns pending posts whose scheduled time is at or before now,
// oldest first. A plain read: claiming is a separate conditional update, so
// overlapping sweeps may see the same due set and race on Claim.
func (r *PostRepo) FindDue(ctx context.Context, now time.Time) ([]*model.ScheduledPost, error) {
	query := `
      SELECT ` + postColumns + `
      FROM scheduled_posts
      WHERE status = 'pending' AND scheduled_at <= $1
      ORDER BY scheduled_at ASC, id ASC`

	rows, err := r.DB.QueryContext(ctx, query, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("find due posts: %w", err)
	}
	defer rows.Close()

	return collectPosts(rows)
}

func collectPosts(rows *sql.Rows) ([]*model.ScheduledPost, error) {
	var posts []*model.ScheduledPost
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

// Claim attempts to move a post from pending to processing. Returns false
// without error when the post was already claimed, finished, or deleted by a
// concurrent actor.
func (r *PostRepo) Claim(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE scheduled_posts
		SET status = 'processing',
		    claimed_at = $2
		WHERE id = $1 AND status = 'pending'
	`

	res, err := r.DB.ExecContext(ctx, query, id, r.timeProvider.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("claim post: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim post rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkPosted moves a post from processing to posted, recording the publish
// time and the platform's post id. Returns false when the post was not in
// processing status.
func (r *PostRepo) MarkPosted(ctx context.Context, id int64, externalPostID string) (bool, error) {
	query := `
		UPDATE scheduled_posts
		SET status = 'posted',
		    posted_at = $2,
		    external_post_id = $3,
		    error_message = NULL
		WHERE id = $1 AND status = 'processing'
	`

	res, err := r.DB.ExecContext(ctx, query, id, r.timeProvider.Now().UTC(), externalPostID)
	if err != nil {
		return false, fmt.Errorf("mark post posted: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark post posted rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkFailed moves a post from processing to failed with the given error
// message. Returns false when the post was not in processing status.
func (r *PostRepo) MarkFailed(ctx context.Context, id int64, errMsg string) (bool, error) {
	query := `
		UPDATE scheduled_posts
		SET status = 'failed',
		    error_message = $2
		WHERE id = $1 AND status = 'processing'
	`

	res, err := r.DB.ExecContext(ctx, query, id, errMsg)
	if err != nil {
		return false, fmt.Errorf("mark post failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark post failed rows affected: %w", err)
	}
	return affected > 0, nil
}

// DeletePending removes a post only while it is still pending. Returns false
// when the post is absent or no longer pending.
func (r *PostRepo) DeletePending(ctx context.Context, id int64) (bool, error) {
	query := `DELETE FROM scheduled_posts WHERE id = $1 AND status = 'pending'`

	res, err := r.DB.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("delete pending post: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete pending post rows affected: %w", err)
	}
	return affected > 0, nil
}

// Advisory lock namespace for reaper operations. Major key 1100 is reserved
// for postline reaper operations.
const (
	advisoryLockReaperMajor          = 1100
	advisoryLockReaperFailProcessing = 1
)

// FailStaleProcessing marks processing posts whose claim is older than maxAge
// as failed. The publish outcome for such posts is unknown, so they are
// failed rather than re-pended to avoid a possible duplicate publish.
// Processes up to batchSize posts per call and uses an advisory lock to keep
// concurrent reaper instances from conflicting. Returns the number of posts
// marked as failed.
func (r *PostRepo) FailStaleProcessing(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, advisoryLockReaperFailProcessing).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			cutoff := r.timeProvider.Now().Add(-maxAge)
			errMsg := fmt.Sprintf("processing timed out after %s; outcome unknown", maxAge)

			res, err := tx.ExecContext(ctx, `
				UPDATE scheduled_posts
				SET status = 'failed',
					error_message = $1
				WHERE id IN (
					SELECT id FROM scheduled_posts
					WHERE status = 'processing'
					  AND claimed_at < $2
					ORDER BY claimed_at
					LIMIT $3
				)
			`, errMsg, cutoff.UTC(), batchSize)
			if err != nil {
				return fmt.Errorf("fail stale processing posts: %w", err)
			}

			affected, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("fail stale processing rows affected: %w", err)
			}
			rowsAffected = affected
			return nil
		},
	})
	if err != nil {
		return 0, err
	}

	if rowsAffected > 0 && r.logger != nil {
		r.logger.WarnContext(ctx, "failed stale processing posts",
			"count", rowsAffected,
			"max_age", maxAge.String(),
		)
	}
	return rowsAffected, nil
}
