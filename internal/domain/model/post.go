// Package model defines the core data types and structures used throughout the postline queue.
package model

import (
	"strings"
	"time"
)

// PostStatus represents the current lifecycle state of a scheduled post.
type PostStatus string

const (
	// PostStatusPending indicates a post is waiting for its scheduled time.
	PostStatusPending PostStatus = "pending"
	// PostStatusProcessing indicates a post has been claimed by a sweep and is
	// being published.
	PostStatusProcessing PostStatus = "processing"
	// PostStatusPosted indicates a post was published successfully.
	PostStatusPosted PostStatus = "posted"
	// PostStatusFailed indicates publishing failed. Terminal.
	PostStatusFailed PostStatus = "failed"
)

// Valid returns true if the PostStatus is valid.
func (s PostStatus) Valid() bool {
	return s == PostStatusPending || s == PostStatusProcessing || s == PostStatusPosted ||
		s == PostStatusFailed
}

// Terminal returns true if the status never changes again.
func (s PostStatus) Terminal() bool {
	return s == PostStatusPosted || s == PostStatusFailed
}

// Credentials is the per-post API credential bundle captured at submission.
// The fields are opaque to the queue and are never serialized into API
// responses.
type Credentials struct {
	APIKey       string `json:"-" db:"api_key"`
	APISecret    string `json:"-" db:"api_secret"`
	AccessToken  string `json:"-" db:"access_token"`
	AccessSecret string `json:"-" db:"access_secret"`
}

// Complete returns true if all four fields are set.
func (c Credentials) Complete() bool {
	return c.APIKey != "" && c.APISecret != "" && c.AccessToken != "" && c.AccessSecret != ""
}

// ScheduledPost represents a post in the queue with all its metadata and
// status information. ScheduledAt is stored in UTC at second precision.
type ScheduledPost struct {
	ID             int64       `json:"id"                         db:"id"`
	Content        string      `json:"content"                    db:"content"`
	MediaURL       string      `json:"media_url"                  db:"media_url"`
	OriginURL      *string     `json:"origin_url,omitempty"       db:"origin_url"`
	ScheduledAt    time.Time   `json:"scheduled_at"               db:"scheduled_at"`
	Status         PostStatus  `json:"status"                     db:"status"`
	CreatedAt      time.Time   `json:"created_at"                 db:"created_at"`
	ClaimedAt      *time.Time  `json:"claimed_at,omitempty"       db:"claimed_at"`
	PostedAt       *time.Time  `json:"posted_at,omitempty"        db:"posted_at"`
	ExternalPostID *string     `json:"external_post_id,omitempty" db:"external_post_id"`
	ErrorMessage   *string     `json:"error_message,omitempty"    db:"error_message"`
	Credentials    Credentials `json:"-"`
}

// SubmitPostRequest represents a request to schedule a new post. ScheduledAt
// is the raw time string as received; parsing and the buffer-window check
// happen in the submit service so they share one clock.
type SubmitPostRequest struct {
	Content      string      `json:"content"`
	MediaURL     string      `json:"media_url"`
	OriginURL    *string     `json:"origin_url,omitempty"`
	ScheduledAt  string      `json:"scheduled_at"`
	APIKey       string      `json:"api_key,omitempty"`
	APISecret    string      `json:"api_secret,omitempty"`
	AccessToken  string      `json:"access_token,omitempty"`
	AccessSecret string      `json:"access_secret,omitempty"`
}

// Normalize trims surrounding whitespace from the request fields.
func (r *SubmitPostRequest) Normalize() {
	r.Content = strings.TrimSpace(r.Content)
	r.MediaURL = strings.TrimSpace(r.MediaURL)
	r.ScheduledAt = strings.TrimSpace(r.ScheduledAt)
	if r.OriginURL != nil {
		trimmed := strings.TrimSpace(*r.OriginURL)
		if trimmed == "" {
			r.OriginURL = nil
		} else {
			r.OriginURL = &trimmed
		}
	}
}

// RequestCredentials returns the credential bundle supplied with the request.
func (r *SubmitPostRequest) RequestCredentials() Credentials {
	return Credentials{
		APIKey:       r.APIKey,
		APISecret:    r.APISecret,
		AccessToken:  r.AccessToken,
		AccessSecret: r.AccessSecret,
	}
}

// SubmitPostResponse is returned on a successful submission.
type SubmitPostResponse struct {
	ID          int64     `json:"id"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// PostView is the list representation of a post. Times are echoed both as the
// stored UTC value and as RFC 3339 strings so consumers parse them
// deterministically regardless of local timezone.
type PostView struct {
	ID             int64      `json:"id"`
	Content        string     `json:"content"`
	MediaURL       string     `json:"media_url"`
	OriginURL      *string    `json:"origin_url,omitempty"`
	ScheduledAt    time.Time  `json:"scheduled_at"`
	ScheduledAtISO string     `json:"scheduled_at_iso"`
	Status         PostStatus `json:"status"`
	CreatedAtISO   string     `json:"created_at_iso"`
	PostedAtISO    *string    `json:"posted_at_iso,omitempty"`
	ExternalPostID *string    `json:"external_post_id,omitempty"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
}

// NewPostView builds the list representation for a stored post.
func NewPostView(p *ScheduledPost) PostView {
	v := PostView{
		ID:             p.ID,
		Content:        p.Content,
		MediaURL:       p.MediaURL,
		OriginURL:      p.OriginURL,
		ScheduledAt:    p.ScheduledAt.UTC(),
		ScheduledAtISO: p.ScheduledAt.UTC().Format(time.RFC3339),
		Status:         p.Status,
		CreatedAtISO:   p.CreatedAt.UTC().Format(time.RFC3339),
		ExternalPostID: p.ExternalPostID,
		ErrorMessage:   p.ErrorMessage,
	}
	if p.PostedAt != nil {
		iso := p.PostedAt.UTC().Format(time.RFC3339)
		v.PostedAtISO = &iso
	}
	return v
}

// SweepResult summarizes one dispatcher sweep.
type SweepResult struct {
	Due       int       `json:"due"`
	Posted    int       `json:"posted"`
	Failed    int       `json:"failed"`
	CheckedAt time.Time `json:"checked_at"`
}
