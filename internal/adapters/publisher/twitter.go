// Package publisher posts to the platform API with per-post OAuth 1.0a
// user-context credentials.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/dghubble/oauth1"

	"github.com/merchkit/postline/config"
	"github.com/merchkit/postline/internal/core"
	"github.com/merchkit/postline/internal/domain/model"
)

// ErrorKind classifies publish failures.
type ErrorKind string

const (
	// KindAuth indicates the credentials were rejected.
	KindAuth ErrorKind = "auth"
	// KindMediaUpload indicates the media upload step failed.
	KindMediaUpload ErrorKind = "media_upload"
	// KindPublish indicates the tweet create step failed.
	KindPublish ErrorKind = "publish"
	// KindNetwork indicates a transport-level failure.
	KindNetwork ErrorKind = "network"
	// KindTimeout indicates the deadline expired mid-publish.
	KindTimeout ErrorKind = "timeout"
)

// Error is a classified publish failure.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsKind reports whether err is a publisher Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var pubErr *Error
	return errors.As(err, &pubErr) && pubErr.Kind == kind
}

// TwitterOptions holds the dependencies for creating a TwitterPublisher.
type TwitterOptions struct {
	Config config.PublisherConfig
	Logger *slog.Logger // Optional: structured logger

	// Optional HTTP transport injected under the OAuth signing client, for
	// tests and custom timeouts.
	Transport http.RoundTripper
}

// TwitterPublisher uploads media over the v1.1 media endpoint and creates the
// post over the v2 endpoint. Each Publish call signs with the credential
// bundle carried by the post, so one publisher instance serves every account.
type TwitterPublisher struct {
	uploadBaseURL string
	apiBaseURL    string
	transport     http.RoundTripper
	logger        *slog.Logger
}

// NewTwitterPublisher creates a new TwitterPublisher with the given options.
func NewTwitterPublisher(opts TwitterOptions) *TwitterPublisher {
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "twitter_publisher")
	}

	return &TwitterPublisher{
		uploadBaseURL: strings.TrimRight(opts.Config.UploadBaseURL, "/"),
		apiBaseURL:    strings.TrimRight(opts.Config.APIBaseURL, "/"),
		transport:     opts.Transport,
		logger:        logger,
	}
}

// Publish uploads the media and creates the post, returning the platform's
// post id.
func (p *TwitterPublisher) Publish(ctx context.Context, params core.PublishParams) (string, error) {
	if !params.Credentials.Complete() {
		return "", &Error{Kind: KindAuth, Message: "credential bundle is incomplete"}
	}

	client := p.signingClient(ctx, params.Credentials)

	mediaID, err := p.uploadMedia(ctx, client, params.Media)
	if err != nil {
		return "", err
	}

	postID, err := p.createPost(ctx, client, params.Content, mediaID)
	if err != nil {
		return "", err
	}

	if p.logger != nil {
		p.logger.InfoContext(ctx, "post created", "external_post_id", postID)
	}
	return postID, nil
}

// signingClient builds an OAuth 1.0a signing client for one credential bundle.
func (p *TwitterPublisher) signingClient(ctx context.Context, creds model.Credentials) *http.Client {
	cfg := oauth1.NewConfig(creds.APIKey, creds.APISecret)
	token := oauth1.NewToken(creds.AccessToken, creds.AccessSecret)

	if p.transport != nil {
		ctx = context.WithValue(ctx, oauth1.HTTPClient, &http.Client{Transport: p.transport})
	}
	return cfg.Client(ctx, token)
}

type mediaUploadResponse struct {
	MediaIDString string `json:"media_id_string"`
}

// uploadMedia performs a chunkless v1.1 media upload and returns the media id.
func (p *TwitterPublisher) uploadMedia(ctx context.Context, client *http.Client, media []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("media", "media")
	if err != nil {
		return "", &Error{Kind: KindMediaUpload, Message: "build multipart body", Cause: err}
	}
	if _, err := part.Write(media); err != nil {
		return "", &Error{Kind: KindMediaUpload, Message: "write multipart body", Cause: err}
	}
	if err := writer.Close(); err != nil {
		return "", &Error{Kind: KindMediaUpload, Message: "close multipart body", Cause: err}
	}

	url := p.uploadBaseURL + "/media/upload.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", &Error{Kind: KindMediaUpload, Message: "build upload request", Cause: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		return "", p.transportError("media upload request", err)
	}
	defer p.closeBody(ctx, resp)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &Error{Kind: KindMediaUpload, Message: "read upload response", Cause: err}
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", &Error{Kind: KindAuth, Message: fmt.Sprintf("media upload rejected with status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &Error{Kind: KindMediaUpload, Message: fmt.Sprintf("media upload returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))}
	}

	var uploadResp mediaUploadResponse
	if err := json.Unmarshal(raw, &uploadResp); err != nil {
		return "", &Error{Kind: KindMediaUpload, Message: "decode upload response", Cause: err}
	}
	if uploadResp.MediaIDString == "" {
		return "", &Error{Kind: KindMediaUpload, Message: "upload response carried no media id"}
	}
	return uploadResp.MediaIDString, nil
}

type createPostRequest struct {
	Text  string `json:"text"`
	Media struct {
		MediaIDs []string `json:"media_ids"`
	} `json:"media"`
}

type createPostResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// createPost creates the v2 post referencing an uploaded media id.
func (p *TwitterPublisher) createPost(ctx context.Context, client *http.Client, content, mediaID string) (string, error) {
	var payload createPostRequest
	payload.Text = content
	payload.Media.MediaIDs = []string{mediaID}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", &Error{Kind: KindPublish, Message: "encode post body", Cause: err}
	}

	url := p.apiBaseURL + "/tweets"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return "", &Error{Kind: KindPublish, Message: "build post request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", p.transportError("post create request", err)
	}
	defer p.closeBody(ctx, resp)

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &Error{Kind: KindPublish, Message: "read post response", Cause: err}
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", &Error{Kind: KindAuth, Message: fmt.Sprintf("post create rejected with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &Error{Kind: KindPublish, Message: fmt.Sprintf("post create returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	var createResp createPostResponse
	if err := json.Unmarshal(body, &createResp); err != nil {
		return "", &Error{Kind: KindPublish, Message: "decode post response", Cause: err}
	}
	if createResp.Data.ID == "" {
		return "", &Error{Kind: KindPublish, Message: "post response carried no id"}
	}
	return createResp.Data.ID, nil
}

// transportError classifies a client.Do failure.
func (p *TwitterPublisher) transportError(msg string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: msg, Cause: err}
	}
	return &Error{Kind: KindNetwork, Message: msg, Cause: err}
}

func (p *TwitterPublisher) closeBody(ctx context.Context, resp *http.Response) {
	if err := resp.Body.Close(); err != nil && p.logger != nil {
		p.logger.WarnContext(ctx, "response close failed", "error", err)
	}
}
