// Package media downloads post media at publish time.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// DefaultMaxBytes caps media downloads at 5 MB, the platform's image limit.
const DefaultMaxBytes int64 = 5 * 1024 * 1024

// FetcherOptions holds the dependencies for creating a Fetcher.
type FetcherOptions struct {
	Client   *http.Client // Optional: defaults to http.DefaultClient
	MaxBytes int64        // Optional: defaults to DefaultMaxBytes
	Logger   *slog.Logger // Optional: structured logger
}

// Fetcher downloads media bytes over HTTP. The caller bounds the download
// with the context deadline; Fetcher bounds it by size.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	logger   *slog.Logger
}

// NewFetcher creates a new Fetcher with the given options.
func NewFetcher(opts FetcherOptions) *Fetcher {
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "media_fetcher")
	}

	return &Fetcher{
		client:   client,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Fetch downloads the media at mediaURL and returns its bytes.
func (f *Fetcher) Fetch(ctx context.Context, mediaURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build media request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch media: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil && f.logger != nil {
			f.logger.WarnContext(ctx, "media response close failed", "error", cerr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch media: unexpected status %d from %s", resp.StatusCode, mediaURL)
	}

	// Read one byte past the cap to distinguish at-limit from over-limit.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read media body: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("media exceeds %d byte limit", f.maxBytes)
	}
	if len(body) == 0 {
		return nil, errors.New("media response was empty")
	}

	if f.logger != nil {
		f.logger.DebugContext(ctx, "media fetched", "url", mediaURL, "bytes", len(body))
	}
	return body, nil
}
