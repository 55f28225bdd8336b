package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetcher_Fetch(t *testing.T) {
	payload := []byte("fake-png-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/img.png":
			_, _ = w.Write(payload)
		case "/missing.png":
			w.WriteHeader(http.StatusNotFound)
		case "/empty.png":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	f := NewFetcher(FetcherOptions{})

	t.Run("success", func(t *testing.T) {
		got, err := f.Fetch(context.Background(), srv.URL+"/img.png")
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := f.Fetch(context.Background(), srv.URL+"/missing.png")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 404")
	})

	t.Run("empty body", func(t *testing.T) {
		_, err := f.Fetch(context.Background(), srv.URL+"/empty.png")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty")
	})

	t.Run("unreachable host", func(t *testing.T) {
		_, err := f.Fetch(context.Background(), "http://127.0.0.1:1/img.png")
		require.Error(t, err)
	})
}

func TestFetcher_SizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	f := NewFetcher(FetcherOptions{MaxBytes: 1024})

	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1024 byte limit")

	// Exactly at the limit is fine
	f = NewFetcher(FetcherOptions{MaxBytes: 2048})
	got, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, got, 2048)
}

func TestFetcher_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	f := NewFetcher(FetcherOptions{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.Fetch(ctx, srv.URL)
	require.Error(t, err)
}
