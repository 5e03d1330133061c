package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ntBre/newsyacht/pkg/domain"
)

func TestFetcher_Fetch(t *testing.T) {
	t.Run("plain fetch returns body and validators", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Empty(t, r.Header.Get("If-None-Match"))
			assert.Empty(t, r.Header.Get("If-Modified-Since"))
			assert.Equal(t, "newsyacht/1.0", r.Header.Get("User-Agent"))
			w.Header().Set("ETag", `"abc123"`)
			w.Header().Set("Last-Modified", "Mon, 02 Jan 2006 15:04:05 GMT")
			w.Write([]byte("<rss/>"))
		}))
		defer server.Close()

		fetcher := NewFetcher(FetcherConfig{})
		res, err := fetcher.Fetch(context.Background(), server.URL, domain.Validator{})
		require.NoError(t, err)
		assert.False(t, res.Unchanged)
		assert.Equal(t, []byte("<rss/>"), res.Body)
		assert.Equal(t, `"abc123"`, res.Validator.ETag)
		assert.Equal(t, "Mon, 02 Jan 2006 15:04:05 GMT", res.Validator.LastModified)
	})

	t.Run("validators sent as conditional headers", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, `"abc123"`, r.Header.Get("If-None-Match"))
			assert.Equal(t, "Mon, 02 Jan 2006 15:04:05 GMT", r.Header.Get("If-Modified-Since"))
			w.WriteHeader(http.StatusNotModified)
		}))
		defer server.Close()

		fetcher := NewFetcher(FetcherConfig{})
		res, err := fetcher.Fetch(context.Background(), server.URL, domain.Validator{
			ETag:         `"abc123"`,
			LastModified: "Mon, 02 Jan 2006 15:04:05 GMT",
		})
		require.NoError(t, err)
		assert.True(t, res.Unchanged)
		assert.Nil(t, res.Body)
	})

	t.Run("custom user agent", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "custom-agent/2.0", r.Header.Get("User-Agent"))
			w.Write([]byte("ok"))
		}))
		defer server.Close()

		fetcher := NewFetcher(FetcherConfig{UserAgent: "custom-agent/2.0"})
		_, err := fetcher.Fetch(context.Background(), server.URL, domain.Validator{})
		require.NoError(t, err)
	})

	t.Run("server error returns HTTPError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		fetcher := NewFetcher(FetcherConfig{})
		res, err := fetcher.Fetch(context.Background(), server.URL, domain.Validator{})
		require.Error(t, err)
		assert.Nil(t, res)

		var httpErr *HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusInternalServerError, httpErr.Status)
	})

	t.Run("not found returns HTTPError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		fetcher := NewFetcher(FetcherConfig{})
		_, err := fetcher.Fetch(context.Background(), server.URL, domain.Validator{})
		var httpErr *HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusNotFound, httpErr.Status)
		assert.Contains(t, httpErr.Error(), "404")
	})

	t.Run("body over cap rejected", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(strings.Repeat("x", 2048)))
		}))
		defer server.Close()

		fetcher := NewFetcher(FetcherConfig{MaxBodySize: 1024})
		res, err := fetcher.Fetch(context.Background(), server.URL, domain.Validator{})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrPayloadTooLarge)
		assert.Nil(t, res)
	})

	t.Run("body exactly at cap accepted", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(strings.Repeat("x", 1024)))
		}))
		defer server.Close()

		fetcher := NewFetcher(FetcherConfig{MaxBodySize: 1024})
		res, err := fetcher.Fetch(context.Background(), server.URL, domain.Validator{})
		require.NoError(t, err)
		assert.Len(t, res.Body, 1024)
	})

	t.Run("timeout", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(100 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		fetcher := NewFetcher(FetcherConfig{Timeout: 10 * time.Millisecond})
		res, err := fetcher.Fetch(context.Background(), server.URL, domain.Validator{})
		require.Error(t, err)
		assert.Nil(t, res)
	})

	t.Run("context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(100 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		fetcher := NewFetcher(FetcherConfig{})
		_, err := fetcher.Fetch(ctx, server.URL, domain.Validator{})
		require.Error(t, err)
	})

	t.Run("redirect chain over limit", func(t *testing.T) {
		var server *httptest.Server
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// redirect to itself forever
			http.Redirect(w, r, server.URL+r.URL.Path+"x", http.StatusMovedPermanently)
		}))
		defer server.Close()

		fetcher := NewFetcher(FetcherConfig{MaxRedirects: 2})
		res, err := fetcher.Fetch(context.Background(), server.URL, domain.Validator{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redirects")
		assert.Nil(t, res)
	})

	t.Run("redirect within limit followed", func(t *testing.T) {
		mux := http.NewServeMux()
		server := httptest.NewServer(mux)
		defer server.Close()

		mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, server.URL+"/new", http.StatusMovedPermanently)
		})
		mux.HandleFunc("/new", func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("moved body"))
		})

		fetcher := NewFetcher(FetcherConfig{})
		res, err := fetcher.Fetch(context.Background(), server.URL+"/old", domain.Validator{})
		require.NoError(t, err)
		assert.Equal(t, []byte("moved body"), res.Body)
	})

	t.Run("invalid url", func(t *testing.T) {
		fetcher := NewFetcher(FetcherConfig{})
		res, err := fetcher.Fetch(context.Background(), "not-a-valid-url", domain.Validator{})
		require.Error(t, err)
		assert.Nil(t, res)
	})
}
