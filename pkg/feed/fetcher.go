package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ntBre/newsyacht/pkg/domain"
)

// ErrPayloadTooLarge indicates the response body exceeded the configured cap
var ErrPayloadTooLarge = errors.New("payload too large")

// HTTPError represents a non-2xx, non-304 response from a feed server
type HTTPError struct {
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.Status)
}

// Fetcher retrieves feed documents over HTTP using conditional requests.
// Validators saved from the previous fetch are sent back so an unchanged
// feed costs a 304 instead of a full download.
type Fetcher struct {
	client      *http.Client
	userAgent   string
	maxBodySize int64
}

// FetcherConfig holds fetcher settings. A zero value for any field means its
// default; there is no way to express "no timeout" or "no redirects".
type FetcherConfig struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBodySize  int64
	MaxRedirects int
}

// FetchResult is the outcome of a successful Fetch call. Unchanged means the
// server answered 304 and Body/Validator carry nothing new.
type FetchResult struct {
	Unchanged bool
	Body      []byte
	Validator domain.Validator
}

// NewFetcher creates a feed fetcher
func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "newsyacht/1.0"
	}
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = 10 * 1024 * 1024 // 10MB
	}
	if cfg.MaxRedirects == 0 {
		cfg.MaxRedirects = 5
	}

	client := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= cfg.MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", cfg.MaxRedirects)
			}
			return nil
		},
	}

	return &Fetcher{
		client:      client,
		userAgent:   cfg.UserAgent,
		maxBodySize: cfg.MaxBodySize,
	}
}

// Fetch performs a conditional GET for feedURL. The validator from the last
// successful fetch may be zero, in which case a plain GET is issued.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string, validator domain.Validator) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	if validator.ETag != "" {
		req.Header.Set("If-None-Match", validator.ETag)
	}
	if validator.LastModified != "" {
		req.Header.Set("If-Modified-Since", validator.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", feedURL, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotModified {
		return &FetchResult{Unchanged: true}, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{Status: resp.StatusCode}
	}

	// the extra byte distinguishes "exactly at the cap" from "over it"
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read body from %s: %w", feedURL, err)
	}
	if int64(len(body)) > f.maxBodySize {
		return nil, fmt.Errorf("%s: %w (over %d bytes)", feedURL, ErrPayloadTooLarge, f.maxBodySize)
	}

	return &FetchResult{
		Body: body,
		Validator: domain.Validator{
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		},
	}, nil
}
