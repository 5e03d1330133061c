package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ntBre/newsyacht/pkg/domain"
	"github.com/ntBre/newsyacht/pkg/repository"
)

type fakeArticleStore struct {
	articles []domain.Article
	lastReq  repository.ArticlesRequest
	err      error
}

func (s *fakeArticleStore) GetArticles(_ context.Context, req repository.ArticlesRequest) ([]domain.Article, error) {
	s.lastReq = req
	return s.articles, s.err
}

type fakeFeedStore struct {
	feeds []domain.Feed
	err   error
}

func (s *fakeFeedStore) GetFeeds(context.Context) ([]domain.Feed, error) {
	return s.feeds, s.err
}

func newTestServer(t *testing.T, articles *fakeArticleStore, feeds *fakeFeedStore) *httptest.Server {
	t.Helper()
	srv := New(articles, feeds, Config{Listen: "localhost:0", Timeout: 5 * time.Second, Version: "test"})
	ts := httptest.NewServer(srv.router)
	t.Cleanup(ts.Close)
	return ts
}

func TestServer_Status(t *testing.T) {
	ts := newTestServer(t, &fakeArticleStore{}, &fakeFeedStore{})

	resp, err := http.Get(ts.URL + "/api/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var status map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "ok", status["status"])
	assert.Equal(t, "test", status["version"])
}

func TestServer_Ping(t *testing.T) {
	ts := newTestServer(t, &fakeArticleStore{}, &fakeFeedStore{})

	resp, err := http.Get(ts.URL + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(body))
}

func TestServer_Articles(t *testing.T) {
	published := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeArticleStore{articles: []domain.Article{
		{
			ID:           1,
			FeedID:       2,
			GUID:         "a1",
			Link:         "https://example.com/1",
			Title:        "First",
			Summary:      "<p>one</p>",
			Author:       "alice",
			Published:    &published,
			ThumbnailURL: "https://i.ytimg.com/vi/abc123xyz89/hqdefault.jpg",
			Score:        0.9,
		},
		{ID: 2, FeedID: 2, GUID: "a2", Link: "https://example.com/2", Title: "Second", Score: 0.4},
	}}
	ts := newTestServer(t, store, &fakeFeedStore{})

	resp, err := http.Get(ts.URL + "/api/v1/articles")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var articles []articleJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&articles))
	require.Len(t, articles, 2)
	assert.Equal(t, "First", articles[0].Title)
	assert.Equal(t, "alice", articles[0].Author)
	require.NotNil(t, articles[0].Published)
	assert.True(t, articles[0].Published.Equal(published))
	assert.Nil(t, articles[1].Published)
	assert.Empty(t, articles[1].Author)
}

func TestServer_Articles_QueryParams(t *testing.T) {
	store := &fakeArticleStore{}
	ts := newTestServer(t, store, &fakeFeedStore{})

	resp, err := http.Get(ts.URL + "/api/v1/articles?feed=7&limit=25&offset=50")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, int64(7), store.lastReq.FeedID)
	assert.Equal(t, 25, store.lastReq.Limit)
	assert.Equal(t, 50, store.lastReq.Offset)

	t.Run("bad params ignored", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/v1/articles?feed=abc&limit=-5")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Zero(t, store.lastReq.FeedID)
		assert.Zero(t, store.lastReq.Limit)
	})
}

func TestServer_Articles_StoreError(t *testing.T) {
	store := &fakeArticleStore{err: errors.New("database exploded")}
	ts := newTestServer(t, store, &fakeFeedStore{})

	resp, err := http.Get(ts.URL + "/api/v1/articles")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body["error"], "database exploded")
}

func TestServer_Feeds(t *testing.T) {
	fetched := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	feeds := &fakeFeedStore{feeds: []domain.Feed{
		{ID: 1, URL: "https://example.com/a.xml", Title: "Feed A", LastFetched: &fetched},
		{ID: 2, URL: "https://example.com/b.xml", LastError: "fetch: 500"},
	}}
	ts := newTestServer(t, &fakeArticleStore{}, feeds)

	resp, err := http.Get(ts.URL + "/api/v1/feeds")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got []feedJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 2)
	assert.Equal(t, "Feed A", got[0].Title)
	require.NotNil(t, got[0].LastFetched)
	assert.Equal(t, "fetch: 500", got[1].LastError)
	assert.Nil(t, got[1].LastFetched)
}

func TestServer_Feeds_StoreError(t *testing.T) {
	feeds := &fakeFeedStore{err: errors.New("no database")}
	ts := newTestServer(t, &fakeArticleStore{}, feeds)

	resp, err := http.Get(ts.URL + "/api/v1/feeds")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestServer_UnknownRoute(t *testing.T) {
	ts := newTestServer(t, &fakeArticleStore{}, &fakeFeedStore{})

	resp, err := http.Get(ts.URL + "/api/v1/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_RunAndShutdown(t *testing.T) {
	srv := New(&fakeArticleStore{}, &fakeFeedStore{}, Config{Listen: "localhost:0", Timeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	// let the listener come up, then trigger graceful shutdown
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
