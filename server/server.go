// Package server exposes the stored article set over a read-only JSON API.
// It never mutates feed or article state.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"

	"github.com/ntBre/newsyacht/pkg/domain"
	"github.com/ntBre/newsyacht/pkg/repository"
)

// ArticleStore is the read-only article query surface the server needs
type ArticleStore interface {
	GetArticles(ctx context.Context, req repository.ArticlesRequest) ([]domain.Article, error)
}

// FeedStore is the read-only feed query surface the server needs
type FeedStore interface {
	GetFeeds(ctx context.Context) ([]domain.Feed, error)
}

// Config holds server settings
type Config struct {
	Listen  string
	Timeout time.Duration
	Version string
	Debug   bool
}

// Server represents the HTTP server instance
type Server struct {
	articles ArticleStore
	feeds    FeedStore
	config   Config
	version  string

	lock       sync.Mutex
	httpServer *http.Server
	router     *routegroup.Bundle
}

// New initializes a new server instance
func New(articles ArticleStore, feeds FeedStore, cfg Config) *Server {
	s := &Server{
		articles: articles,
		feeds:    feeds,
		config:   cfg,
		version:  cfg.Version,
		router:   routegroup.New(http.NewServeMux()),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Run starts the HTTP server and handles graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	log.Printf("[INFO] starting server on %s", s.config.Listen)

	s.lock.Lock()
	s.httpServer = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.router,
		ReadTimeout:  s.config.Timeout,
		WriteTimeout: s.config.Timeout,
	}
	s.lock.Unlock()

	go func() {
		<-ctx.Done()
		log.Printf("[INFO] shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] server shutdown error: %v", err)
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}

// setupMiddleware configures standard middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(rest.AppInfo("newsyacht", "ntBre", s.version))
	s.router.Use(rest.Ping)

	if s.config.Debug {
		s.router.Use(logger.New(logger.Log(lgr.Default()), logger.Prefix("[DEBUG]")).Handler)
	}

	s.router.Use(rest.Recoverer(lgr.Default()))
	s.router.Use(rest.Throttle(100))
	s.router.Use(rest.SizeLimit(1024 * 1024)) // 1MB
}

// setupRoutes configures application routes
func (s *Server) setupRoutes() {
	s.router.Mount("/api/v1").Route(func(r *routegroup.Bundle) {
		r.HandleFunc("GET /status", s.statusHandler)
		r.HandleFunc("GET /articles", s.articlesHandler)
		r.HandleFunc("GET /feeds", s.feedsHandler)
	})
}

// statusHandler returns server status
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":  "ok",
		"version": s.version,
		"time":    time.Now().UTC(),
	}
	RenderJSON(w, r, http.StatusOK, status)
}

// articleJSON is the wire shape of an article
type articleJSON struct {
	ID           int64      `json:"id"`
	FeedID       int64      `json:"feed_id"`
	GUID         string     `json:"guid"`
	Link         string     `json:"link"`
	Title        string     `json:"title"`
	Summary      string     `json:"summary"`
	Author       string     `json:"author,omitempty"`
	Published    *time.Time `json:"published,omitempty"`
	ThumbnailURL string     `json:"thumbnail_url,omitempty"`
	Score        float64    `json:"score"`
}

// articlesHandler lists stored articles, newest first. Query params: feed
// (feed id), limit, offset.
func (s *Server) articlesHandler(w http.ResponseWriter, r *http.Request) {
	req := repository.ArticlesRequest{
		FeedID: queryInt64(r, "feed"),
		Limit:  int(queryInt64(r, "limit")),
		Offset: int(queryInt64(r, "offset")),
	}

	articles, err := s.articles.GetArticles(r.Context(), req)
	if err != nil {
		RenderError(w, r, err, http.StatusInternalServerError)
		return
	}

	resp := make([]articleJSON, len(articles))
	for i, a := range articles {
		resp[i] = articleJSON{
			ID:           a.ID,
			FeedID:       a.FeedID,
			GUID:         a.GUID,
			Link:         a.Link,
			Title:        a.Title,
			Summary:      a.Summary,
			Author:       a.Author,
			Published:    a.Published,
			ThumbnailURL: a.ThumbnailURL,
			Score:        a.Score,
		}
	}
	RenderJSON(w, r, http.StatusOK, resp)
}

// feedJSON is the wire shape of a feed
type feedJSON struct {
	ID          int64      `json:"id"`
	URL         string     `json:"url"`
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	LastFetched *time.Time `json:"last_fetched,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// feedsHandler lists known feeds with their fetch status
func (s *Server) feedsHandler(w http.ResponseWriter, r *http.Request) {
	feeds, err := s.feeds.GetFeeds(r.Context())
	if err != nil {
		RenderError(w, r, err, http.StatusInternalServerError)
		return
	}

	resp := make([]feedJSON, len(feeds))
	for i, f := range feeds {
		resp[i] = feedJSON{
			ID:          f.ID,
			URL:         f.URL,
			Title:       f.Title,
			Description: f.Description,
			LastFetched: f.LastFetched,
			LastError:   f.LastError,
		}
	}
	RenderJSON(w, r, http.StatusOK, resp)
}

func queryInt64(r *http.Request, name string) int64 {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// RenderJSON sends JSON response
func RenderJSON(w http.ResponseWriter, _ *http.Request, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("[ERROR] can't encode response to JSON: %v", err)
		}
	}
}

// RenderError sends error response as JSON
func RenderError(w http.ResponseWriter, r *http.Request, err error, code int) {
	errMsg := "unknown error"
	if err != nil {
		errMsg = err.Error()
	}
	RenderJSON(w, r, code, map[string]string{"error": errMsg})
}
