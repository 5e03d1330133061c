// Package updater orchestrates the feed update pipeline: it walks the
// subscription list and runs fetch -> parse -> enrich -> store for every
// feed independently, isolating per-feed failures so one broken feed never
// blocks the rest of the batch.
package updater

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-pkgz/lgr"
	"golang.org/x/sync/errgroup"

	"github.com/ntBre/newsyacht/pkg/config"
	"github.com/ntBre/newsyacht/pkg/domain"
	"github.com/ntBre/newsyacht/pkg/feed"
	"github.com/ntBre/newsyacht/pkg/repository"
	"github.com/ntBre/newsyacht/pkg/scoring"
)

// FeedStore is the feed-row side of the storage layer
type FeedStore interface {
	SyncSources(ctx context.Context, sources []domain.Source) error
	GetFeedsByURLs(ctx context.Context, urls []string) ([]domain.Feed, error)
	MarkFeedUnchanged(ctx context.Context, feedID int64) error
	SetFeedError(ctx context.Context, feedID int64, errMsg string) error
}

// ArticleStore commits a feed's update transactionally
type ArticleStore interface {
	StoreFeedUpdate(ctx context.Context, feedID int64, update repository.FeedUpdate) (int, error)
}

// Fetcher retrieves feed documents with conditional requests
type Fetcher interface {
	Fetch(ctx context.Context, feedURL string, validator domain.Validator) (*feed.FetchResult, error)
}

// Parser normalizes raw feed bytes
type Parser interface {
	Parse(data []byte) (*domain.ParsedFeed, error)
}

// Enricher derives a thumbnail URL from article content
type Enricher interface {
	Thumbnail(link, summaryHTML string) string
}

// Updater runs one update pass over the subscription list
type Updater struct {
	sourcesPath string
	concurrency int
	feeds       FeedStore
	articles    ArticleStore
	fetcher     Fetcher
	parser      Parser
	enricher    Enricher
}

// Params holds everything an Updater needs; all fields are required except
// Concurrency which defaults to 4
type Params struct {
	SourcesPath string
	Concurrency int
	FeedStore   FeedStore
	Articles    ArticleStore
	Fetcher     Fetcher
	Parser      Parser
	Enricher    Enricher
}

// FeedFailure attributes one per-feed failure in the aggregate result
type FeedFailure struct {
	URL string
	Err error
}

// Result is the aggregate outcome of one update run. Processed is always
// Done + Unchanged + Failed.
type Result struct {
	Processed int
	Done      int
	Unchanged int
	Failed    int
	Added     int // total new articles across all feeds
	Failures  []FeedFailure
}

// New creates an updater
func New(p Params) *Updater {
	if p.Concurrency <= 0 {
		p.Concurrency = 4
	}
	return &Updater{
		sourcesPath: p.SourcesPath,
		concurrency: p.Concurrency,
		feeds:       p.FeedStore,
		articles:    p.Articles,
		fetcher:     p.Fetcher,
		parser:      p.Parser,
		enricher:    p.Enricher,
	}
}

// Run executes one update pass. Per-feed failures are recorded on the feed
// row and in the result; the returned error is non-nil only when the run as
// a whole can't proceed (unreadable source list, unreachable store) or was
// canceled.
func (u *Updater) Run(ctx context.Context) (*Result, error) {
	sources, err := config.LoadSources(u.sourcesPath)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}

	if err := u.feeds.SyncSources(ctx, sources); err != nil {
		return nil, fmt.Errorf("sync sources: %w", err)
	}

	urls := make([]string, len(sources))
	for i, s := range sources {
		urls[i] = s.URL
	}
	feeds, err := u.feeds.GetFeedsByURLs(ctx, urls)
	if err != nil {
		return nil, fmt.Errorf("get feeds: %w", err)
	}

	lgr.Printf("[INFO] updating %d feeds with concurrency %d", len(feeds), u.concurrency)

	result := &Result{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.concurrency)

	for _, f := range feeds {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err() // canceled before this feed started
			}

			outcome, added, feedErr := u.updateFeed(gctx, f)

			mu.Lock()
			defer mu.Unlock()
			result.Processed++
			result.Added += added
			switch outcome {
			case outcomeDone:
				result.Done++
			case outcomeUnchanged:
				result.Unchanged++
			case outcomeFailed:
				result.Failed++
				result.Failures = append(result.Failures, FeedFailure{URL: f.URL, Err: feedErr})
			case outcomeFatal:
				return feedErr // store unreachable, abort the run
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("update run aborted: %w", err)
	}

	lgr.Printf("[INFO] update completed: %d done, %d unchanged, %d failed, %d new articles",
		result.Done, result.Unchanged, result.Failed, result.Added)
	return result, nil
}

type outcome int

const (
	outcomeDone outcome = iota
	outcomeUnchanged
	outcomeFailed
	outcomeFatal
)

// updateFeed runs the pipeline for a single feed: fetch, parse, enrich,
// store. Returns outcomeFatal only when recording the feed's failure itself
// fails, which means the store is gone.
func (u *Updater) updateFeed(ctx context.Context, f domain.Feed) (outcome, int, error) {
	validator := domain.Validator{ETag: f.ETag, LastModified: f.LastModified}
	if validator.IsZero() {
		lgr.Printf("[DEBUG] updating feed %s (first fetch)", f.URL)
	} else {
		lgr.Printf("[DEBUG] updating feed %s (conditional)", f.URL)
	}

	fetched, err := u.fetcher.Fetch(ctx, f.URL, validator)
	if err != nil {
		return u.failFeed(ctx, f, fmt.Errorf("fetch: %w", err))
	}

	if fetched.Unchanged {
		lgr.Printf("[DEBUG] feed %s not modified", f.URL)
		if err := u.feeds.MarkFeedUnchanged(ctx, f.ID); err != nil {
			return outcomeFatal, 0, fmt.Errorf("mark feed %s unchanged: %w", f.URL, err)
		}
		return outcomeUnchanged, 0, nil
	}

	parsed, err := u.parser.Parse(fetched.Body)
	if err != nil {
		return u.failFeed(ctx, f, fmt.Errorf("parse: %w", err))
	}

	articles := make([]domain.Article, 0, len(parsed.Items))
	for i, item := range parsed.Items {
		articles = append(articles, domain.Article{
			FeedID:       f.ID,
			GUID:         item.GUID,
			Link:         item.Link,
			Title:        item.Title,
			Summary:      item.Summary,
			Author:       item.Author,
			Published:    item.Published,
			ThumbnailURL: u.enricher.Thumbnail(item.Link, item.Summary),
			Score:        scoring.InitialScore(i),
		})
	}

	added, err := u.articles.StoreFeedUpdate(ctx, f.ID, repository.FeedUpdate{
		Title:       parsed.Title,
		Description: parsed.Description,
		Validator:   fetched.Validator,
		Articles:    articles,
	})
	if err != nil {
		return u.failFeed(ctx, f, fmt.Errorf("store: %w", err))
	}

	if added > 0 {
		lgr.Printf("[INFO] feed %s: %d new articles", f.URL, added)
	}
	return outcomeDone, added, nil
}

// failFeed records a per-feed failure and keeps the run going. If even the
// error can't be recorded the store is considered unreachable and the whole
// run aborts.
func (u *Updater) failFeed(ctx context.Context, f domain.Feed, feedErr error) (outcome, int, error) {
	lgr.Printf("[WARN] feed %s failed: %v", f.URL, feedErr)
	if err := u.feeds.SetFeedError(ctx, f.ID, feedErr.Error()); err != nil {
		return outcomeFatal, 0, fmt.Errorf("record error for feed %s: %w", f.URL, err)
	}
	return outcomeFailed, 0, feedErr
}
