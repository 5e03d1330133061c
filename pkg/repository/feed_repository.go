package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-pkgz/repeater/v2"
	"github.com/jmoiron/sqlx"

	"github.com/ntBre/newsyacht/pkg/domain"
)

// FeedRepository handles feed-related database operations
type FeedRepository struct {
	db *sqlx.DB
}

// feedSQL represents a feed row for SQL operations
type feedSQL struct {
	ID           int64      `db:"id"`
	URL          string     `db:"url"`
	Color        string     `db:"color"`
	Title        string     `db:"title"`
	Description  string     `db:"description"`
	ETag         string     `db:"etag"`
	LastModified string     `db:"last_modified"`
	LastFetched  *time.Time `db:"last_fetched"`
	LastError    string     `db:"last_error"`
	CreatedAt    time.Time  `db:"created_at"`
}

// NewFeedRepository creates a new feed repository
func NewFeedRepository(database *sqlx.DB) *FeedRepository {
	return &FeedRepository{db: database}
}

// SyncSources upserts a feed row for every subscription in the source list.
// Existing rows keep their fetch state; only the color is refreshed. Rows for
// URLs no longer subscribed are left alone.
func (r *FeedRepository) SyncSources(ctx context.Context, sources []domain.Source) error {
	query := `
		INSERT INTO feeds (url, color)
		VALUES (?, ?)
		ON CONFLICT(url) DO UPDATE SET color = excluded.color
	`
	return inTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		for _, src := range sources {
			if _, err := tx.ExecContext(ctx, query, src.URL, src.Color); err != nil {
				return fmt.Errorf("sync source %s: %w", src.URL, err)
			}
		}
		return nil
	})
}

// GetFeedsByURLs retrieves feed rows for the given subscription URLs,
// ordered by URL
func (r *FeedRepository) GetFeedsByURLs(ctx context.Context, urls []string) ([]domain.Feed, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In("SELECT * FROM feeds WHERE url IN (?) ORDER BY url", urls)
	if err != nil {
		return nil, fmt.Errorf("build feeds query: %w", err)
	}

	var sqlFeeds []feedSQL
	if err := r.db.SelectContext(ctx, &sqlFeeds, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("get feeds by urls: %w", err)
	}

	feeds := make([]domain.Feed, len(sqlFeeds))
	for i, f := range sqlFeeds {
		feeds[i] = toDomainFeed(&f)
	}
	return feeds, nil
}

// GetFeed retrieves a feed by ID
func (r *FeedRepository) GetFeed(ctx context.Context, id int64) (*domain.Feed, error) {
	var sqlFeed feedSQL
	if err := r.db.GetContext(ctx, &sqlFeed, "SELECT * FROM feeds WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("get feed: %w", err)
	}
	feed := toDomainFeed(&sqlFeed)
	return &feed, nil
}

// GetFeeds retrieves all known feeds ordered by URL
func (r *FeedRepository) GetFeeds(ctx context.Context) ([]domain.Feed, error) {
	var sqlFeeds []feedSQL
	if err := r.db.SelectContext(ctx, &sqlFeeds, "SELECT * FROM feeds ORDER BY url"); err != nil {
		return nil, fmt.Errorf("get feeds: %w", err)
	}

	feeds := make([]domain.Feed, len(sqlFeeds))
	for i, f := range sqlFeeds {
		feeds[i] = toDomainFeed(&f)
	}
	return feeds, nil
}

// SetFeedError records a fetch/parse failure on the feed row. The previous
// validators and articles stay untouched.
func (r *FeedRepository) SetFeedError(ctx context.Context, feedID int64, errMsg string) error {
	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))

	return retrier.Do(ctx, func() error {
		query := "UPDATE feeds SET last_error = ? WHERE id = ?"
		if _, err := r.db.ExecContext(ctx, query, errMsg, feedID); err != nil {
			if isLockError(err) {
				return err // retry
			}
			return &criticalError{err: fmt.Errorf("set feed error: %w", err)}
		}
		return nil
	})
}

// MarkFeedUnchanged records a successful conditional fetch that returned 304:
// last_fetched advances and any stale error clears, validators stay as-is.
func (r *FeedRepository) MarkFeedUnchanged(ctx context.Context, feedID int64) error {
	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))

	return retrier.Do(ctx, func() error {
		query := "UPDATE feeds SET last_fetched = ?, last_error = '' WHERE id = ?"
		if _, err := r.db.ExecContext(ctx, query, time.Now().UTC(), feedID); err != nil {
			if isLockError(err) {
				return err // retry
			}
			return &criticalError{err: fmt.Errorf("mark feed unchanged: %w", err)}
		}
		return nil
	})
}

func toDomainFeed(f *feedSQL) domain.Feed {
	return domain.Feed{
		ID:           f.ID,
		URL:          f.URL,
		Color:        f.Color,
		Title:        f.Title,
		Description:  f.Description,
		ETag:         f.ETag,
		LastModified: f.LastModified,
		LastFetched:  f.LastFetched,
		LastError:    f.LastError,
		CreatedAt:    f.CreatedAt,
	}
}
