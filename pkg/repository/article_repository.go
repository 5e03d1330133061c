package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-pkgz/repeater/v2"
	"github.com/jmoiron/sqlx"

	"github.com/ntBre/newsyacht/pkg/domain"
)

// ArticleRepository handles article storage and the read query surface
type ArticleRepository struct {
	db *sqlx.DB
}

// articleSQL represents an article row for SQL operations
type articleSQL struct {
	ID           int64      `db:"id"`
	FeedID       int64      `db:"feed_id"`
	GUID         string     `db:"guid"`
	Link         string     `db:"link"`
	Title        string     `db:"title"`
	Summary      string     `db:"summary"`
	Author       string     `db:"author"`
	Published    *time.Time `db:"published"`
	ThumbnailURL string     `db:"thumbnail_url"`
	Score        float64    `db:"score"`
	CreatedAt    time.Time  `db:"created_at"`
}

// FeedUpdate carries everything a successful fetch+parse produced for one
// feed, committed atomically by StoreFeedUpdate
type FeedUpdate struct {
	Title       string
	Description string
	Validator   domain.Validator
	Articles    []domain.Article
}

// ArticlesRequest describes a query against the stored article set
type ArticlesRequest struct {
	FeedID int64 // 0 means all feeds
	Limit  int
	Offset int
}

// NewArticleRepository creates a new article repository
func NewArticleRepository(database *sqlx.DB) *ArticleRepository {
	return &ArticleRepository{db: database}
}

// StoreFeedUpdate commits the result of one feed's update in a single
// transaction: new articles are inserted in parse order, already-seen
// (feed_id, guid) pairs are skipped without touching the existing row, and
// the feed's validators, title and last_fetched advance together with the
// inserts. A failure rolls everything back, leaving the prior state intact.
// Returns the number of articles actually inserted.
func (r *ArticleRepository) StoreFeedUpdate(ctx context.Context, feedID int64, update FeedUpdate) (int, error) {
	insertQuery := `
		INSERT INTO articles (feed_id, guid, link, title, summary, author, published, thumbnail_url, score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(feed_id, guid) DO NOTHING
	`
	// empty values never overwrite what a previous fetch recorded
	feedQuery := `
		UPDATE feeds
		SET title         = CASE WHEN ? != '' THEN ? ELSE title END,
		    description   = CASE WHEN ? != '' THEN ? ELSE description END,
		    etag          = CASE WHEN ? != '' THEN ? ELSE etag END,
		    last_modified = CASE WHEN ? != '' THEN ? ELSE last_modified END,
		    last_fetched  = ?,
		    last_error    = ''
		WHERE id = ?
	`

	added := 0
	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))

	err := retrier.Do(ctx, func() error {
		added = 0
		err := inTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
			for _, a := range update.Articles {
				res, err := tx.ExecContext(ctx, insertQuery,
					feedID, a.GUID, a.Link, a.Title, a.Summary, a.Author, a.Published, a.ThumbnailURL, a.Score)
				if err != nil {
					return fmt.Errorf("insert article %q: %w", a.GUID, err)
				}
				n, err := res.RowsAffected()
				if err != nil {
					return fmt.Errorf("rows affected: %w", err)
				}
				added += int(n)
			}

			_, err := tx.ExecContext(ctx, feedQuery,
				update.Title, update.Title,
				update.Description, update.Description,
				update.Validator.ETag, update.Validator.ETag,
				update.Validator.LastModified, update.Validator.LastModified,
				time.Now().UTC(), feedID)
			if err != nil {
				return fmt.Errorf("update feed state: %w", err)
			}
			return nil
		})
		if err != nil {
			if isLockError(err) {
				return err // retry
			}
			return &criticalError{err: err}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("store feed update: %w", err)
	}
	return added, nil
}

// GetArticles retrieves stored articles ordered by published time descending;
// articles without a date sort after all dated ones, ties resolved by id
// descending (newest insert first)
func (r *ArticleRepository) GetArticles(ctx context.Context, req ArticlesRequest) ([]domain.Article, error) {
	if req.Limit <= 0 {
		req.Limit = 100
	}

	query := `SELECT * FROM articles`
	args := []any{}
	if req.FeedID != 0 {
		query += ` WHERE feed_id = ?`
		args = append(args, req.FeedID)
	}
	query += ` ORDER BY (published IS NULL), published DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, req.Limit, req.Offset)

	var sqlArticles []articleSQL
	if err := r.db.SelectContext(ctx, &sqlArticles, query, args...); err != nil {
		return nil, fmt.Errorf("get articles: %w", err)
	}

	articles := make([]domain.Article, len(sqlArticles))
	for i, a := range sqlArticles {
		articles[i] = toDomainArticle(&a)
	}
	return articles, nil
}

// CountArticles returns the number of stored articles, optionally for one feed
func (r *ArticleRepository) CountArticles(ctx context.Context, feedID int64) (int, error) {
	query := "SELECT COUNT(*) FROM articles"
	args := []any{}
	if feedID != 0 {
		query += " WHERE feed_id = ?"
		args = append(args, feedID)
	}

	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	return count, nil
}

func toDomainArticle(a *articleSQL) domain.Article {
	return domain.Article{
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
		CreatedAt:    a.CreatedAt,
	}
}
