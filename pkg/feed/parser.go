package feed

import (
	"bytes"
	"fmt"
	"log"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"github.com/ntBre/newsyacht/pkg/domain"
)

// Parser normalizes RSS 2.0 and Atom documents into the shared article shape.
// Parsing is best-effort per item: entries without any usable identity are
// skipped, entries with unparseable dates keep a nil published time. Feed
// type detection happens once at the document root, inside gofeed.
type Parser struct {
	sanitizer *bluemonday.Policy
}

// NewParser creates a feed parser
func NewParser() *Parser {
	return &Parser{sanitizer: bluemonday.UGCPolicy()}
}

// Parse normalizes raw feed document bytes. It fails only when the whole
// document is unparseable; individual broken entries are dropped.
func (p *Parser) Parse(data []byte) (*domain.ParsedFeed, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	result := &domain.ParsedFeed{
		Title:       parsed.Title,
		Link:        parsed.Link,
		Description: parsed.Description,
		Items:       make([]domain.ParsedItem, 0, len(parsed.Items)),
	}

	for _, item := range parsed.Items {
		guid := item.GUID
		if guid == "" {
			guid = item.Link
		}
		if guid == "" {
			// without a guid or link the entry can't be deduplicated
			log.Printf("[WARN] skipping unidentifiable entry %q in feed %q", item.Title, parsed.Title)
			continue
		}

		normalized := domain.ParsedItem{
			GUID:      guid,
			Link:      item.Link,
			Title:     item.Title,
			Summary:   p.sanitizer.Sanitize(item.Description),
			Published: publishedTime(item),
		}
		if item.Author != nil {
			normalized.Author = item.Author.Name
		}

		result.Items = append(result.Items, normalized)
	}

	return result, nil
}

// publishedTime picks the entry timestamp, preferring published over updated.
// Feeds with dates gofeed can't parse get no date rather than an error.
func publishedTime(item *gofeed.Item) *time.Time {
	if item.PublishedParsed != nil {
		t := item.PublishedParsed.UTC()
		return &t
	}
	if item.UpdatedParsed != nil {
		t := item.UpdatedParsed.UTC()
		return &t
	}
	return nil
}
