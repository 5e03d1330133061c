package domain

import "time"

// Article represents one entry of a feed as stored. Articles are immutable
// once inserted; (FeedID, GUID) identifies an article across updates.
type Article struct {
	ID           int64
	FeedID       int64
	GUID         string
	Link         string
	Title        string
	Summary      string
	Author       string
	Published    *time.Time
	ThumbnailURL string
	Score        float64
	CreatedAt    time.Time
}

// ParsedFeed is the normalized form of a fetched feed document
type ParsedFeed struct {
	Title       string
	Link        string
	Description string
	Items       []ParsedItem
}

// ParsedItem is a single normalized entry from a feed document, before
// enrichment and deduplication
type ParsedItem struct {
	GUID      string
	Link      string
	Title     string
	Summary   string
	Author    string
	Published *time.Time
}
