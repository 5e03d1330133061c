package domain

import "time"

// Source is one line of the feed source list: a subscription URL with an
// optional display color
type Source struct {
	URL   string
	Color string
}

// Feed represents a subscribed RSS/Atom source
type Feed struct {
	ID           int64
	URL          string
	Color        string
	Title        string
	Description  string
	ETag         string
	LastModified string
	LastFetched  *time.Time
	LastError    string
	CreatedAt    time.Time
}

// Validator holds the HTTP conditional-request tokens saved from the last
// successful fetch. Either field may be empty if the server didn't send it.
type Validator struct {
	ETag         string
	LastModified string
}

// IsZero reports whether no validator token is available
func (v Validator) IsZero() bool {
	return v.ETag == "" && v.LastModified == ""
}
