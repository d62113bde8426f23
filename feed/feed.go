package feed

import (
	"context"
	"time"
)

// Repository is an interface for a RSS Feed fetcher
type Repository interface {
	Entries(ctx context.Context, feedURL string, limit int) (*Feed, error)
}

// Feed is a fetched and parsed feed document
type Feed struct {
	URL     string
	Title   string
	Entries []Entry
}

// Entry is a raw feed entry before normalization
type Entry struct {
	Title        string
	Link         string
	Published    *time.Time
	Description  string
	Content      string
	EnclosureURL string
}
