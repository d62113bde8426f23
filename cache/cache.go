package cache

import (
	"context"
	"time"

	"github.com/dewey/feed-aggregator/feed"
)

// Repository is an interface for the cache
type Repository interface {
	// Get returns the entry stored for key, expired or not. The bool is false if there is none.
	Get(ctx context.Context, key string) (*Entry, bool, error)
	// Set stores an entry, replacing any previous entry with the same key
	Set(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, key string) error
	// DeleteExpired removes all entries that expired at or before now and returns how many were removed
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Entry is a struct for a cache entry. ExpiresAt is in Unix milliseconds.
type Entry struct {
	Key       string `db:"key"`
	Value     string `db:"value"`
	ExpiresAt int64  `db:"expires_at"`
}

// Expired reports if the entry is no longer valid at now
func (e Entry) Expired(now time.Time) bool {
	return now.UnixMilli() >= e.ExpiresAt
}

// Result is the materialized outcome of an aggregation. Either the items, possibly none, or the error.
type Result struct {
	Items []feed.Item `json:"items"`
	Error string      `json:"error,omitempty"`
}

// Failed reports if the result is the error variant
func (r Result) Failed() bool {
	return r.Error != ""
}
