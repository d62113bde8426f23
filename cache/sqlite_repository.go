package cache

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-kit/log"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type repository struct {
	l  log.Logger
	db *sqlx.DB
}

// NewRepository initializes a new cache repository
func NewRepository(l log.Logger, db *sqlx.DB) *repository {
	return &repository{
		l:  l,
		db: db,
	}
}

// Get returns a cache entry for a given key
func (s *repository) Get(ctx context.Context, key string) (*Entry, bool, error) {
	var entry Entry
	err := s.db.GetContext(ctx, &entry, "SELECT key, value, expires_at FROM cache WHERE key=$1", key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &entry, true, nil
}

// Set sets a cache entry
func (s *repository) Set(ctx context.Context, entry Entry) error {
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO cache (key, value, expires_at) VALUES (:key, :value, :expires_at)
		ON CONFLICT (key) DO UPDATE SET value=excluded.value, expires_at=excluded.expires_at`,
		map[string]interface{}{
			"key":        entry.Key,
			"value":      entry.Value,
			"expires_at": entry.ExpiresAt,
		})
	return err
}

// Delete removes the cache entry for a given key
func (s *repository) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM cache WHERE key=$1", key)
	return err
}

// DeleteExpired removes all cache entries which expired at or before now
func (s *repository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM cache WHERE expires_at <= $1", now.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
