package entity

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type row struct {
	EntityType string `db:"entity_type"`
	EntityID   int64  `db:"entity_id"`
	URLs       string `db:"urls"`
	Limit      int    `db:"limit_items"`
	Order      string `db:"sort_order"`
	TTL        int    `db:"ttl"`
	ShowImage  bool   `db:"show_image"`
	ShowSource bool   `db:"show_source"`
	UpdatedAt  int64  `db:"updated_at"`
}

type repository struct {
	l  log.Logger
	db *sqlx.DB
}

// NewRepository initializes a new entity configuration repository
func NewRepository(l log.Logger, db *sqlx.DB) *repository {
	return &repository{
		l:  l,
		db: db,
	}
}

// Config returns the normalized configuration of an entity
func (s *repository) Config(ctx context.Context, ref Ref) (Config, error) {
	var r row
	err := s.db.GetContext(ctx, &r, "SELECT * FROM entity_config WHERE entity_type=$1 AND entity_id=$2", string(ref.Type), ref.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Defaults(), nil
		}
		return Config{}, errors.Wrapf(err, "reading config of %s", ref)
	}
	return Config{
		URLs:       SplitURLs(r.URLs),
		Limit:      r.Limit,
		Order:      Order(r.Order),
		TTL:        r.TTL,
		ShowImage:  r.ShowImage,
		ShowSource: r.ShowSource,
	}.Normalize(), nil
}

// Save normalizes and stores the configuration of an entity
func (s *repository) Save(ctx context.Context, ref Ref, c Config) error {
	c = c.Normalize()
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO entity_config (entity_type, entity_id, urls, limit_items, sort_order, ttl, show_image, show_source, updated_at)
		VALUES (:entity_type, :entity_id, :urls, :limit_items, :sort_order, :ttl, :show_image, :show_source, :updated_at)
		ON CONFLICT (entity_type, entity_id) DO UPDATE SET
			urls=excluded.urls, limit_items=excluded.limit_items, sort_order=excluded.sort_order, ttl=excluded.ttl,
			show_image=excluded.show_image, show_source=excluded.show_source, updated_at=excluded.updated_at`,
		row{
			EntityType: string(ref.Type),
			EntityID:   ref.ID,
			URLs:       strings.Join(c.URLs, "\n"),
			Limit:      c.Limit,
			Order:      string(c.Order),
			TTL:        c.TTL,
			ShowImage:  c.ShowImage,
			ShowSource: c.ShowSource,
			UpdatedAt:  time.Now().Unix(),
		})
	return errors.Wrapf(err, "saving config of %s", ref)
}

// List returns all configured entities
func (s *repository) List(ctx context.Context) ([]Ref, error) {
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM entity_config ORDER BY entity_type, entity_id"); err != nil {
		return nil, errors.Wrap(err, "listing entity configs")
	}
	refs := make([]Ref, 0, len(rows))
	for _, r := range rows {
		refs = append(refs, Ref{Type: Type(r.EntityType), ID: r.EntityID})
	}
	return refs, nil
}
