// Package entity holds the per entity feed configuration and the repository it is persisted in.
package entity

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Type is the kind of content object a feed configuration belongs to
type Type string

const (
	// Post is an article or any other singular content object
	Post Type = "post"
	// Term is a taxonomy term like a category or tag
	Term Type = "term"
)

// Order is the sort direction of aggregated items by date
type Order string

const (
	Ascending  Order = "asc"
	Descending Order = "desc"
)

const (
	DefaultLimit = 5
	DefaultOrder = Descending
	DefaultTTL   = 600
	// MaxTTL is one year in seconds
	MaxTTL = 365 * 24 * 60 * 60
)

var (
	ErrInvalidType = errors.New("invalid entity type")
	ErrInvalidID   = errors.New("invalid entity id")
)

// Ref identifies a single entity
type Ref struct {
	Type Type
	ID   int64
}

// Key returns the stable cache key of the entity, e.g. "post:12"
func (r Ref) Key() string {
	return fmt.Sprintf("%s:%d", r.Type, r.ID)
}

func (r Ref) String() string {
	return r.Key()
}

// ParseType validates an entity type
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case Post, Term:
		return t, nil
	}
	return "", errors.Wrapf(ErrInvalidType, "%q", s)
}

// NewRef validates the raw type and id of an entity
func NewRef(typ string, id string) (Ref, error) {
	t, err := ParseType(typ)
	if err != nil {
		return Ref{}, err
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n < 1 {
		return Ref{}, errors.Wrapf(ErrInvalidID, "%q", id)
	}
	return Ref{Type: t, ID: n}, nil
}

// ParseRef parses a key in the "<type>:<id>" format
func ParseRef(key string) (Ref, error) {
	typ, id, ok := strings.Cut(key, ":")
	if !ok {
		return Ref{}, errors.Errorf("malformed entity key %q", key)
	}
	return NewRef(typ, id)
}

// Config is the feed aggregation configuration of an entity
type Config struct {
	URLs       []string `json:"urls"`
	Limit      int      `json:"limit"`
	Order      Order    `json:"order"`
	TTL        int      `json:"ttl"`
	ShowImage  bool     `json:"show_image"`
	ShowSource bool     `json:"show_source"`
}

// Defaults returns the configuration of an entity nobody configured yet
func Defaults() Config {
	return Config{
		Limit:      DefaultLimit,
		Order:      DefaultOrder,
		TTL:        DefaultTTL,
		ShowImage:  true,
		ShowSource: true,
	}
}

// Normalize clamps every field into its valid range and drops unusable URLs. An unset limit gets DefaultLimit.
func (c Config) Normalize() Config {
	out := c
	out.URLs = SanitizeURLs(c.URLs)
	switch {
	case c.Limit == 0:
		out.Limit = DefaultLimit
	case c.Limit < 1:
		out.Limit = 1
	}
	if c.Order != Ascending && c.Order != Descending {
		out.Order = DefaultOrder
	}
	switch {
	case c.TTL < 0:
		out.TTL = 0
	case c.TTL > MaxTTL:
		out.TTL = MaxTTL
	}
	return out
}

// SanitizeURLs trims the given URLs and keeps the absolute http(s) ones, in order and without duplicates
func SanitizeURLs(raw []string) []string {
	urls := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		u, err := url.ParseRequestURI(r)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		s := u.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		urls = append(urls, s)
	}
	return urls
}

// SplitURLs splits a newline separated list of URLs and sanitizes it
func SplitURLs(raw string) []string {
	return SanitizeURLs(strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n"))
}

// Repository is an interface for the entity configuration storage
type Repository interface {
	// Config returns the configuration of ref, Defaults() without URLs if there is none
	Config(ctx context.Context, ref Ref) (Config, error)
	Save(ctx context.Context, ref Ref, c Config) error
	List(ctx context.Context) ([]Ref, error)
}
