package feed

import (
	"context"
	"net/http"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/mmcdole/gofeed"
	"github.com/pkg/errors"
)

// DefaultTimeout bounds a single feed request
const DefaultTimeout = 10 * time.Second

type repository struct {
	l         log.Logger
	c         *http.Client
	userAgent string
}

// NewRepository initializes a new feed repository. A nil client gets one with DefaultTimeout.
func NewRepository(l log.Logger, c *http.Client, userAgent string) *repository {
	if c == nil {
		c = &http.Client{Timeout: DefaultTimeout}
	}
	return &repository{
		l:         l,
		c:         c,
		userAgent: userAgent,
	}
}

// Entries fetches feedURL and returns at most limit entries. A limit below 1 returns all entries.
func (s *repository) Entries(ctx context.Context, feedURL string, limit int) (*Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.c.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetching feed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Errorf("unexpected status code %d", resp.StatusCode)
	}

	parsed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "parsing feed")
	}

	items := parsed.Items
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	f := &Feed{
		URL:     feedURL,
		Title:   parsed.Title,
		Entries: make([]Entry, 0, len(items)),
	}
	for _, item := range items {
		if item == nil {
			continue
		}
		f.Entries = append(f.Entries, toEntry(item))
	}
	level.Debug(s.l).Log("msg", "fetched feed", "feed_url", feedURL, "entries", len(f.Entries), "available", len(parsed.Items))
	return f, nil
}

func toEntry(item *gofeed.Item) Entry {
	e := Entry{
		Title:       item.Title,
		Link:        item.Link,
		Description: item.Description,
		Content:     item.Content,
	}
	if e.Link == "" && len(item.Links) > 0 {
		e.Link = item.Links[0]
	}

	// Atom feeds often only carry an updated date
	if item.PublishedParsed != nil {
		e.Published = item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		e.Published = item.UpdatedParsed
	}

	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" {
			e.EnclosureURL = enc.URL
			break
		}
	}
	if e.EnclosureURL == "" && item.Image != nil {
		e.EnclosureURL = item.Image.URL
	}
	return e
}
