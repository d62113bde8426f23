package aggregator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dewey/feed-aggregator/entity"
	"github.com/dewey/feed-aggregator/feed"
	"github.com/go-kit/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func day(n int) *time.Time {
	t := time.Date(2024, 1, n, 0, 0, 0, 0, time.UTC)
	return &t
}

// mockRepository serves canned feeds, URLs without a feed fail
type mockRepository struct {
	mu     sync.Mutex
	feeds  map[string]*feed.Feed
	calls  map[string]int
	limits map[string]int
}

func newMockRepository(feeds ...*feed.Feed) *mockRepository {
	m := &mockRepository{
		feeds:  make(map[string]*feed.Feed),
		calls:  make(map[string]int),
		limits: make(map[string]int),
	}
	for _, f := range feeds {
		m.feeds[f.URL] = f
	}
	return m
}

func (m *mockRepository) Entries(ctx context.Context, feedURL string, limit int) (*feed.Feed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[feedURL]++
	m.limits[feedURL] = limit
	f, ok := m.feeds[feedURL]
	if !ok {
		return nil, errors.Errorf("unexpected status code %d", 404)
	}
	return f, nil
}

var (
	feedA = &feed.Feed{URL: "https://a.example.com/feed", Title: "A", Entries: []feed.Entry{
		{Title: "a1", Link: "https://a.example.com/1", Published: day(1)},
		{Title: "a3", Link: "https://a.example.com/3", Published: day(3)},
	}}
	feedB = &feed.Feed{URL: "https://b.example.com/feed", Title: "B", Entries: []feed.Entry{
		{Title: "b2", Link: "https://b.example.com/2", Published: day(2)},
	}}
	feedC = &feed.Feed{URL: "https://c.example.com/feed", Title: "C", Entries: []feed.Entry{
		{Title: "c2", Link: "https://c.example.com/2", Published: day(2)},
		{Title: "c4", Link: "https://c.example.com/4", Published: day(4)},
	}}
	feedEmpty = &feed.Feed{URL: "https://empty.example.com/feed", Title: "Empty"}
	deadURL   = "https://dead.example.com/feed"
)

func config(limit int, order entity.Order, urls ...string) entity.Config {
	cfg := entity.Defaults()
	cfg.URLs = urls
	cfg.Limit = limit
	cfg.Order = order
	return cfg
}

func titles(items []feed.Item) []string {
	out := make([]string, 0, len(items))
	for _, i := range items {
		out = append(out, i.Title)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

var aggregateTests = []struct {
	name string
	cfg  entity.Config
	out  []string
}{
	{"newest first across feeds", config(2, entity.Descending, feedA.URL, feedB.URL), []string{"a3", "b2"}},
	{"oldest first across feeds", config(2, entity.Ascending, feedA.URL, feedB.URL), []string{"a1", "b2"}},
	{"everything fits", config(10, entity.Descending, feedA.URL, feedB.URL), []string{"a3", "b2", "a1"}},
	{"ties keep input order", config(5, entity.Descending, feedB.URL, feedC.URL), []string{"c4", "b2", "c2"}},
	{"ties keep input order ascending", config(5, entity.Ascending, feedC.URL, feedB.URL), []string{"c2", "b2", "c4"}},
	{"failing feed is skipped", config(5, entity.Descending, deadURL, feedB.URL), []string{"b2"}},
	{"limit below one returns one item", config(-4, entity.Descending, feedA.URL, feedB.URL), []string{"b2"}},
	{"no urls", config(5, entity.Descending), []string{}},
	{"empty feeds are not a failure", config(5, entity.Descending, feedEmpty.URL, deadURL), []string{}},
}

func TestAggregate(t *testing.T) {
	a := NewAggregator(log.NewNopLogger(), newMockRepository(feedA, feedB, feedC, feedEmpty), nil)
	for _, tt := range aggregateTests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := a.Aggregate(context.Background(), tt.cfg)
			if err != nil {
				t.Fatalf("shouldn't get an error: %v", err)
			}
			if items == nil {
				t.Fatal("got nil, want an empty list at least")
			}
			if got := titles(items); !equal(got, tt.out) {
				t.Errorf("got %v, want %v", got, tt.out)
			}
		})
	}
}

func TestAggregateAllFailed(t *testing.T) {
	a := NewAggregator(log.NewNopLogger(), newMockRepository(), nil)
	items, err := a.Aggregate(context.Background(), config(5, entity.Descending, deadURL, "https://gone.example.com/rss"))
	if !errors.Is(err, ErrAllFeedsFailed) {
		t.Fatalf("got error %v, want %v", err, ErrAllFeedsFailed)
	}
	if items != nil {
		t.Errorf("got %v, want no items", items)
	}
}

func TestAggregateNoURLsFetchesNothing(t *testing.T) {
	fr := newMockRepository(feedA)
	a := NewAggregator(log.NewNopLogger(), fr, nil)
	if _, err := a.Aggregate(context.Background(), config(5, entity.Descending)); err != nil {
		t.Fatalf("shouldn't get an error: %v", err)
	}
	if len(fr.calls) != 0 {
		t.Errorf("got %d fetches, want none", len(fr.calls))
	}
}

func TestAggregateNormalizesPerFeed(t *testing.T) {
	undated := &feed.Feed{URL: "https://undated.example.com/feed", Entries: []feed.Entry{{Title: "<i>u</i>"}}}
	fr := newMockRepository(feedA, undated)
	a := NewAggregator(log.NewNopLogger(), fr, nil)
	fixed := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return fixed }

	cfg := config(1, entity.Descending, feedA.URL, undated.URL)
	items, err := a.Aggregate(context.Background(), cfg)
	if err != nil {
		t.Fatalf("shouldn't get an error: %v", err)
	}
	want := feed.Item{Date: fixed.Unix(), Title: "u", Link: undated.URL, Source: "undated.example.com"}
	if len(items) != 1 || items[0] != want {
		t.Errorf("got %+v, want [%+v]", items, want)
	}
	if fr.limits[feedA.URL] != 1 {
		t.Errorf("got per feed limit %d, want 1", fr.limits[feedA.URL])
	}
}

func TestAggregateHonorsDisplayFlags(t *testing.T) {
	withImage := &feed.Feed{URL: "https://img.example.com/feed", Title: "Img", Entries: []feed.Entry{
		{Title: "x", Published: day(1), EnclosureURL: "https://img.example.com/x.jpg"},
	}}
	a := NewAggregator(log.NewNopLogger(), newMockRepository(withImage), nil)

	cfg := config(5, entity.Descending, withImage.URL)
	cfg.ShowImage, cfg.ShowSource = false, false
	items, err := a.Aggregate(context.Background(), cfg)
	if err != nil {
		t.Fatalf("shouldn't get an error: %v", err)
	}
	if items[0].Image != "" || items[0].Source != "" {
		t.Errorf("got %+v, want no image and no source", items[0])
	}

	cfg.ShowImage, cfg.ShowSource = true, true
	items, err = a.Aggregate(context.Background(), cfg)
	if err != nil {
		t.Fatalf("shouldn't get an error: %v", err)
	}
	if items[0].Image != "https://img.example.com/x.jpg" || items[0].Source != "Img" {
		t.Errorf("got %+v, want image and source", items[0])
	}
}

func TestAggregateMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	a := NewAggregator(log.NewNopLogger(), newMockRepository(feedA, feedB), m)
	if _, err := a.Aggregate(context.Background(), config(5, entity.Descending, feedA.URL, feedB.URL, deadURL)); err != nil {
		t.Fatalf("shouldn't get an error: %v", err)
	}
	if got := testutil.ToFloat64(m.feedFetches.WithLabelValues("success")); got != 2 {
		t.Errorf("got %v successful fetches, want 2", got)
	}
	if got := testutil.ToFloat64(m.feedFetches.WithLabelValues("failure")); got != 1 {
		t.Errorf("got %v failed fetches, want 1", got)
	}
}
