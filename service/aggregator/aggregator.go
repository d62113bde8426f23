package aggregator

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/dewey/feed-aggregator/entity"
	"github.com/dewey/feed-aggregator/feed"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ErrAllFeedsFailed is returned if not a single configured feed could be fetched
var ErrAllFeedsFailed = errors.New("all feeds failed")

// Aggregator merges the items of several feeds into one list ordered by date
type Aggregator struct {
	l   log.Logger
	fr  feed.Repository
	m   *Metrics
	now func() time.Time
}

// NewAggregator initializes a new aggregator. m may be nil.
func NewAggregator(l log.Logger, fr feed.Repository, m *Metrics) *Aggregator {
	return &Aggregator{
		l:   l,
		fr:  fr,
		m:   m,
		now: time.Now,
	}
}

// Aggregate fetches all feeds of cfg concurrently and returns their normalized items, sorted by date and capped at
// cfg.Limit. Feeds that fail are logged and skipped. Only if every feed failed ErrAllFeedsFailed is returned.
func (a *Aggregator) Aggregate(ctx context.Context, cfg entity.Config) ([]feed.Item, error) {
	if len(cfg.URLs) == 0 {
		return []feed.Item{}, nil
	}
	limit := cfg.Limit
	if limit < 1 {
		limit = 1
	}

	perFeed := make([][]feed.Item, len(cfg.URLs))
	var failed int32

	var g errgroup.Group
	g.SetLimit(len(cfg.URLs))
	for i, u := range cfg.URLs {
		i, u := i, u
		g.Go(func() error {
			f, err := a.fr.Entries(ctx, u, limit)
			if err != nil {
				atomic.AddInt32(&failed, 1)
				a.m.feedFetched(false)
				level.Warn(a.l).Log("msg", "skipping feed", "feed_url", u, "err", err)
				return nil
			}
			a.m.feedFetched(true)

			src := feed.NewSource(f, cfg.ShowImage, cfg.ShowSource)
			now := a.now()
			entries := f.Entries
			if len(entries) > limit {
				entries = entries[:limit]
			}
			items := make([]feed.Item, 0, len(entries))
			for _, e := range entries {
				items = append(items, feed.Normalize(e, src, now))
			}
			perFeed[i] = items
			return nil
		})
	}
	// Every goroutine swallows its error, Wait only synchronizes
	_ = g.Wait()

	if int(failed) == len(cfg.URLs) {
		return nil, errors.Wrapf(ErrAllFeedsFailed, "%d feeds", len(cfg.URLs))
	}

	all := make([]feed.Item, 0, len(cfg.URLs)*limit)
	for _, items := range perFeed {
		all = append(all, items...)
	}

	if cfg.Order == entity.Ascending {
		sort.SliceStable(all, func(i, j int) bool { return all[i].Date < all[j].Date })
	} else {
		sort.SliceStable(all, func(i, j int) bool { return all[i].Date > all[j].Date })
	}

	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
