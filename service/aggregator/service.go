package aggregator

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/dewey/feed-aggregator/cache"
	"github.com/dewey/feed-aggregator/entity"
	"github.com/dewey/feed-aggregator/feed"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

// Service is the entry point for rendering and configuration collaborators
type Service struct {
	l         log.Logger
	a         *Aggregator
	cs        *cache.Store
	er        entity.Repository
	hookToken string
}

// NewService initializes a new aggregator service
func NewService(l log.Logger, a *Aggregator, cs *cache.Store, er entity.Repository, hookToken string) *Service {
	return &Service{
		l:         l,
		a:         a,
		cs:        cs,
		er:        er,
		hookToken: hookToken,
	}
}

// Items returns the aggregated items of an entity, served from the cache while it is fresh. The configuration is
// read on every call.
func (s *Service) Items(ctx context.Context, ref entity.Ref) ([]feed.Item, entity.Config, error) {
	cfg, err := s.er.Config(ctx, ref)
	if err != nil {
		return nil, entity.Config{}, errors.Wrap(err, "reading entity config")
	}
	items, err := s.ItemsWithConfig(ctx, ref, cfg)
	return items, cfg, err
}

// ItemsWithConfig is Items for callers that already hold the configuration of the entity
func (s *Service) ItemsWithConfig(ctx context.Context, ref entity.Ref, cfg entity.Config) ([]feed.Item, error) {
	ttl := time.Duration(min(cfg.TTL, entity.MaxTTL)) * time.Second
	res := s.cs.GetOrCompute(ctx, ref.Key(), ttl, func(ctx context.Context) cache.Result {
		items, err := s.a.Aggregate(ctx, cfg)
		if err != nil {
			level.Error(s.l).Log("msg", "aggregation failed", "entity", ref, "err", err)
			return cache.Result{Error: err.Error()}
		}
		level.Info(s.l).Log("msg", "aggregated feeds", "entity", ref, "feeds", len(cfg.URLs), "items", len(items))
		return cache.Result{Items: items}
	})
	if res.Failed() {
		return nil, ErrAllFeedsFailed
	}
	if res.Items == nil {
		return []feed.Item{}, nil
	}
	return res.Items, nil
}

// Invalidate drops the cached items of an entity, the next read aggregates again
func (s *Service) Invalidate(ctx context.Context, ref entity.Ref) error {
	return errors.Wrapf(s.cs.Invalidate(ctx, ref.Key()), "invalidating %s", ref)
}

// SaveConfig stores the configuration of an entity and drops its cached items
func (s *Service) SaveConfig(ctx context.Context, ref entity.Ref, cfg entity.Config) error {
	if err := s.er.Save(ctx, ref, cfg); err != nil {
		return err
	}
	return s.Invalidate(ctx, ref)
}

// ValidToken checks if the given token is a valid token. Only we can change configurations or refresh caches.
func (s *Service) ValidToken(token string) bool {
	return token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(s.hookToken)) == 1
}
