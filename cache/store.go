package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/sync/singleflight"
)

// Lookup outcomes reported to an Observer
const (
	Hit   = "hit"
	Miss  = "miss"
	Error = "error"
)

// Observer is notified about the outcome of every cache lookup
type Observer func(outcome string)

// Option configures a Store
type Option func(*Store)

// WithClock replaces the wall clock expiry is computed with
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithObserver registers a function that gets called for every lookup
func WithObserver(o Observer) Option {
	return func(s *Store) {
		s.observe = o
	}
}

// WithSingleFlight makes concurrent misses on the same key share one computation
func WithSingleFlight() Option {
	return func(s *Store) {
		s.group = &singleflight.Group{}
	}
}

// Store is a lazily populated cache with a TTL per entry on top of a Repository
type Store struct {
	l       log.Logger
	r       Repository
	now     func() time.Time
	observe Observer
	group   *singleflight.Group

	mu          sync.Mutex
	generations map[string]uint64
}

// NewStore initializes a new cache store
func NewStore(l log.Logger, r Repository, opts ...Option) *Store {
	s := &Store{
		l:       l,
		r:       r,
		now:     time.Now,
		observe:     func(string) {},
		generations: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCompute returns the unexpired result stored for key. On a miss compute is called and its result is stored
// for ttl, a ttl of zero stores an entry that is already expired. Failures of the underlying repository are logged
// and never returned, a failed read counts as a miss. compute does not inherit the cancellation of ctx, a caller
// going away must not end up as a cached result.
func (s *Store) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(ctx context.Context) Result) Result {
	if res, ok := s.lookup(ctx, key); ok {
		s.observe(Hit)
		return res
	}
	s.observe(Miss)

	if s.group == nil {
		return s.populate(ctx, key, ttl, compute)
	}
	v, _, _ := s.group.Do(key, func() (interface{}, error) {
		return s.populate(ctx, key, ttl, compute), nil
	})
	return v.(Result)
}

// Invalidate deletes the entry for key, the next GetOrCompute recomputes it
func (s *Store) Invalidate(ctx context.Context, key string) error {
	s.mu.Lock()
	s.generations[key]++
	s.mu.Unlock()
	if s.group != nil {
		s.group.Forget(key)
	}
	if err := s.r.Delete(ctx, key); err != nil {
		level.Error(s.l).Log("msg", "error invalidating cache entry", "key", key, "err", err)
		return err
	}
	level.Debug(s.l).Log("msg", "cache entry invalidated", "key", key)
	return nil
}

// Purge removes all expired entries from the repository
func (s *Store) Purge(ctx context.Context) (int64, error) {
	return s.r.DeleteExpired(ctx, s.now())
}

func (s *Store) lookup(ctx context.Context, key string) (Result, bool) {
	entry, ok, err := s.r.Get(ctx, key)
	if err != nil {
		s.observe(Error)
		level.Error(s.l).Log("msg", "error reading cache entry, treating as miss", "key", key, "err", err)
		return Result{}, false
	}
	if !ok || entry.Expired(s.now()) {
		level.Debug(s.l).Log("msg", "cache miss", "key", key, "expired", ok)
		return Result{}, false
	}

	var res Result
	if err := json.Unmarshal([]byte(entry.Value), &res); err != nil {
		s.observe(Error)
		level.Error(s.l).Log("msg", "error decoding cache entry, treating as miss", "key", key, "err", err)
		return Result{}, false
	}
	level.Debug(s.l).Log("msg", "cache hit", "key", key)
	return res, true
}

func (s *Store) generation(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[key]
}

func (s *Store) populate(ctx context.Context, key string, ttl time.Duration, compute func(ctx context.Context) Result) Result {
	ctx = context.WithoutCancel(ctx)
	gen := s.generation(key)
	res := compute(ctx)

	// An invalidation during compute means res may be built from a stale configuration
	if s.generation(key) != gen {
		level.Debug(s.l).Log("msg", "cache entry invalidated while computing, not storing", "key", key)
		return res
	}

	if ttl < 0 {
		ttl = 0
	}
	b, err := json.Marshal(res)
	if err != nil {
		level.Error(s.l).Log("msg", "error encoding cache entry", "key", key, "err", err)
		return res
	}
	entry := Entry{
		Key:       key,
		Value:     string(b),
		ExpiresAt: s.now().Add(ttl).UnixMilli(),
	}
	if err := s.r.Set(ctx, entry); err != nil {
		s.observe(Error)
		level.Error(s.l).Log("msg", "error writing cache entry", "key", key, "err", err)
	}
	return res
}
