package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/Sternrassler/request-cache/pkg/clock"
)

// Fetcher retrieves the payload for a request key.
type Fetcher interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, key string) ([]byte, error)

// Fetch calls f(ctx, key).
func (f FetcherFunc) Fetch(ctx context.Context, key string) ([]byte, error) {
	return f(ctx, key)
}

// Cache serves payloads from a Store while they are fresh under its
// ExpirationPolicy, and refreshes them through a Fetcher otherwise.
//
// Cache is safe for concurrent use. Concurrent misses for the same key share a
// single fetch; no lock is held while the fetch (including retry delays) runs.
type Cache struct {
	store   Store
	policy  ExpirationPolicy
	fetcher Fetcher
	clock   clock.Clock
	logger  zerolog.Logger

	flightTimeout time.Duration
	storeLabel    string
	flights       singleflight.Group
}

// flightResult is what a shared refresh hands to every waiting caller.
type flightResult struct {
	payload []byte
	hit     bool
}

// Option configures a Cache.
type Option func(*Cache)

// WithStore replaces the default MemoryStore.
func WithStore(store Store) Option {
	return func(c *Cache) {
		c.store = store
	}
}

// WithClock replaces the real clock used to stamp and expire entries.
func WithClock(clk clock.Clock) Option {
	return func(c *Cache) {
		c.clock = clk
	}
}

// WithLogger sets the logger used by the cache.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithFlightTimeout bounds a shared refresh, retry delays included. Zero
// leaves it bounded only by the Fetcher.
func WithFlightTimeout(d time.Duration) Option {
	return func(c *Cache) {
		c.flightTimeout = d
	}
}

// New creates a Cache in front of fetcher using policy.
func New(fetcher Fetcher, policy ExpirationPolicy, opts ...Option) (*Cache, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if policy == nil {
		return nil, fmt.Errorf("expiration policy is required")
	}

	c := &Cache{
		store:   NewMemoryStore(),
		policy:  policy,
		fetcher: fetcher,
		clock:   clock.Real(),
		logger:  log.With().Str("component", "request-cache").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if c.clock == nil {
		return nil, fmt.Errorf("clock cannot be nil")
	}
	if c.flightTimeout < 0 {
		return nil, fmt.Errorf("flight timeout cannot be negative")
	}
	c.storeLabel = storeLabel(c.store)

	return c, nil
}

// Policy returns the cache's expiration policy.
func (c *Cache) Policy() ExpirationPolicy {
	return c.policy
}

// Clock returns the clock used to stamp and expire entries.
func (c *Cache) Clock() clock.Clock {
	return c.clock
}

// Request returns the payload for key. A fresh entry is returned without
// touching the network. Otherwise the Fetcher is called; on success the new
// payload replaces the stored entry, on failure the error is returned and the
// store is left as it was.
//
// Concurrent callers for the same key share one refresh. The refresh does not
// inherit the cancellation of the caller that started it, so callers still
// waiting get its result. A caller whose own ctx ends stops waiting and
// receives ctx.Err(). Returned payloads are shared and must not be modified.
func (c *Cache) Request(ctx context.Context, key string) ([]byte, error) {
	payload, _, err := c.RequestWithStatus(ctx, key)
	return payload, err
}

// RequestWithStatus is Request that also reports whether the payload came
// from a fresh entry without a fetch.
func (c *Cache) RequestWithStatus(ctx context.Context, key string) ([]byte, bool, error) {
	if entry, fresh := c.lookup(ctx, key); fresh {
		CacheHits.Inc()
		c.logger.Debug().Str("key", key).Msg("Cache hit")
		return entry.Payload, true, nil
	}

	flight := c.flights.DoChan(key, func() (interface{}, error) {
		flightCtx := context.WithoutCancel(ctx)
		if c.flightTimeout > 0 {
			var cancel context.CancelFunc
			flightCtx, cancel = context.WithTimeout(flightCtx, c.flightTimeout)
			defer cancel()
		}
		return c.refresh(flightCtx, key)
	})

	select {
	case <-ctx.Done():
		c.logger.Debug().Str("key", key).Msg("Caller stopped waiting for refresh")
		return nil, false, ctx.Err()
	case res := <-flight:
		if res.Shared {
			CoalescedRequests.Inc()
		}
		if res.Err != nil {
			return nil, false, res.Err
		}
		r := res.Val.(flightResult)
		return r.payload, r.hit, nil
	}
}

// Lookup returns the stored entry for key and whether it is fresh, without
// fetching. It returns ErrCacheMiss if no entry exists.
func (c *Cache) Lookup(ctx context.Context, key string) (*Entry, bool, error) {
	entry, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return entry, !c.policy.Expired(entry.StoredAt, c.clock.Now()), nil
}

// lookup reads key from the store. Store errors are logged and treated as a
// miss so a broken shared store degrades to fetching.
func (c *Cache) lookup(ctx context.Context, key string) (*Entry, bool) {
	entry, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			CacheErrors.WithLabelValues("get").Inc()
			c.logger.Warn().Err(err).Str("key", key).Msg("Cache get error")
		}
		return nil, false
	}
	return entry, !c.policy.Expired(entry.StoredAt, c.clock.Now())
}

func (c *Cache) refresh(ctx context.Context, key string) (flightResult, error) {
	// Another flight may have stored a fresh entry since the caller's lookup.
	entry, fresh := c.lookup(ctx, key)
	if fresh {
		CacheHits.Inc()
		return flightResult{payload: entry.Payload, hit: true}, nil
	}

	reason := "absent"
	if entry != nil {
		reason = "expired"
	}
	CacheMisses.WithLabelValues(reason).Inc()
	c.logger.Debug().
		Str("key", key).
		Str("reason", reason).
		Str("policy", c.policy.String()).
		Msg("Cache miss")

	payload, err := c.fetcher.Fetch(ctx, key)
	if err != nil {
		FetchFailures.Inc()
		c.logger.Error().Err(err).Str("key", key).Msg("Cache refresh failed")
		return flightResult{}, err
	}

	newEntry := &Entry{
		StoredAt: c.clock.Now(),
		Payload:  payload,
	}
	if err := c.store.Set(ctx, key, newEntry); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to store fetched payload")
		return flightResult{payload: payload}, nil
	}

	c.updateEntriesGauge(ctx)
	c.logger.Debug().
		Str("key", key).
		Int("bytes", len(payload)).
		Msg("Cached response")

	return flightResult{payload: payload}, nil
}

func (c *Cache) updateEntriesGauge(ctx context.Context) {
	n, err := c.store.Len(ctx)
	if err != nil {
		CacheErrors.WithLabelValues("len").Inc()
		return
	}
	CacheEntries.WithLabelValues(c.storeLabel).Set(float64(n))
}

func storeLabel(s Store) string {
	switch s.(type) {
	case *MemoryStore:
		return "memory"
	case *RedisStore:
		return "redis"
	default:
		return "custom"
	}
}
