// Package cache implements the gateway's TTL quote store with single-flight
// fetch deduplication.
//
// The central correctness property: concurrent callers for the same expired
// key block on one in-flight fetch and all observe the same outcome. Within
// one key, writes are serialized by the single flight; across keys nothing
// is ordered. Entries are owned exclusively by the Store and handed out by
// value, so no caller can observe a torn Quote under concurrent refresh.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rickgao/quote-gateway/internal/metrics"
	"github.com/rickgao/quote-gateway/internal/model"
	"github.com/rickgao/quote-gateway/internal/provider"
)

// FetchFunc produces a fresh value for a key on cache miss.
type FetchFunc[V any] func(ctx context.Context) (V, error)

// Config holds one store's policy.
type Config struct {
	// TTL is how long an entry is served without refetching.
	TTL time.Duration

	// MaxAge is when the sweep discards an entry entirely (stale entries
	// younger than MaxAge stay around for serve-stale). Zero means 10×TTL.
	MaxAge time.Duration

	// SweepInterval drives the periodic eviction loop; zero disables it
	// (expiry is still checked lazily on every read).
	SweepInterval time.Duration

	// ServeStaleOnError, when set, serves the previous entry on a failed
	// refetch instead of propagating the error. NotFound is never masked
	// by a stale entry. This is the documented fallback; the default
	// (false) propagates.
	ServeStaleOnError bool

	// RateLimitWindow is the negative-cache window after an upstream 429
	// when the provider gave no Retry-After hint.
	RateLimitWindow time.Duration

	// Clock overrides time.Now in tests.
	Clock func() time.Time
}

type entry[V any] struct {
	value     V
	fetchedAt time.Time
}

type negEntry struct {
	until time.Time
	err   error
}

// Store is a TTL cache with single-flight fetch deduplication.
type Store[V any] struct {
	name    string
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	sf singleflight.Group

	mu       sync.RWMutex
	entries  map[string]entry[V]
	negative map[string]negEntry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a store. The name labels log lines and metrics.
func New[V any](name string, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Store[V] {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 10 * cfg.TTL
	}
	return &Store[V]{
		name:     name,
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		entries:  make(map[string]entry[V]),
		negative: make(map[string]negEntry),
	}
}

// Key builds the canonical cache key for a source-scoped identifier.
func Key(source model.Source, id string) string {
	return string(source) + ":" + id
}

// Start launches the periodic sweep, if configured.
func (s *Store[V]) Start(ctx context.Context) error {
	if s.cfg.SweepInterval <= 0 {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.sweepLoop()
	s.logger.Debug("cache sweep started", "cache", s.name, "interval", s.cfg.SweepInterval)
	return nil
}

// Stop shuts down the sweep loop.
func (s *Store[V]) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get returns the live entry for key, or performs a single-flight fetch.
// Concurrent callers for the same expired key share one fetch and one
// outcome. A negatively cached rate limit is returned without touching the
// provider until its window lapses.
func (s *Store[V]) Get(ctx context.Context, key string, fetch FetchFunc[V]) (V, error) {
	now := s.cfg.Clock()

	s.mu.RLock()
	e, ok := s.entries[key]
	neg, negOK := s.negative[key]
	s.mu.RUnlock()

	if ok && now.Sub(e.fetchedAt) < s.cfg.TTL {
		s.metrics.CacheHit(s.name)
		return e.value, nil
	}

	if negOK && now.Before(neg.until) {
		if ok && s.cfg.ServeStaleOnError {
			return e.value, nil
		}
		var zero V
		return zero, neg.err
	}

	s.metrics.CacheMiss(s.name)
	return s.fetchShared(ctx, key, fetch, false)
}

// Refresh fetches key bypassing the TTL, writes the result, and returns it.
// It still coalesces with any in-flight fetch for the same key.
func (s *Store[V]) Refresh(ctx context.Context, key string, fetch FetchFunc[V]) (V, error) {
	return s.fetchShared(ctx, key, fetch, true)
}

// Peek returns the cached value for key, live or stale, without fetching.
func (s *Store[V]) Peek(key string) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e.value, ok
}

// Len reports the number of resident entries.
func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store[V]) fetchShared(ctx context.Context, key string, fetch FetchFunc[V], force bool) (V, error) {
	v, err, _ := s.sf.Do(key, func() (any, error) {
		// A waiter that lost the race to an earlier flight re-checks
		// freshness instead of refetching.
		if !force {
			s.mu.RLock()
			e, ok := s.entries[key]
			s.mu.RUnlock()
			if ok && s.cfg.Clock().Sub(e.fetchedAt) < s.cfg.TTL {
				return e.value, nil
			}
		}

		val, err := fetch(ctx)
		if err != nil {
			return s.fetchFailed(key, err)
		}

		s.mu.Lock()
		s.entries[key] = entry[V]{value: val, fetchedAt: s.cfg.Clock()}
		delete(s.negative, key)
		s.mu.Unlock()
		return val, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// fetchFailed applies the failure policy: negative-cache rate limits, then
// serve stale when configured, otherwise propagate to every waiter.
func (s *Store[V]) fetchFailed(key string, err error) (any, error) {
	if hint, ok := provider.IsRateLimited(err); ok {
		window := s.cfg.RateLimitWindow
		if hint > 0 {
			window = hint
		}
		if window > 0 {
			s.mu.Lock()
			s.negative[key] = negEntry{until: s.cfg.Clock().Add(window), err: err}
			s.mu.Unlock()
		}
	}

	if s.cfg.ServeStaleOnError && !provider.IsNotFound(err) {
		s.mu.RLock()
		e, ok := s.entries[key]
		s.mu.RUnlock()
		if ok {
			s.logger.Warn("serving stale entry after fetch failure",
				"cache", s.name,
				"key", key,
				"err", err,
			)
			return e.value, nil
		}
	}

	return nil, err
}

func (s *Store[V]) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep bounds memory for keys nobody queries anymore.
func (s *Store[V]) sweep() {
	now := s.cfg.Clock()
	removed := 0

	s.mu.Lock()
	for key, e := range s.entries {
		if now.Sub(e.fetchedAt) > s.cfg.MaxAge {
			delete(s.entries, key)
			removed++
		}
	}
	for key, neg := range s.negative {
		if !now.Before(neg.until) {
			delete(s.negative, key)
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		s.logger.Debug("cache sweep evicted entries", "cache", s.name, "removed", removed)
	}
}
