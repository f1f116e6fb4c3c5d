// Package resolve maps user-facing identifiers (tickers, coin names, market
// slugs, condition ids) to provider-canonical keys, caching the result so
// repeated lookups do not hit the provider's search endpoints.
package resolve

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/quote-gateway/internal/cache"
	"github.com/rickgao/quote-gateway/internal/metrics"
	"github.com/rickgao/quote-gateway/internal/model"
	"github.com/rickgao/quote-gateway/internal/provider"
)

// Config holds resolution cache policy. Resolutions are far more stable than
// quotes, so the positive TTL is long; NotFound results are cached briefly so
// a typo hammered in a loop does not hammer the provider.
type Config struct {
	TTL         time.Duration
	NegativeTTL time.Duration
	Clock       func() time.Time
}

// DefaultConfig returns the resolution cache defaults.
func DefaultConfig() Config {
	return Config{
		TTL:         time.Hour,
		NegativeTTL: 30 * time.Second,
	}
}

// Resolver caches identifier resolutions per source.
type Resolver struct {
	adapters map[model.Source]provider.Adapter
	store    *cache.Store[model.ResolvedIdentifier]
	cfg      Config
	logger   *slog.Logger

	negMu    sync.Mutex
	negative map[string]notFoundRecord
}

// New creates a resolver over the given adapters.
func New(adapters map[model.Source]provider.Adapter, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.NegativeTTL <= 0 {
		cfg.NegativeTTL = DefaultConfig().NegativeTTL
	}
	return &Resolver{
		adapters: adapters,
		store: cache.New[model.ResolvedIdentifier]("resolve", cache.Config{
			TTL:   cfg.TTL,
			Clock: cfg.Clock,
		}, logger, m),
		cfg:      cfg,
		logger:   logger,
		negative: make(map[string]notFoundRecord),
	}
}

// notFoundMarker is cached in place of a resolution so repeated misses stay
// local. Transient provider failures are never cached: an outage must not
// poison resolutions for the negative window.
type notFoundRecord struct {
	err   error
	until time.Time
}

// Resolve returns the provider-canonical key for rawInput under source.
// Hits are served from cache; misses ask the adapter and cache the outcome.
func (r *Resolver) Resolve(ctx context.Context, source model.Source, rawInput string) (model.ResolvedIdentifier, error) {
	adapter, ok := r.adapters[source]
	if !ok {
		return model.ResolvedIdentifier{}, &provider.ValidationError{
			Source: source,
			Field:  "source",
			Reason: "no adapter configured",
		}
	}

	key := cache.Key(source, rawInput)

	r.negMu.Lock()
	if rec, ok := r.negative[key]; ok {
		if r.now().Before(rec.until) {
			r.negMu.Unlock()
			return model.ResolvedIdentifier{}, rec.err
		}
		delete(r.negative, key)
	}
	r.negMu.Unlock()

	resolved, err := r.store.Get(ctx, key, func(ctx context.Context) (model.ResolvedIdentifier, error) {
		providerKey, err := adapter.Resolve(ctx, rawInput)
		if err != nil {
			return model.ResolvedIdentifier{}, err
		}
		return model.ResolvedIdentifier{
			RawInput:    rawInput,
			ProviderKey: providerKey,
			Source:      source,
		}, nil
	})
	if err != nil {
		if provider.IsNotFound(err) {
			r.negMu.Lock()
			r.negative[key] = notFoundRecord{err: err, until: r.now().Add(r.cfg.NegativeTTL)}
			r.negMu.Unlock()
		}
		return model.ResolvedIdentifier{}, err
	}
	return resolved, nil
}

func (r *Resolver) now() time.Time {
	if r.cfg.Clock != nil {
		return r.cfg.Clock()
	}
	return time.Now()
}
