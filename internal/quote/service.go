// Package quote is the read path: it resolves user input to a provider key,
// then serves the quote through the TTL cache. Everything downstream of the
// HTTP handlers and the background refresher goes through this service.
package quote

import (
	"context"
	"log/slog"
	"time"

	"github.com/rickgao/quote-gateway/internal/cache"
	"github.com/rickgao/quote-gateway/internal/metrics"
	"github.com/rickgao/quote-gateway/internal/model"
	"github.com/rickgao/quote-gateway/internal/provider"
	"github.com/rickgao/quote-gateway/internal/resolve"
)

// Config holds quote cache policy.
type Config struct {
	TTL               time.Duration
	ServeStaleOnError bool
	RateLimitWindow   time.Duration
	SweepInterval     time.Duration
	Clock             func() time.Time
}

// DefaultConfig returns the quote cache defaults.
func DefaultConfig() Config {
	return Config{
		TTL:             10 * time.Second,
		RateLimitWindow: 30 * time.Second,
		SweepInterval:   time.Minute,
	}
}

// Service serves normalized quotes across every configured source.
type Service struct {
	adapters map[model.Source]provider.Adapter
	resolver *resolve.Resolver
	quotes   *cache.Store[model.Quote]
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// New creates the quote service.
func New(adapters map[model.Source]provider.Adapter, resolver *resolve.Resolver, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	return &Service{
		adapters: adapters,
		resolver: resolver,
		quotes: cache.New[model.Quote]("quotes", cache.Config{
			TTL:               cfg.TTL,
			SweepInterval:     cfg.SweepInterval,
			ServeStaleOnError: cfg.ServeStaleOnError,
			RateLimitWindow:   cfg.RateLimitWindow,
			Clock:             cfg.Clock,
		}, logger, m),
		logger:  logger,
		metrics: m,
	}
}

// Start launches the cache sweep.
func (s *Service) Start(ctx context.Context) error { return s.quotes.Start(ctx) }

// Stop shuts the cache sweep down.
func (s *Service) Stop(ctx context.Context) error { return s.quotes.Stop(ctx) }

// Quote returns the current quote for rawInput under source, served from
// cache when live. Concurrent callers for the same expired symbol share one
// provider fetch.
func (s *Service) Quote(ctx context.Context, source model.Source, rawInput string) (model.Quote, error) {
	adapter, resolved, err := s.resolveInput(ctx, source, rawInput)
	if err != nil {
		return model.Quote{}, err
	}

	key := cache.Key(source, resolved.ProviderKey)
	q, err := s.quotes.Get(ctx, key, func(ctx context.Context) (model.Quote, error) {
		return s.fetch(ctx, adapter, resolved.ProviderKey)
	})
	if err != nil {
		return model.Quote{}, err
	}
	return q, nil
}

// History returns daily history for the last days. History is served
// straight from the provider: it changes once a day and providers cache it
// themselves, so a local TTL would only add staleness.
func (s *Service) History(ctx context.Context, source model.Source, rawInput string, days int) ([]model.HistoryPoint, error) {
	adapter, resolved, err := s.resolveInput(ctx, source, rawInput)
	if err != nil {
		return nil, err
	}
	return adapter.FetchHistory(ctx, resolved.ProviderKey, days)
}

// Refresh force-fetches a quote, bypassing the TTL, and reports both the new
// quote and the previously cached one so callers can detect change.
func (s *Service) Refresh(ctx context.Context, source model.Source, rawInput string) (cur model.Quote, prev *model.Quote, err error) {
	adapter, resolved, err := s.resolveInput(ctx, source, rawInput)
	if err != nil {
		return model.Quote{}, nil, err
	}

	key := cache.Key(source, resolved.ProviderKey)
	if old, ok := s.quotes.Peek(key); ok {
		prev = &old
	}

	cur, err = s.quotes.Refresh(ctx, key, func(ctx context.Context) (model.Quote, error) {
		return s.fetch(ctx, adapter, resolved.ProviderKey)
	})
	if err != nil {
		return model.Quote{}, prev, err
	}
	return cur, prev, nil
}

func (s *Service) resolveInput(ctx context.Context, source model.Source, rawInput string) (provider.Adapter, model.ResolvedIdentifier, error) {
	adapter, ok := s.adapters[source]
	if !ok {
		return nil, model.ResolvedIdentifier{}, &provider.ValidationError{
			Source: source,
			Field:  "source",
			Reason: "no adapter configured",
		}
	}
	resolved, err := s.resolver.Resolve(ctx, source, rawInput)
	if err != nil {
		return nil, model.ResolvedIdentifier{}, err
	}
	return adapter, resolved, nil
}

func (s *Service) fetch(ctx context.Context, adapter provider.Adapter, providerKey string) (model.Quote, error) {
	q, err := adapter.FetchQuote(ctx, providerKey)
	if err != nil {
		s.metrics.ProviderRequest(adapter.Source(), outcome(err))
		return model.Quote{}, err
	}
	s.metrics.ProviderRequest(adapter.Source(), "ok")
	return q, nil
}

func outcome(err error) string {
	switch {
	case provider.IsNotFound(err):
		return "not_found"
	case provider.IsTransient(err):
		return "transient"
	case provider.IsValidation(err):
		return "validation"
	default:
		if _, ok := provider.IsRateLimited(err); ok {
			return "rate_limited"
		}
		return "error"
	}
}
