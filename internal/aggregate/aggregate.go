// Package aggregate assembles the cross-source market overview and the
// top-movers ranking. Each source is fetched concurrently; a failing source
// is omitted from the result rather than failing the aggregate.
package aggregate

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/quote-gateway/internal/cache"
	"github.com/rickgao/quote-gateway/internal/metrics"
	"github.com/rickgao/quote-gateway/internal/model"
	"github.com/rickgao/quote-gateway/internal/provider"
)

// Config holds overview cache policy.
type Config struct {
	TTL   time.Duration
	Clock func() time.Time
}

// Aggregator fans overview requests out to every adapter and merges the
// results.
type Aggregator struct {
	adapters map[model.Source]provider.Adapter
	store    *cache.Store[[]model.Quote]
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// New creates an aggregator over the given adapters.
func New(adapters map[model.Source]provider.Adapter, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	return &Aggregator{
		adapters: adapters,
		store: cache.New[[]model.Quote]("overview", cache.Config{
			TTL:   cfg.TTL,
			Clock: cfg.Clock,
		}, logger, m),
		logger:  logger,
		metrics: m,
	}
}

// Overview returns the merged overview across all sources. Per-source
// failures are logged and omitted; the call itself never fails on a single
// source. Repeat calls within the TTL are served from cache, and concurrent
// expired calls share one rebuild.
func (a *Aggregator) Overview(ctx context.Context) ([]model.Quote, error) {
	return a.store.Get(ctx, "all", func(ctx context.Context) ([]model.Quote, error) {
		return a.build(ctx)
	})
}

func (a *Aggregator) build(ctx context.Context) ([]model.Quote, error) {
	type result struct {
		source model.Source
		quotes []model.Quote
	}

	results := make(chan result, len(a.adapters))
	g, ctx := errgroup.WithContext(ctx)

	for source, adapter := range a.adapters {
		g.Go(func() error {
			quotes, err := adapter.Overview(ctx)
			if err != nil {
				// Omission, not propagation: the overview degrades
				// per source.
				a.logger.Warn("overview source failed", "source", source, "err", err)
				a.metrics.ProviderRequest(source, "error")
				return nil
			}
			a.metrics.ProviderRequest(source, "ok")
			results <- result{source: source, quotes: quotes}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	close(results)

	merged := make([]model.Quote, 0, 16)
	for r := range results {
		merged = append(merged, r.quotes...)
	}

	// Stable presentation order: by source, then symbol.
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Source != merged[j].Source {
			return merged[i].Source < merged[j].Source
		}
		return merged[i].Symbol < merged[j].Symbol
	})
	return merged, nil
}

// TopMovers ranks overview quotes by movement magnitude. Quotes carrying a
// 24h change rank by |change_24h|; everything else falls back to |value|.
// Ties order by symbol ascending. A zero or negative limit means no cap.
// Pass an empty source to rank across all sources.
func (a *Aggregator) TopMovers(ctx context.Context, source model.Source, limit int) ([]model.Quote, error) {
	quotes, err := a.Overview(ctx)
	if err != nil {
		return nil, err
	}

	var filtered []model.Quote
	for _, q := range quotes {
		if source != "" && q.Source != source {
			continue
		}
		filtered = append(filtered, q)
	}

	sort.Slice(filtered, func(i, j int) bool {
		mi, mj := magnitude(filtered[i]), magnitude(filtered[j])
		if mi != mj {
			return mi > mj
		}
		return filtered[i].Symbol < filtered[j].Symbol
	})

	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

func magnitude(q model.Quote) float64 {
	if change, ok := q.Change24h(); ok {
		return math.Abs(change)
	}
	return math.Abs(q.Value)
}

// Refresh rebuilds the overview immediately, bypassing the TTL.
func (a *Aggregator) Refresh(ctx context.Context) ([]model.Quote, error) {
	return a.store.Refresh(ctx, "all", func(ctx context.Context) ([]model.Quote, error) {
		return a.build(ctx)
	})
}
