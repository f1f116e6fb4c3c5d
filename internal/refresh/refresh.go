// Package refresh drives the background fetch cycles that feed the fan-out
// hub. Each source ticks on its own interval; a cycle re-fetches every symbol
// with active interest and emits an update event whenever a value changed.
package refresh

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/quote-gateway/internal/metrics"
	"github.com/rickgao/quote-gateway/internal/model"
)

// QuoteRefresher force-fetches one symbol and reports the superseded quote.
type QuoteRefresher interface {
	Refresh(ctx context.Context, source model.Source, rawInput string) (cur model.Quote, prev *model.Quote, err error)
}

// FilterSource exposes the union of live subscription filters.
type FilterSource interface {
	ActiveFilters() []model.Filter
}

// Config holds refresh cadence and concurrency.
type Config struct {
	// Intervals is the per-source cycle cadence.
	Intervals map[model.Source]time.Duration

	// Grace keeps a REST-read symbol in the refresh set after its last read.
	Grace time.Duration

	Concurrency int           // max concurrent fetches per cycle
	Timeout     time.Duration // per-symbol fetch timeout
}

// DefaultConfig returns per-source cadences tuned to how fast each market
// actually moves.
func DefaultConfig() Config {
	return Config{
		Intervals: map[model.Source]time.Duration{
			model.SourceCrypto: 10 * time.Second,
			model.SourceStock:  15 * time.Second,
			model.SourceEvents: 60 * time.Second,
		},
		Grace:       5 * time.Minute,
		Concurrency: 8,
		Timeout:     10 * time.Second,
	}
}

// Refresher runs one refresh loop per source.
type Refresher struct {
	cfg      Config
	svc      QuoteRefresher
	filters  FilterSource
	interest *Interest
	out      chan<- model.UpdateEvent
	logger   *slog.Logger
	metrics  *metrics.Metrics

	running map[model.Source]*atomic.Bool
	kick    map[model.Source]chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a refresher emitting update events on out.
func New(cfg Config, svc QuoteRefresher, filters FilterSource, interest *Interest, out chan<- model.UpdateEvent, logger *slog.Logger, m *metrics.Metrics) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if len(cfg.Intervals) == 0 {
		cfg.Intervals = def.Intervals
	}
	if cfg.Grace <= 0 {
		cfg.Grace = def.Grace
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	r := &Refresher{
		cfg:      cfg,
		svc:      svc,
		filters:  filters,
		interest: interest,
		out:      out,
		logger:   logger,
		metrics:  m,
		running:  make(map[model.Source]*atomic.Bool),
		kick:     make(map[model.Source]chan struct{}),
	}
	for source := range cfg.Intervals {
		r.running[source] = &atomic.Bool{}
		r.kick[source] = make(chan struct{}, 1)
	}
	return r
}

// Start launches one refresh loop per configured source.
func (r *Refresher) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	for source, interval := range r.cfg.Intervals {
		r.wg.Add(1)
		go r.run(source, interval)
	}

	r.logger.Info("refresher started",
		"sources", len(r.cfg.Intervals),
		"concurrency", r.cfg.Concurrency,
	)
	return nil
}

// Stop shuts every refresh loop down.
func (r *Refresher) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("refresher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trigger schedules an immediate cycle for source. It returns once the cycle
// is scheduled, not once it completes; false means the source is not
// configured. A trigger arriving while one is already pending coalesces.
func (r *Refresher) Trigger(source model.Source) bool {
	ch, ok := r.kick[source]
	if !ok {
		return false
	}
	select {
	case ch <- struct{}{}:
	default:
	}
	return true
}

// run is one source's refresh loop.
func (r *Refresher) run(source model.Source, interval time.Duration) {
	defer r.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.cycle(source)
		case <-r.kick[source]:
			r.cycle(source)
		}
	}
}

// cycle refreshes every interesting symbol of source once. If the previous
// cycle is still in flight the tick is skipped rather than stacked.
func (r *Refresher) cycle(source model.Source) {
	if !r.running[source].CompareAndSwap(false, true) {
		r.logger.Debug("refresh cycle still running, skipping", "source", source)
		r.metrics.RefreshCycle(source, "skipped")
		return
	}
	defer r.running[source].Store(false)

	symbols := r.interesting(source)
	if len(symbols) == 0 {
		r.metrics.RefreshCycle(source, "idle")
		return
	}

	start := time.Now()
	sem := make(chan struct{}, r.cfg.Concurrency)
	var wg sync.WaitGroup
	var changed, errs atomic.Int64

	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-r.ctx.Done():
				return
			}

			if err := r.refreshSymbol(source, symbol, &changed); err != nil {
				r.logger.Warn("refresh failed", "source", source, "symbol", symbol, "err", err)
				errs.Add(1)
			}
		}(symbol)
	}
	wg.Wait()

	r.metrics.RefreshCycle(source, "ok")
	r.logger.Debug("refresh cycle complete",
		"source", source,
		"symbols", len(symbols),
		"changed", changed.Load(),
		"errors", errs.Load(),
		"duration", time.Since(start),
	)
}

// interesting is the union of live subscription symbols and recent REST
// reads for source.
func (r *Refresher) interesting(source model.Source) []string {
	seen := make(map[string]struct{})

	if r.filters != nil {
		for _, f := range r.filters.ActiveFilters() {
			if f.Source == source && f.Symbol != "" {
				seen[f.Symbol] = struct{}{}
			}
		}
	}
	if r.interest != nil {
		for _, symbol := range r.interest.Active(source) {
			seen[symbol] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for symbol := range seen {
		out = append(out, symbol)
	}
	return out
}

// refreshSymbol fetches one symbol and emits an update if the value moved.
func (r *Refresher) refreshSymbol(source model.Source, symbol string, changed *atomic.Int64) error {
	ctx, cancel := context.WithTimeout(r.ctx, r.cfg.Timeout)
	defer cancel()

	cur, prev, err := r.svc.Refresh(ctx, source, symbol)
	if err != nil {
		return err
	}
	if prev != nil && prev.Value == cur.Value {
		return nil
	}
	changed.Add(1)

	select {
	case r.out <- model.UpdateEvent{Symbol: symbol, Quote: cur}:
	case <-r.ctx.Done():
	}
	return nil
}
