// Package hub fans quote updates out to registered subscribers. Each
// subscriber has its own bounded queue and writer goroutine, so one slow
// consumer never stalls the dispatch loop or its peers: a subscriber whose
// queue is full is dropped.
package hub

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/rickgao/quote-gateway/internal/metrics"
	"github.com/rickgao/quote-gateway/internal/model"
)

// Conn is the transport half of a subscriber: the hub writes quotes to it
// and closes it when the subscriber is dropped.
type Conn interface {
	// WriteQuote delivers one update. An error drops the subscriber.
	WriteQuote(q model.Quote) error

	// Close tears the transport down. Called exactly once per subscriber.
	Close() error
}

// Config holds fan-out settings.
type Config struct {
	// QueueSize bounds each subscriber's delivery queue. A subscriber
	// that falls this far behind is dropped.
	QueueSize int
}

// DefaultConfig returns the fan-out defaults.
func DefaultConfig() Config {
	return Config{QueueSize: 64}
}

// Stats contains runtime fan-out counters.
type Stats struct {
	Subscribers int
	Delivered   int64
	Dropped     int64
	Filtered    int64
}

type subscriberState int

const (
	stateActive subscriberState = iota
	stateClosing
	stateClosed
)

type subscriber struct {
	id    string
	conn  Conn
	queue chan model.Quote

	mu      sync.Mutex
	filters map[model.Filter]struct{}
	state   subscriberState
}

type offerResult int

const (
	offerDelivered offerResult = iota
	offerFiltered
	offerFull
	offerClosed
)

// offer tries to enqueue one update. Enqueue and queue close are both
// serialized under the subscriber lock, so a send can never hit a closed
// queue. Matching is on the subscription symbol, which for event markets can
// differ from the quote's display symbol; a filter with an empty symbol
// matches every symbol of its source.
func (s *subscriber) offer(ev model.UpdateEvent) offerResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateActive {
		return offerClosed
	}
	if !s.matchesLocked(ev) {
		return offerFiltered
	}

	select {
	case s.queue <- ev.Quote:
		return offerDelivered
	default:
		return offerFull
	}
}

func (s *subscriber) matchesLocked(ev model.UpdateEvent) bool {
	if len(s.filters) == 0 {
		return false
	}
	if _, ok := s.filters[model.Filter{Source: ev.Quote.Source, Symbol: ev.Symbol}]; ok {
		return true
	}
	_, ok := s.filters[model.Filter{Source: ev.Quote.Source}]
	return ok
}

// Hub is the fan-out stage between the refresher and subscriber transports.
type Hub struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	input <-chan model.UpdateEvent

	mu   sync.RWMutex
	subs map[string]*subscriber

	delivered int64
	dropped   int64
	filtered  int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a hub reading updates from input.
func New(cfg Config, input <-chan model.UpdateEvent, logger *slog.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		input:   input,
		subs:    make(map[string]*subscriber),
	}
}

// Start begins dispatching updates.
func (h *Hub) Start(ctx context.Context) error {
	h.ctx, h.cancel = context.WithCancel(ctx)

	h.wg.Add(1)
	go h.dispatchLoop()

	h.logger.Info("fan-out hub started", "queue_size", h.cfg.QueueSize)
	return nil
}

// Stop shuts the dispatch loop down and closes every subscriber.
func (h *Hub) Stop(ctx context.Context) error {
	h.logger.Info("stopping fan-out hub")

	if h.cancel != nil {
		h.cancel()
	}

	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()
	for _, sub := range subs {
		h.drop(sub, "shutdown")
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("fan-out hub stopped")
		return nil
	case <-ctx.Done():
		h.logger.Warn("fan-out hub stop timed out")
		return ctx.Err()
	}
}

// Register adds a subscriber with no filters and returns its id. Updates
// flow only after the first Subscribe call.
func (h *Hub) Register(conn Conn) string {
	sub := &subscriber{
		id:      uuid.NewString(),
		conn:    conn,
		queue:   make(chan model.Quote, h.cfg.QueueSize),
		filters: make(map[model.Filter]struct{}),
	}

	h.mu.Lock()
	h.subs[sub.id] = sub
	h.mu.Unlock()

	h.wg.Add(1)
	go h.writeLoop(sub)

	h.metrics.ConnectionOpened()
	h.logger.Info("subscriber registered", "subscriber", sub.id)
	return sub.id
}

// Subscribe replaces the subscriber's filter set atomically. An empty set
// silences the subscriber without dropping it.
func (h *Hub) Subscribe(id string, filters []model.Filter) bool {
	h.mu.RLock()
	sub, ok := h.subs[id]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	next := make(map[model.Filter]struct{}, len(filters))
	for _, f := range filters {
		next[f] = struct{}{}
	}

	sub.mu.Lock()
	sub.filters = next
	sub.mu.Unlock()

	h.logger.Debug("subscriber filters replaced", "subscriber", id, "filters", len(next))
	return true
}

// Filters returns a snapshot of the subscriber's current filter set.
func (h *Hub) Filters(id string) []model.Filter {
	h.mu.RLock()
	sub, ok := h.subs[id]
	h.mu.RUnlock()
	if !ok {
		return nil
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	out := make([]model.Filter, 0, len(sub.filters))
	for f := range sub.filters {
		out = append(out, f)
	}
	return out
}

// Unregister removes and closes a subscriber.
func (h *Hub) Unregister(id string) {
	h.mu.RLock()
	sub, ok := h.subs[id]
	h.mu.RUnlock()
	if ok {
		h.drop(sub, "unregistered")
	}
}

// ActiveFilters returns the union of every subscriber's filters, deduplicated.
// The refresher uses it to decide which symbols still have interest.
func (h *Hub) ActiveFilters() []model.Filter {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[model.Filter]struct{})
	for _, sub := range h.subs {
		sub.mu.Lock()
		for f := range sub.filters {
			seen[f] = struct{}{}
		}
		sub.mu.Unlock()
	}

	out := make([]model.Filter, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	return out
}

// Stats returns current fan-out counters.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{
		Subscribers: len(h.subs),
		Delivered:   h.delivered,
		Dropped:     h.dropped,
		Filtered:    h.filtered,
	}
}

// dispatchLoop reads updates and enqueues them to matching subscribers.
func (h *Hub) dispatchLoop() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return
		case ev, ok := <-h.input:
			if !ok {
				h.logger.Info("update channel closed")
				return
			}
			h.dispatch(ev)
		}
	}
}

// dispatch delivers one update. Enqueue is non-blocking: a full queue means
// the subscriber is too slow and gets dropped, preserving liveness for the
// rest.
func (h *Hub) dispatch(ev model.UpdateEvent) {
	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		switch sub.offer(ev) {
		case offerDelivered:
			h.mu.Lock()
			h.delivered++
			h.mu.Unlock()
			h.metrics.Delivered()
		case offerFiltered:
			h.mu.Lock()
			h.filtered++
			h.mu.Unlock()
		case offerFull:
			h.logger.Warn("dropping slow subscriber", "subscriber", sub.id, "queue_size", h.cfg.QueueSize)
			h.drop(sub, "slow consumer")
		case offerClosed:
			// Already on its way out.
		}
	}
}

// writeLoop drains one subscriber's queue onto its transport.
func (h *Hub) writeLoop(sub *subscriber) {
	defer h.wg.Done()

	for q := range sub.queue {
		if err := sub.conn.WriteQuote(q); err != nil {
			h.logger.Warn("subscriber write failed", "subscriber", sub.id, "err", err)
			h.drop(sub, "write error")
			// Keep draining so the dispatch side never blocks on a
			// dead subscriber; writes stop after close.
		}
	}
}

// drop transitions a subscriber Active→Closing→Closed. Idempotent: losing
// the race to another drop is a no-op.
func (h *Hub) drop(sub *subscriber, reason string) {
	sub.mu.Lock()
	if sub.state != stateActive {
		sub.mu.Unlock()
		return
	}
	sub.state = stateClosing
	close(sub.queue)
	sub.mu.Unlock()

	h.mu.Lock()
	delete(h.subs, sub.id)
	h.dropped++
	h.mu.Unlock()

	if err := sub.conn.Close(); err != nil {
		h.logger.Debug("subscriber close failed", "subscriber", sub.id, "err", err)
	}

	sub.mu.Lock()
	sub.state = stateClosed
	sub.mu.Unlock()

	h.metrics.ConnectionClosed()
	h.metrics.Dropped()
	h.logger.Info("subscriber dropped", "subscriber", sub.id, "reason", reason)
}
