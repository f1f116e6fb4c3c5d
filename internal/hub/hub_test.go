package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/quote-gateway/internal/model"
)

// testConn records delivered quotes and signals each write.
type testConn struct {
	mu       sync.Mutex
	written  []model.Quote
	writeErr error
	closed   bool

	delivered chan model.Quote
}

func newTestConn() *testConn {
	return &testConn{delivered: make(chan model.Quote, 128)}
}

func (c *testConn) WriteQuote(q model.Quote) error {
	c.mu.Lock()
	if c.writeErr != nil {
		c.mu.Unlock()
		return c.writeErr
	}
	c.written = append(c.written, q)
	c.mu.Unlock()

	// Signal outside the lock; the slow-subscriber test parks here.
	c.delivered <- q
	return nil
}

func (c *testConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *testConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *testConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.written)
}

func (c *testConn) waitForQuote(t *testing.T) model.Quote {
	t.Helper()
	select {
	case q := <-c.delivered:
		return q
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return model.Quote{}
	}
}

func update(source model.Source, symbol string, value float64) model.UpdateEvent {
	return model.UpdateEvent{
		Symbol: symbol,
		Quote:  model.Quote{Source: source, Symbol: symbol, Value: value},
	}
}

func startHub(t *testing.T, cfg Config) (*Hub, chan model.UpdateEvent) {
	t.Helper()
	input := make(chan model.UpdateEvent, 16)
	h := New(cfg, input, nil, nil)
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		h.Stop(ctx)
	})
	return h, input
}

func TestDispatch_MatchesExactFilter(t *testing.T) {
	h, input := startHub(t, DefaultConfig())

	conn := newTestConn()
	id := h.Register(conn)
	h.Subscribe(id, []model.Filter{{Source: model.SourceCrypto, Symbol: "bitcoin"}})

	input <- update(model.SourceCrypto, "bitcoin", 50000)
	q := conn.waitForQuote(t)
	if q.Value != 50000 {
		t.Errorf("value = %v", q.Value)
	}

	// Non-matching symbol and source never arrive.
	input <- update(model.SourceCrypto, "ethereum", 3000)
	input <- update(model.SourceStock, "bitcoin", 1)
	input <- update(model.SourceCrypto, "bitcoin", 50500)
	q = conn.waitForQuote(t)
	if q.Value != 50500 {
		t.Errorf("filtered updates leaked: got value %v", q.Value)
	}
	if conn.count() != 2 {
		t.Errorf("deliveries = %d, want 2", conn.count())
	}
}

func TestDispatch_SourceWideFilter(t *testing.T) {
	h, input := startHub(t, DefaultConfig())

	conn := newTestConn()
	id := h.Register(conn)
	h.Subscribe(id, []model.Filter{{Source: model.SourceStock}})

	input <- update(model.SourceStock, "AAPL", 187.5)
	input <- update(model.SourceStock, "NVDA", 875)
	conn.waitForQuote(t)
	conn.waitForQuote(t)
	if conn.count() != 2 {
		t.Errorf("deliveries = %d, want every stock update", conn.count())
	}
}

func TestSubscribe_ReplacesFilters(t *testing.T) {
	h, input := startHub(t, DefaultConfig())

	conn := newTestConn()
	id := h.Register(conn)
	h.Subscribe(id, []model.Filter{{Source: model.SourceCrypto, Symbol: "bitcoin"}})

	// Replacement: bitcoin is gone, ethereum is in.
	h.Subscribe(id, []model.Filter{{Source: model.SourceCrypto, Symbol: "ethereum"}})

	input <- update(model.SourceCrypto, "bitcoin", 50000)
	input <- update(model.SourceCrypto, "ethereum", 3000)
	q := conn.waitForQuote(t)
	if q.Symbol != "ethereum" {
		t.Errorf("got %q, want only the replaced filter's symbol", q.Symbol)
	}

	got := h.Filters(id)
	if len(got) != 1 || got[0].Symbol != "ethereum" {
		t.Errorf("Filters = %+v", got)
	}
}

func TestRegister_SilentUntilSubscribed(t *testing.T) {
	h, input := startHub(t, DefaultConfig())

	conn := newTestConn()
	h.Register(conn)

	input <- update(model.SourceCrypto, "bitcoin", 50000)

	// Give the dispatch loop a beat, then confirm silence.
	time.Sleep(50 * time.Millisecond)
	if conn.count() != 0 {
		t.Errorf("unsubscribed registrant received %d updates", conn.count())
	}
}

func TestDispatch_DropsSlowSubscriber(t *testing.T) {
	h, input := startHub(t, Config{QueueSize: 1})

	// slow never drains: its writer blocks on the unbuffered signal chan.
	slow := &testConn{delivered: make(chan model.Quote)}
	slowID := h.Register(slow)
	h.Subscribe(slowID, []model.Filter{{Source: model.SourceCrypto}})

	healthy := newTestConn()
	healthyID := h.Register(healthy)
	h.Subscribe(healthyID, []model.Filter{{Source: model.SourceCrypto}})

	// First two fill the slow writer and its queue; the third overflows.
	for i := 0; i < 3; i++ {
		input <- update(model.SourceCrypto, "bitcoin", float64(50000+i))
	}
	for i := 0; i < 3; i++ {
		healthy.waitForQuote(t)
	}

	deadline := time.After(2 * time.Second)
	for !slow.isClosed() {
		select {
		case <-deadline:
			t.Fatal("slow subscriber was never dropped")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// The healthy subscriber keeps receiving.
	input <- update(model.SourceCrypto, "bitcoin", 60000)
	q := healthy.waitForQuote(t)
	if q.Value != 60000 {
		t.Errorf("healthy subscriber disturbed: %v", q.Value)
	}
}

func TestWriteLoop_DropsOnWriteError(t *testing.T) {
	h, input := startHub(t, DefaultConfig())

	failing := newTestConn()
	failing.writeErr = errors.New("broken pipe")
	failingID := h.Register(failing)
	h.Subscribe(failingID, []model.Filter{{Source: model.SourceStock}})

	healthy := newTestConn()
	healthyID := h.Register(healthy)
	h.Subscribe(healthyID, []model.Filter{{Source: model.SourceStock}})

	input <- update(model.SourceStock, "AAPL", 187.5)
	healthy.waitForQuote(t)

	deadline := time.After(2 * time.Second)
	for !failing.isClosed() {
		select {
		case <-deadline:
			t.Fatal("failing subscriber was never dropped")
		case <-time.After(10 * time.Millisecond):
		}
	}

	input <- update(model.SourceStock, "AAPL", 188)
	if q := healthy.waitForQuote(t); q.Value != 188 {
		t.Errorf("healthy subscriber disturbed: %v", q.Value)
	}
}

func TestUnregister_ClosesConn(t *testing.T) {
	h, _ := startHub(t, DefaultConfig())

	conn := newTestConn()
	id := h.Register(conn)
	if got := h.Stats().Subscribers; got != 1 {
		t.Fatalf("subscribers = %d", got)
	}

	h.Unregister(id)
	if !conn.isClosed() {
		t.Error("Unregister must close the transport")
	}
	if got := h.Stats().Subscribers; got != 0 {
		t.Errorf("subscribers after unregister = %d", got)
	}

	// Idempotent.
	h.Unregister(id)
}

func TestActiveFilters_Union(t *testing.T) {
	h, _ := startHub(t, DefaultConfig())

	a := h.Register(newTestConn())
	b := h.Register(newTestConn())
	h.Subscribe(a, []model.Filter{
		{Source: model.SourceCrypto, Symbol: "bitcoin"},
		{Source: model.SourceStock, Symbol: "AAPL"},
	})
	h.Subscribe(b, []model.Filter{
		{Source: model.SourceCrypto, Symbol: "bitcoin"}, // duplicate
		{Source: model.SourceEvents, Symbol: "will-it-rain"},
	})

	got := h.ActiveFilters()
	if len(got) != 3 {
		t.Errorf("ActiveFilters = %+v, want 3 distinct", got)
	}
}
