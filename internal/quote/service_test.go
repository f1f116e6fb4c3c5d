package quote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rickgao/quote-gateway/internal/model"
	"github.com/rickgao/quote-gateway/internal/provider"
	"github.com/rickgao/quote-gateway/internal/resolve"
)

// stubAdapter is a scriptable adapter counting calls per operation.
type stubAdapter struct {
	source model.Source

	resolveKey string
	quote      model.Quote
	quoteErr   error
	history    []model.HistoryPoint

	resolveCalls int
	quoteCalls   int
	historyCalls int
}

func (a *stubAdapter) Source() model.Source { return a.source }

func (a *stubAdapter) Resolve(ctx context.Context, rawInput string) (string, error) {
	a.resolveCalls++
	if a.resolveKey == "" {
		return "", &provider.NotFoundError{Source: a.source, Input: rawInput}
	}
	return a.resolveKey, nil
}

func (a *stubAdapter) FetchQuote(ctx context.Context, providerKey string) (model.Quote, error) {
	a.quoteCalls++
	return a.quote, a.quoteErr
}

func (a *stubAdapter) FetchHistory(ctx context.Context, providerKey string, days int) ([]model.HistoryPoint, error) {
	a.historyCalls++
	return a.history, nil
}

func (a *stubAdapter) Overview(ctx context.Context) ([]model.Quote, error) {
	return nil, errors.New("not scripted")
}

func newService(a *stubAdapter, cfg Config) *Service {
	adapters := map[model.Source]provider.Adapter{a.source: a}
	r := resolve.New(adapters, resolve.Config{TTL: time.Hour, NegativeTTL: time.Second, Clock: cfg.Clock}, nil, nil)
	return New(adapters, r, cfg, nil, nil)
}

func btc(value float64) model.Quote {
	return model.Quote{Source: model.SourceCrypto, Symbol: "BTC", Value: value, Timestamp: time.Now().UTC()}
}

func TestQuote_ResolveThenCachedFetch(t *testing.T) {
	a := &stubAdapter{source: model.SourceCrypto, resolveKey: "bitcoin", quote: btc(50000)}
	s := newService(a, Config{TTL: time.Minute})

	q, err := s.Quote(context.Background(), model.SourceCrypto, "BTC")
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if q.Value != 50000 {
		t.Errorf("value = %v", q.Value)
	}

	// Second call: resolution and quote both cached.
	if _, err := s.Quote(context.Background(), model.SourceCrypto, "BTC"); err != nil {
		t.Fatal(err)
	}
	if a.resolveCalls != 1 || a.quoteCalls != 1 {
		t.Errorf("calls = resolve %d quote %d, want 1/1", a.resolveCalls, a.quoteCalls)
	}
}

func TestQuote_ExpiryRefetches(t *testing.T) {
	now := time.Unix(1740000000, 0)
	clock := func() time.Time { return now }
	a := &stubAdapter{source: model.SourceCrypto, resolveKey: "bitcoin", quote: btc(50000)}
	s := newService(a, Config{TTL: 10 * time.Second, Clock: clock})

	if _, err := s.Quote(context.Background(), model.SourceCrypto, "BTC"); err != nil {
		t.Fatal(err)
	}

	now = now.Add(11 * time.Second)
	a.quote = btc(51000)
	q, err := s.Quote(context.Background(), model.SourceCrypto, "BTC")
	if err != nil {
		t.Fatal(err)
	}
	if q.Value != 51000 || a.quoteCalls != 2 {
		t.Errorf("value = %v quoteCalls = %d", q.Value, a.quoteCalls)
	}
}

func TestQuote_UnknownSymbol(t *testing.T) {
	a := &stubAdapter{source: model.SourceCrypto} // resolveKey empty: NotFound
	s := newService(a, Config{TTL: time.Minute})

	if _, err := s.Quote(context.Background(), model.SourceCrypto, "NOPE"); !provider.IsNotFound(err) {
		t.Errorf("want NotFound, got %v", err)
	}
	if a.quoteCalls != 0 {
		t.Errorf("FetchQuote must not run for unresolved input, calls = %d", a.quoteCalls)
	}
}

func TestQuote_UnconfiguredSource(t *testing.T) {
	a := &stubAdapter{source: model.SourceCrypto, resolveKey: "bitcoin", quote: btc(50000)}
	s := newService(a, Config{TTL: time.Minute})

	if _, err := s.Quote(context.Background(), model.SourceStock, "AAPL"); !provider.IsValidation(err) {
		t.Errorf("want Validation, got %v", err)
	}
}

func TestHistory_PassThrough(t *testing.T) {
	a := &stubAdapter{
		source:     model.SourceCrypto,
		resolveKey: "bitcoin",
		history: []model.HistoryPoint{
			{Timestamp: time.Unix(1740000000, 0).UTC(), Value: 49000},
			{Timestamp: time.Unix(1740086400, 0).UTC(), Value: 50000},
		},
	}
	s := newService(a, Config{TTL: time.Minute})

	points, err := s.History(context.Background(), model.SourceCrypto, "BTC", 2)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(points) != 2 || points[1].Value != 50000 {
		t.Errorf("points = %+v", points)
	}

	// Unlike quotes, history is not cached.
	s.History(context.Background(), model.SourceCrypto, "BTC", 2)
	if a.historyCalls != 2 {
		t.Errorf("historyCalls = %d, want 2", a.historyCalls)
	}
}

func TestRefresh_ReportsPrevious(t *testing.T) {
	a := &stubAdapter{source: model.SourceCrypto, resolveKey: "bitcoin", quote: btc(50000)}
	s := newService(a, Config{TTL: time.Hour})

	// First refresh: nothing cached yet.
	cur, prev, err := s.Refresh(context.Background(), model.SourceCrypto, "BTC")
	if err != nil {
		t.Fatal(err)
	}
	if prev != nil {
		t.Errorf("prev = %+v, want nil on first fetch", prev)
	}
	if cur.Value != 50000 {
		t.Errorf("cur = %v", cur.Value)
	}

	// Second refresh bypasses the hour-long TTL and reports the old value.
	a.quote = btc(51000)
	cur, prev, err = s.Refresh(context.Background(), model.SourceCrypto, "BTC")
	if err != nil {
		t.Fatal(err)
	}
	if prev == nil || prev.Value != 50000 {
		t.Errorf("prev = %+v, want the superseded quote", prev)
	}
	if cur.Value != 51000 || a.quoteCalls != 2 {
		t.Errorf("cur = %v quoteCalls = %d", cur.Value, a.quoteCalls)
	}
}

func TestRefresh_ErrorKeepsPrevious(t *testing.T) {
	a := &stubAdapter{source: model.SourceCrypto, resolveKey: "bitcoin", quote: btc(50000)}
	s := newService(a, Config{TTL: time.Hour})

	if _, _, err := s.Refresh(context.Background(), model.SourceCrypto, "BTC"); err != nil {
		t.Fatal(err)
	}

	a.quoteErr = &provider.TransientError{Source: model.SourceCrypto, Op: "quote", Err: errors.New("down")}
	_, prev, err := s.Refresh(context.Background(), model.SourceCrypto, "BTC")
	if !provider.IsTransient(err) {
		t.Fatalf("want Transient, got %v", err)
	}
	if prev == nil || prev.Value != 50000 {
		t.Errorf("prev = %+v, want the still-cached quote", prev)
	}

	// The cached entry survives the failed refresh.
	q, err := s.Quote(context.Background(), model.SourceCrypto, "BTC")
	if err != nil {
		t.Fatal(err)
	}
	if q.Value != 50000 {
		t.Errorf("cached value lost after failed refresh: %v", q.Value)
	}
}
