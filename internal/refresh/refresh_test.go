package refresh

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/quote-gateway/internal/model"
)

// fakeService scripts Refresh results per symbol.
type fakeService struct {
	mu      sync.Mutex
	values  map[string]float64
	prev    map[string]float64
	errs    map[string]error
	calls   int
	block   chan struct{} // when set, Refresh parks here
	started chan struct{} // signals a Refresh entered
}

func (f *fakeService) Refresh(ctx context.Context, source model.Source, symbol string) (model.Quote, *model.Quote, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	started := f.started
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[symbol]; ok {
		return model.Quote{}, nil, err
	}

	cur := model.Quote{Source: source, Symbol: symbol, Value: f.values[symbol]}
	var prev *model.Quote
	if old, ok := f.prev[symbol]; ok {
		prev = &model.Quote{Source: source, Symbol: symbol, Value: old}
	}
	return cur, prev, nil
}

func (f *fakeService) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fixedFilters is a static subscription set.
type fixedFilters []model.Filter

func (f fixedFilters) ActiveFilters() []model.Filter { return f }

func startRefresher(t *testing.T, svc QuoteRefresher, filters FilterSource, interest *Interest) (*Refresher, chan model.UpdateEvent) {
	t.Helper()
	out := make(chan model.UpdateEvent, 32)
	r := New(Config{
		// Far enough out that only Trigger drives cycles in tests.
		Intervals: map[model.Source]time.Duration{
			model.SourceCrypto: time.Hour,
			model.SourceStock:  time.Hour,
		},
		Grace:       time.Minute,
		Concurrency: 4,
		Timeout:     time.Second,
	}, svc, filters, interest, out, nil, nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		r.Stop(ctx)
	})
	return r, out
}

func waitForUpdate(t *testing.T, out chan model.UpdateEvent) model.UpdateEvent {
	t.Helper()
	select {
	case ev := <-out:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update event")
		return model.UpdateEvent{}
	}
}

func TestInterest_GraceWindow(t *testing.T) {
	now := time.Unix(1740000000, 0)
	clock := func() time.Time { return now }
	in := NewInterest(time.Minute, clock)

	in.Touch(model.SourceCrypto, "bitcoin")
	in.Touch(model.SourceStock, "AAPL")

	if got := in.Active(model.SourceCrypto); len(got) != 1 || got[0] != "bitcoin" {
		t.Errorf("Active = %v", got)
	}

	// Past the grace window the symbol falls out.
	now = now.Add(2 * time.Minute)
	if got := in.Active(model.SourceCrypto); len(got) != 0 {
		t.Errorf("Active past grace = %v, want empty", got)
	}

	// A fresh touch revives it.
	in.Touch(model.SourceCrypto, "bitcoin")
	if got := in.Active(model.SourceCrypto); len(got) != 1 {
		t.Errorf("Active after re-touch = %v", got)
	}
}

func TestCycle_EmitsOnValueChange(t *testing.T) {
	svc := &fakeService{
		values: map[string]float64{"bitcoin": 51000},
		prev:   map[string]float64{"bitcoin": 50000},
	}
	filters := fixedFilters{{Source: model.SourceCrypto, Symbol: "bitcoin"}}
	r, out := startRefresher(t, svc, filters, nil)

	if !r.Trigger(model.SourceCrypto) {
		t.Fatal("Trigger returned false for a configured source")
	}

	ev := waitForUpdate(t, out)
	if ev.Symbol != "bitcoin" || ev.Quote.Value != 51000 {
		t.Errorf("event = %+v", ev)
	}
}

func TestCycle_SilentWhenUnchanged(t *testing.T) {
	svc := &fakeService{
		values: map[string]float64{"bitcoin": 50000},
		prev:   map[string]float64{"bitcoin": 50000},
	}
	filters := fixedFilters{{Source: model.SourceCrypto, Symbol: "bitcoin"}}
	r, out := startRefresher(t, svc, filters, nil)

	r.Trigger(model.SourceCrypto)

	deadline := time.After(300 * time.Millisecond)
	select {
	case ev := <-out:
		t.Fatalf("unchanged value emitted %+v", ev)
	case <-deadline:
	}
	if svc.callCount() == 0 {
		t.Error("cycle never fetched")
	}
}

func TestCycle_FirstFetchEmits(t *testing.T) {
	// No previous quote: the first observation counts as a change.
	svc := &fakeService{values: map[string]float64{"AAPL": 187.5}}
	filters := fixedFilters{{Source: model.SourceStock, Symbol: "AAPL"}}
	r, out := startRefresher(t, svc, filters, nil)

	r.Trigger(model.SourceStock)
	ev := waitForUpdate(t, out)
	if ev.Quote.Value != 187.5 {
		t.Errorf("event = %+v", ev)
	}
}

func TestCycle_ErrorDoesNotEmit(t *testing.T) {
	svc := &fakeService{
		values: map[string]float64{"bitcoin": 50000},
		errs:   map[string]error{"bitcoin": errors.New("upstream down")},
	}
	filters := fixedFilters{{Source: model.SourceCrypto, Symbol: "bitcoin"}}
	r, out := startRefresher(t, svc, filters, nil)

	r.Trigger(model.SourceCrypto)

	select {
	case ev := <-out:
		t.Fatalf("failed refresh emitted %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestCycle_UnionsInterestAndFilters(t *testing.T) {
	svc := &fakeService{values: map[string]float64{"bitcoin": 50000, "ethereum": 3000}}
	filters := fixedFilters{{Source: model.SourceCrypto, Symbol: "bitcoin"}}
	interest := NewInterest(time.Minute, nil)
	interest.Touch(model.SourceCrypto, "ethereum")

	r, out := startRefresher(t, svc, filters, interest)
	r.Trigger(model.SourceCrypto)

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		ev := waitForUpdate(t, out)
		got[ev.Symbol] = true
	}
	if !got["bitcoin"] || !got["ethereum"] {
		t.Errorf("refreshed = %v, want both the subscription and the REST read", got)
	}
}

func TestCycle_SkipsWhileRunning(t *testing.T) {
	svc := &fakeService{
		values:  map[string]float64{"bitcoin": 50000},
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	filters := fixedFilters{{Source: model.SourceCrypto, Symbol: "bitcoin"}}
	r, _ := startRefresher(t, svc, filters, nil)

	r.Trigger(model.SourceCrypto)
	<-svc.started // first cycle is now in flight

	// A second cycle against the same source must skip, not stack.
	r.cycle(model.SourceCrypto)
	if svc.callCount() != 1 {
		t.Errorf("calls = %d, want the overlapping cycle skipped", svc.callCount())
	}
	close(svc.block)
}

func TestTrigger_UnknownSource(t *testing.T) {
	svc := &fakeService{values: map[string]float64{}}
	r, _ := startRefresher(t, svc, nil, nil)

	if r.Trigger(model.SourceEvents) {
		t.Error("Trigger must report unconfigured sources")
	}
}
