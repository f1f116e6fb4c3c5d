package refresh

import (
	"sync"
	"time"

	"github.com/rickgao/quote-gateway/internal/model"
)

// Interest tracks symbols fetched over REST recently enough to stay in the
// background refresh set. Subscriptions carry their own interest through the
// hub; this covers poll-style clients that re-read the same symbol.
type Interest struct {
	grace time.Duration
	clock func() time.Time

	mu      sync.Mutex
	touched map[model.Filter]time.Time
}

// NewInterest creates a tracker with the given grace window.
func NewInterest(grace time.Duration, clock func() time.Time) *Interest {
	if clock == nil {
		clock = time.Now
	}
	return &Interest{
		grace:   grace,
		clock:   clock,
		touched: make(map[model.Filter]time.Time),
	}
}

// Touch records a read of symbol under source.
func (i *Interest) Touch(source model.Source, symbol string) {
	i.mu.Lock()
	i.touched[model.Filter{Source: source, Symbol: symbol}] = i.clock()
	i.mu.Unlock()
}

// Active returns the symbols of source read within the grace window,
// pruning expired entries as it goes.
func (i *Interest) Active(source model.Source) []string {
	cutoff := i.clock().Add(-i.grace)

	i.mu.Lock()
	defer i.mu.Unlock()

	var out []string
	for f, at := range i.touched {
		if at.Before(cutoff) {
			delete(i.touched, f)
			continue
		}
		if f.Source == source {
			out = append(out, f.Symbol)
		}
	}
	return out
}
