package provider

import (
	"context"

	"github.com/rickgao/quote-gateway/internal/model"
)

// Adapter is the capability interface shared by all market-data sources.
// Adapters differ in latency and rate-limit behavior but not in shape.
type Adapter interface {
	// Source returns the source this adapter serves.
	Source() model.Source

	// Resolve maps a user-supplied identifier (ticker, coin id, slug or
	// condition id) to the provider-specific key. Unknown identifiers
	// surface as *NotFoundError, never as generic errors.
	Resolve(ctx context.Context, rawInput string) (string, error)

	// FetchQuote fetches and normalizes the current quote for a
	// previously resolved provider key.
	FetchQuote(ctx context.Context, providerKey string) (model.Quote, error)

	// FetchHistory fetches up to days of history, ordered by timestamp
	// ascending. History is served pass-through and never cached.
	FetchHistory(ctx context.Context, providerKey string, days int) ([]model.HistoryPoint, error)

	// Overview fetches the provider's headline quotes (top coins, the
	// configured stock set, active event markets).
	Overview(ctx context.Context) ([]model.Quote, error)
}
