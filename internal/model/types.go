package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// -----------------------------------------------------------------------------
// Sources
// -----------------------------------------------------------------------------

// Source identifies the class of provider a quote came from. The constants
// use the wire spellings, so an event-market quote serializes as "events".
type Source string

const (
	SourceStock  Source = "stock"
	SourceCrypto Source = "crypto"
	SourceEvents Source = "events"
)

// Sources lists all known sources in a stable order.
func Sources() []Source {
	return []Source{SourceStock, SourceCrypto, SourceEvents}
}

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceStock, SourceCrypto, SourceEvents:
		return true
	}
	return false
}

// ParseSource converts a wire string to a Source.
func ParseSource(s string) (Source, error) {
	src := Source(s)
	if !src.Valid() {
		return "", fmt.Errorf("unknown source %q", s)
	}
	return src, nil
}

// -----------------------------------------------------------------------------
// Quotes
// -----------------------------------------------------------------------------

// Metadata is the typed per-source metadata attached to a Quote. It is erased
// to an open key/value object only at the JSON boundary.
type Metadata interface {
	// Map returns the open key/value form used on the wire.
	Map() map[string]any
}

// StockMetadata carries stock-specific quote details.
type StockMetadata struct {
	Provider string // upstream name, e.g. "yahoo-finance"
}

func (m StockMetadata) Map() map[string]any {
	return map[string]any{"provider": m.Provider}
}

// CryptoMetadata carries crypto-specific quote details.
type CryptoMetadata struct {
	MarketCap *float64
	Change24h *float64 // 24h change, percent
}

func (m CryptoMetadata) Map() map[string]any {
	out := map[string]any{}
	if m.MarketCap != nil {
		out["market_cap"] = *m.MarketCap
	}
	if m.Change24h != nil {
		out["change_24h"] = *m.Change24h
	}
	return out
}

// EventMetadata carries prediction-market quote details.
type EventMetadata struct {
	Slug            string
	ConditionID     string
	TopOutcome      string
	TopOutcomeIndex int // index into the provider's outcomes array
	ClobTokenIDs    []string
}

func (m EventMetadata) Map() map[string]any {
	return map[string]any{
		"slug":              m.Slug,
		"condition_id":      m.ConditionID,
		"top_outcome":       m.TopOutcome,
		"top_outcome_index": m.TopOutcomeIndex,
		"clob_token_ids":    m.ClobTokenIDs,
	}
}

// Quote is the canonical normalized record for one symbol from one source.
// It is immutable once constructed; value is a price, or a probability in
// [0,1] for the events source.
type Quote struct {
	Source    Source
	Symbol    string
	Value     float64
	Volume    *float64 // nil when the provider reports none
	Timestamp time.Time
	Meta      Metadata // nil when the source has no extra details
}

// wireQuote is the external JSON shape. Field names are part of the API.
type wireQuote struct {
	Source    Source         `json:"source"`
	Symbol    string         `json:"symbol"`
	Value     float64        `json:"value"`
	Volume    *float64       `json:"volume"`
	Timestamp string         `json:"timestamp"`
	Metadata  map[string]any `json:"metadata"`
}

// MarshalJSON renders the canonical wire shape: ISO-8601 UTC timestamp and
// metadata erased to an open object (null when absent).
func (q Quote) MarshalJSON() ([]byte, error) {
	w := wireQuote{
		Source:    q.Source,
		Symbol:    q.Symbol,
		Value:     q.Value,
		Volume:    q.Volume,
		Timestamp: q.Timestamp.UTC().Format(time.RFC3339),
	}
	if q.Meta != nil {
		w.Metadata = q.Meta.Map()
	}
	return json.Marshal(w)
}

// Change24h returns the 24h change metric when the quote carries one.
func (q Quote) Change24h() (float64, bool) {
	m, ok := q.Meta.(CryptoMetadata)
	if !ok || m.Change24h == nil {
		return 0, false
	}
	return *m.Change24h, true
}

// HistoryPoint is one sample of a symbol's price history.
type HistoryPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// -----------------------------------------------------------------------------
// Resolution and events
// -----------------------------------------------------------------------------

// ResolvedIdentifier maps a user-supplied identifier to the provider-specific
// key an adapter understands.
type ResolvedIdentifier struct {
	RawInput    string
	ProviderKey string
	Source      Source
}

// UpdateEvent is a quote update fanned out to subscribers. Symbol is the
// subscriber-facing identifier the update was refreshed under (the raw
// subscription symbol), which may differ from Quote.Symbol for event markets
// where the display symbol is the market question.
type UpdateEvent struct {
	Symbol string
	Quote  Quote
}

// Filter selects quote updates for one (source, symbol) pair.
type Filter struct {
	Source Source
	Symbol string
}
