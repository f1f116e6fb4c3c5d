package crypto

import (
	"time"

	"github.com/rickgao/quote-gateway/internal/model"
	"github.com/rickgao/quote-gateway/internal/provider"
)

// simplePriceResponse is the /simple/price wire shape: coin id → price row.
type simplePriceResponse map[string]PriceRow

// PriceRow is one coin's row from /simple/price.
type PriceRow struct {
	USD           *float64 `json:"usd"`
	MarketCap     *float64 `json:"usd_market_cap"`
	Vol24h        *float64 `json:"usd_24h_vol"`
	Change24h     *float64 `json:"usd_24h_change"`
	LastUpdatedAt int64    `json:"last_updated_at"`
}

type searchResponse struct {
	Coins []struct {
		ID     string `json:"id"`
		Symbol string `json:"symbol"`
		Name   string `json:"name"`
	} `json:"coins"`
}

type marketChartResponse struct {
	Prices [][]float64 `json:"prices"`
}

// marketItem is one coin from /coins/markets.
type marketItem struct {
	ID           string   `json:"id"`
	CurrentPrice *float64 `json:"current_price"`
	MarketCap    *float64 `json:"market_cap"`
	Change24hPct *float64 `json:"price_change_percentage_24h"`
	TotalVolume  *float64 `json:"total_volume"`
	LastUpdated  string   `json:"last_updated"`
}

// Normalize converts a /simple/price row into the canonical Quote:
// value = spot price, metadata carries market_cap and change_24h.
func Normalize(id string, row PriceRow) (model.Quote, error) {
	if row.USD == nil {
		return model.Quote{}, &provider.ValidationError{
			Source: model.SourceCrypto,
			Field:  "usd",
			Reason: "missing",
		}
	}
	if *row.USD < 0 {
		return model.Quote{}, &provider.ValidationError{
			Source: model.SourceCrypto,
			Field:  "usd",
			Reason: "negative",
		}
	}

	ts := time.Now().UTC()
	if row.LastUpdatedAt > 0 {
		ts = time.Unix(row.LastUpdatedAt, 0).UTC()
	}

	return model.Quote{
		Source:    model.SourceCrypto,
		Symbol:    id,
		Value:     *row.USD,
		Volume:    row.Vol24h,
		Timestamp: ts,
		Meta: model.CryptoMetadata{
			MarketCap: row.MarketCap,
			Change24h: row.Change24h,
		},
	}, nil
}

func normalizeMarketItem(item marketItem) (model.Quote, error) {
	if item.ID == "" {
		return model.Quote{}, &provider.ValidationError{Source: model.SourceCrypto, Field: "id", Reason: "missing"}
	}
	if item.CurrentPrice == nil {
		return model.Quote{}, &provider.ValidationError{Source: model.SourceCrypto, Field: "current_price", Reason: "missing"}
	}
	if *item.CurrentPrice < 0 {
		return model.Quote{}, &provider.ValidationError{Source: model.SourceCrypto, Field: "current_price", Reason: "negative"}
	}

	ts := time.Now().UTC()
	if item.LastUpdated != "" {
		if parsed, err := time.Parse(time.RFC3339, item.LastUpdated); err == nil {
			ts = parsed.UTC()
		}
	}

	return model.Quote{
		Source:    model.SourceCrypto,
		Symbol:    item.ID,
		Value:     *item.CurrentPrice,
		Volume:    item.TotalVolume,
		Timestamp: ts,
		Meta: model.CryptoMetadata{
			MarketCap: item.MarketCap,
			Change24h: item.Change24hPct,
		},
	}, nil
}
