package stocks

import (
	"time"

	"github.com/rickgao/quote-gateway/internal/model"
	"github.com/rickgao/quote-gateway/internal/provider"
)

const upstreamName = "yahoo-finance"

// chartResponse is the wire shape of the chart endpoint. Only the fields the
// normalizer needs are declared.
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol              string   `json:"symbol"`
		RegularMarketPrice  *float64 `json:"regularMarketPrice"`
		RegularMarketVolume *float64 `json:"regularMarketVolume"`
		RegularMarketTime   int64    `json:"regularMarketTime"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Normalize converts a chart payload into the canonical Quote:
// value = last trade price, volume = shares traded, metadata names the
// upstream. Missing required fields surface as ValidationError; an upstream
// "Not Found" error body surfaces as NotFound.
func Normalize(symbol string, resp chartResponse) (model.Quote, error) {
	if resp.Chart.Error != nil {
		if resp.Chart.Error.Code == "Not Found" {
			return model.Quote{}, &provider.NotFoundError{Source: model.SourceStock, Input: symbol}
		}
		return model.Quote{}, &provider.ValidationError{
			Source: model.SourceStock,
			Field:  "chart.error",
			Reason: resp.Chart.Error.Code + ": " + resp.Chart.Error.Description,
		}
	}
	if len(resp.Chart.Result) == 0 {
		return model.Quote{}, &provider.ValidationError{
			Source: model.SourceStock,
			Field:  "chart.result",
			Reason: "empty",
		}
	}

	meta := resp.Chart.Result[0].Meta
	if meta.RegularMarketPrice == nil {
		return model.Quote{}, &provider.ValidationError{
			Source: model.SourceStock,
			Field:  "meta.regularMarketPrice",
			Reason: "missing",
		}
	}
	if *meta.RegularMarketPrice < 0 {
		return model.Quote{}, &provider.ValidationError{
			Source: model.SourceStock,
			Field:  "meta.regularMarketPrice",
			Reason: "negative",
		}
	}

	ts := time.Now().UTC()
	if meta.RegularMarketTime > 0 {
		ts = time.Unix(meta.RegularMarketTime, 0).UTC()
	}
	sym := meta.Symbol
	if sym == "" {
		sym = symbol
	}

	return model.Quote{
		Source:    model.SourceStock,
		Symbol:    sym,
		Value:     *meta.RegularMarketPrice,
		Volume:    meta.RegularMarketVolume,
		Timestamp: ts,
		Meta:      model.StockMetadata{Provider: upstreamName},
	}, nil
}

// normalizeHistory converts a ranged chart payload into ordered history
// points, skipping sparse bars with no close.
func normalizeHistory(symbol string, resp chartResponse) ([]model.HistoryPoint, error) {
	if resp.Chart.Error != nil {
		if resp.Chart.Error.Code == "Not Found" {
			return nil, &provider.NotFoundError{Source: model.SourceStock, Input: symbol}
		}
		return nil, &provider.ValidationError{
			Source: model.SourceStock,
			Field:  "chart.error",
			Reason: resp.Chart.Error.Code,
		}
	}
	if len(resp.Chart.Result) == 0 {
		return nil, &provider.ValidationError{Source: model.SourceStock, Field: "chart.result", Reason: "empty"}
	}

	result := resp.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, &provider.ValidationError{Source: model.SourceStock, Field: "indicators.quote", Reason: "empty"}
	}

	closes := result.Indicators.Quote[0].Close
	points := make([]model.HistoryPoint, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		points = append(points, model.HistoryPoint{
			Timestamp: time.Unix(ts, 0).UTC(),
			Value:     *closes[i],
		})
	}
	return points, nil
}
