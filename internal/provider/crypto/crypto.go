// Package crypto implements the cryptocurrency adapter against the
// CoinGecko API. Provider keys are CoinGecko coin ids ("bitcoin",
// "ethereum"); Resolve maps free-form input to an id via the search
// endpoint.
package crypto

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rickgao/quote-gateway/internal/httpx"
	"github.com/rickgao/quote-gateway/internal/model"
	"github.com/rickgao/quote-gateway/internal/provider"
)

// Config holds the adapter's settings.
type Config struct {
	BaseURL       string
	APIKey        string // optional; sent as x-cg-pro-api-key when set
	Timeout       time.Duration
	MaxRetries    int
	OverviewLimit int // coins per overview page
}

// Adapter fetches crypto quotes from CoinGecko.
type Adapter struct {
	cfg    Config
	client *httpx.Client
	logger *slog.Logger
}

// New creates the crypto adapter.
func New(cfg Config, logger *slog.Logger, opts ...httpx.Option) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.OverviewLimit <= 0 {
		cfg.OverviewLimit = 10
	}
	base := []httpx.Option{
		httpx.WithRetries(cfg.MaxRetries, 500*time.Millisecond),
		httpx.WithLogger(logger),
	}
	if cfg.APIKey != "" {
		base = append(base, httpx.WithHeader("x-cg-pro-api-key", cfg.APIKey))
	}
	opts = append(base, opts...)
	return &Adapter{
		cfg:    cfg,
		client: httpx.New(model.SourceCrypto, cfg.BaseURL, cfg.Timeout, opts...),
		logger: logger,
	}
}

func (a *Adapter) Source() model.Source { return model.SourceCrypto }

// Resolve maps free-form input ("BTC", "Bitcoin", "bitcoin") to a coin id.
// Exact id matches win, then exact ticker-symbol matches, then the first
// search hit. No hits surface as NotFound.
func (a *Adapter) Resolve(ctx context.Context, rawInput string) (string, error) {
	input := strings.ToLower(strings.TrimSpace(rawInput))
	if input == "" {
		return "", &provider.NotFoundError{Source: model.SourceCrypto, Input: rawInput}
	}

	var resp searchResponse
	if err := a.client.GetJSON(ctx, "/search", url.Values{"query": {input}}, &resp); err != nil {
		return "", err
	}
	if len(resp.Coins) == 0 {
		return "", &provider.NotFoundError{Source: model.SourceCrypto, Input: rawInput}
	}

	for _, coin := range resp.Coins {
		if coin.ID == input {
			return coin.ID, nil
		}
	}
	for _, coin := range resp.Coins {
		if strings.ToLower(coin.Symbol) == input {
			return coin.ID, nil
		}
	}
	return resp.Coins[0].ID, nil
}

// FetchQuote fetches the spot price for a coin id.
func (a *Adapter) FetchQuote(ctx context.Context, providerKey string) (model.Quote, error) {
	q := url.Values{
		"ids":                     {providerKey},
		"vs_currencies":           {"usd"},
		"include_market_cap":      {"true"},
		"include_24hr_vol":        {"true"},
		"include_24hr_change":     {"true"},
		"include_last_updated_at": {"true"},
	}
	var resp simplePriceResponse
	if err := a.client.GetJSON(ctx, "/simple/price", q, &resp); err != nil {
		return model.Quote{}, err
	}

	row, ok := resp[providerKey]
	if !ok || row.USD == nil {
		// CoinGecko answers 200 with an empty object for unknown ids.
		return model.Quote{}, &provider.NotFoundError{Source: model.SourceCrypto, Input: providerKey}
	}
	return Normalize(providerKey, row)
}

// FetchHistory fetches daily-granularity price history for the last days.
func (a *Adapter) FetchHistory(ctx context.Context, providerKey string, days int) ([]model.HistoryPoint, error) {
	if days <= 0 {
		days = 1
	}
	now := time.Now()
	q := url.Values{
		"vs_currency": {"usd"},
		"from":        {strconv.FormatInt(now.AddDate(0, 0, -days).Unix(), 10)},
		"to":          {strconv.FormatInt(now.Unix(), 10)},
	}
	var resp marketChartResponse
	if err := a.client.GetJSON(ctx, "/coins/"+url.PathEscape(providerKey)+"/market_chart/range", q, &resp); err != nil {
		if provider.IsNotFound(err) {
			return nil, &provider.NotFoundError{Source: model.SourceCrypto, Input: providerKey}
		}
		return nil, err
	}

	points := make([]model.HistoryPoint, 0, len(resp.Prices))
	for _, pair := range resp.Prices {
		if len(pair) < 2 {
			continue
		}
		points = append(points, model.HistoryPoint{
			Timestamp: time.UnixMilli(int64(pair[0])).UTC(),
			Value:     pair[1],
		})
	}
	return points, nil
}

// Overview fetches the top coins by market cap in one call.
func (a *Adapter) Overview(ctx context.Context) ([]model.Quote, error) {
	q := url.Values{
		"vs_currency": {"usd"},
		"per_page":    {strconv.Itoa(a.cfg.OverviewLimit)},
		"page":        {"1"},
		"sparkline":   {"false"},
	}
	var items []marketItem
	if err := a.client.GetJSON(ctx, "/coins/markets", q, &items); err != nil {
		return nil, err
	}

	quotes := make([]model.Quote, 0, len(items))
	for _, item := range items {
		quote, err := normalizeMarketItem(item)
		if err != nil {
			a.logger.Warn("skipping malformed market item", "source", "crypto", "id", item.ID, "err", err)
			continue
		}
		quotes = append(quotes, quote)
	}
	return quotes, nil
}
