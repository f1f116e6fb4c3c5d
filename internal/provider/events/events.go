// Package events implements the prediction-market adapter against a
// Polymarket-style Gamma API, with price history served by the CLOB API.
// Provider keys are market slugs; users may supply a slug or a 0x-prefixed
// condition id.
package events

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
	GammaURL      string
	ClobURL       string
	Timeout       time.Duration
	MaxRetries    int
	OverviewLimit int // active events per overview page
}

// Adapter fetches prediction-market quotes.
type Adapter struct {
	cfg    Config
	gamma  *httpx.Client
	clob   *httpx.Client
	logger *slog.Logger
}

// New creates the events adapter.
func New(cfg Config, logger *slog.Logger, opts ...httpx.Option) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.OverviewLimit <= 0 {
		cfg.OverviewLimit = 5
	}
	opts = append([]httpx.Option{
		httpx.WithRetries(cfg.MaxRetries, 500*time.Millisecond),
		httpx.WithLogger(logger),
	}, opts...)
	return &Adapter{
		cfg:    cfg,
		gamma:  httpx.New(model.SourceEvents, cfg.GammaURL, cfg.Timeout, opts...),
		clob:   httpx.New(model.SourceEvents, cfg.ClobURL, cfg.Timeout, opts...),
		logger: logger,
	}
}

func (a *Adapter) Source() model.Source { return model.SourceEvents }

// Resolve maps a slug or 0x condition id to the market's canonical slug.
func (a *Adapter) Resolve(ctx context.Context, rawInput string) (string, error) {
	input := strings.TrimSpace(rawInput)
	if input == "" {
		return "", &provider.NotFoundError{Source: model.SourceEvents, Input: rawInput}
	}

	market, err := a.lookupMarket(ctx, input)
	if err != nil {
		return "", err
	}
	if market.Slug != "" {
		return market.Slug, nil
	}
	return input, nil
}

// FetchQuote fetches and normalizes one market by slug.
func (a *Adapter) FetchQuote(ctx context.Context, providerKey string) (model.Quote, error) {
	market, err := a.lookupMarket(ctx, providerKey)
	if err != nil {
		return model.Quote{}, err
	}
	return Normalize(market)
}

// FetchHistory returns the favored outcome's price history for the last
// days, via the CLOB prices-history endpoint.
func (a *Adapter) FetchHistory(ctx context.Context, providerKey string, days int) ([]model.HistoryPoint, error) {
	if days <= 0 {
		days = 1
	}

	market, err := a.lookupMarket(ctx, providerKey)
	if err != nil {
		return nil, err
	}
	tokens := parseStringList(market.ClobTokenIDs)
	if len(tokens) == 0 {
		return nil, &provider.ValidationError{
			Source: model.SourceEvents,
			Field:  "clobTokenIds",
			Reason: "empty; market has no tradeable tokens",
		}
	}

	// Index 0 is the market's primary outcome token.
	now := time.Now()
	q := url.Values{
		"market":   {tokens[0]},
		"startTs":  {strconv.FormatInt(now.AddDate(0, 0, -days).Unix(), 10)},
		"endTs":    {strconv.FormatInt(now.Unix(), 10)},
		"fidelity": {"1440"}, // one point per day, in minutes
	}
	var resp historyResponse
	if err := a.clob.GetJSON(ctx, "/prices-history", q, &resp); err != nil {
		return nil, err
	}

	points := make([]model.HistoryPoint, 0, len(resp.History))
	for _, h := range resp.History {
		points = append(points, model.HistoryPoint{
			Timestamp: time.Unix(h.T, 0).UTC(),
			Value:     h.P,
		})
	}
	return points, nil
}

// Overview lists active event markets, flattened from the events listing.
func (a *Adapter) Overview(ctx context.Context) ([]model.Quote, error) {
	q := url.Values{
		"active": {"true"},
		"closed": {"false"},
		"limit":  {strconv.Itoa(a.cfg.OverviewLimit)},
	}
	var events []eventWire
	if err := a.gamma.GetJSON(ctx, "/events", q, &events); err != nil {
		return nil, err
	}

	var quotes []model.Quote
	for _, ev := range events {
		for _, market := range ev.Markets {
			quote, err := Normalize(market)
			if err != nil {
				a.logger.Warn("skipping malformed market", "source", "events", "slug", market.Slug, "err", err)
				continue
			}
			quotes = append(quotes, quote)
		}
	}
	return quotes, nil
}

// lookupMarket queries /markets by slug, or by condition id for 0x inputs.
func (a *Adapter) lookupMarket(ctx context.Context, key string) (MarketWire, error) {
	q := url.Values{"limit": {"1"}}
	if strings.HasPrefix(key, "0x") {
		q.Set("condition_id", key)
	} else {
		q.Set("slug", key)
	}

	var markets []MarketWire
	if err := a.gamma.GetJSON(ctx, "/markets", q, &markets); err != nil {
		return MarketWire{}, err
	}
	if len(markets) == 0 {
		return MarketWire{}, &provider.NotFoundError{Source: model.SourceEvents, Input: key}
	}
	return markets[0], nil
}
