// Package stocks implements the stock-market adapter against a Yahoo
// Finance style chart API.
package stocks

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rickgao/quote-gateway/internal/httpx"
	"github.com/rickgao/quote-gateway/internal/model"
	"github.com/rickgao/quote-gateway/internal/provider"
)

// DefaultOverviewSymbols are the headline tickers fetched for overviews.
var DefaultOverviewSymbols = []string{"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA"}

// Config holds the adapter's settings.
type Config struct {
	BaseURL         string
	Timeout         time.Duration
	MaxRetries      int
	OverviewSymbols []string
	Concurrency     int // parallel overview fetches
}

// Adapter fetches stock quotes. Tickers are the provider keys; resolution is
// local normalization (uppercase), so typos surface as NotFound at fetch time.
type Adapter struct {
	cfg    Config
	client *httpx.Client
	logger *slog.Logger
}

// New creates the stock adapter.
func New(cfg Config, logger *slog.Logger, opts ...httpx.Option) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.OverviewSymbols) == 0 {
		cfg.OverviewSymbols = DefaultOverviewSymbols
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	opts = append([]httpx.Option{
		httpx.WithRetries(cfg.MaxRetries, 500*time.Millisecond),
		httpx.WithLogger(logger),
	}, opts...)
	return &Adapter{
		cfg:    cfg,
		client: httpx.New(model.SourceStock, cfg.BaseURL, cfg.Timeout, opts...),
		logger: logger,
	}
}

func (a *Adapter) Source() model.Source { return model.SourceStock }

// Resolve normalizes a ticker. Stock identifiers are their own provider keys.
func (a *Adapter) Resolve(ctx context.Context, rawInput string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(rawInput))
	if sym == "" {
		return "", &provider.NotFoundError{Source: model.SourceStock, Input: rawInput}
	}
	return sym, nil
}

// FetchQuote fetches the latest trade for one ticker.
func (a *Adapter) FetchQuote(ctx context.Context, providerKey string) (model.Quote, error) {
	var resp chartResponse
	q := url.Values{"range": {"1d"}, "interval": {"1d"}}
	if err := a.client.GetJSON(ctx, "/v8/finance/chart/"+url.PathEscape(providerKey), q, &resp); err != nil {
		if provider.IsNotFound(err) {
			return model.Quote{}, &provider.NotFoundError{Source: model.SourceStock, Input: providerKey}
		}
		return model.Quote{}, err
	}
	return Normalize(providerKey, resp)
}

// FetchHistory returns daily closes for the last days.
func (a *Adapter) FetchHistory(ctx context.Context, providerKey string, days int) ([]model.HistoryPoint, error) {
	if days <= 0 {
		days = 1
	}
	var resp chartResponse
	q := url.Values{"range": {strconv.Itoa(days) + "d"}, "interval": {"1d"}}
	if err := a.client.GetJSON(ctx, "/v8/finance/chart/"+url.PathEscape(providerKey), q, &resp); err != nil {
		if provider.IsNotFound(err) {
			return nil, &provider.NotFoundError{Source: model.SourceStock, Input: providerKey}
		}
		return nil, err
	}
	return normalizeHistory(providerKey, resp)
}

// Overview fetches the configured headline tickers in parallel. Individual
// failures are logged and skipped.
func (a *Adapter) Overview(ctx context.Context) ([]model.Quote, error) {
	sem := make(chan struct{}, a.cfg.Concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	quotes := make([]model.Quote, 0, len(a.cfg.OverviewSymbols))

	for _, sym := range a.cfg.OverviewSymbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}
			quote, err := a.FetchQuote(ctx, sym)
			if err != nil {
				a.logger.Warn("overview fetch failed", "source", "stock", "symbol", sym, "err", err)
				return
			}
			mu.Lock()
			quotes = append(quotes, quote)
			mu.Unlock()
		}(sym)
	}
	wg.Wait()

	if len(quotes) == 0 && len(a.cfg.OverviewSymbols) > 0 {
		return nil, &provider.TransientError{
			Source: model.SourceStock,
			Op:     "overview",
			Err:    fmt.Errorf("all %d symbols failed", len(a.cfg.OverviewSymbols)),
		}
	}
	return quotes, nil
}
