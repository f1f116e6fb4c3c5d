package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rickgao/quote-gateway/internal/aggregate"
	"github.com/rickgao/quote-gateway/internal/api"
	"github.com/rickgao/quote-gateway/internal/config"
	"github.com/rickgao/quote-gateway/internal/hub"
	"github.com/rickgao/quote-gateway/internal/metrics"
	"github.com/rickgao/quote-gateway/internal/model"
	"github.com/rickgao/quote-gateway/internal/provider"
	"github.com/rickgao/quote-gateway/internal/provider/crypto"
	"github.com/rickgao/quote-gateway/internal/provider/events"
	"github.com/rickgao/quote-gateway/internal/provider/stocks"
	"github.com/rickgao/quote-gateway/internal/quote"
	"github.com/rickgao/quote-gateway/internal/refresh"
	"github.com/rickgao/quote-gateway/internal/resolve"
	"github.com/rickgao/quote-gateway/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/gateway.local.yaml", "path to config file")
	flag.Parse()

	// Load configuration. Missing file falls back to defaults so the
	// gateway runs out of the box against the public provider endpoints.
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg = config.Default()
		} else {
			slog.Error("failed to load config", "error", err)
			os.Exit(1)
		}
	}

	// Set up structured logging
	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting quote gateway",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Metrics registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// Provider adapters
	adapters := map[model.Source]provider.Adapter{
		model.SourceStock: stocks.New(stocks.Config{
			BaseURL:         cfg.Providers.Stocks.BaseURL,
			Timeout:         cfg.Providers.Stocks.Timeout,
			MaxRetries:      cfg.Providers.Stocks.MaxRetries,
			OverviewSymbols: cfg.Providers.Stocks.OverviewSymbols,
			Concurrency:     cfg.Providers.Stocks.Concurrency,
		}, logger),
		model.SourceCrypto: crypto.New(crypto.Config{
			BaseURL:       cfg.Providers.Crypto.BaseURL,
			APIKey:        cfg.Providers.Crypto.APIKey,
			Timeout:       cfg.Providers.Crypto.Timeout,
			MaxRetries:    cfg.Providers.Crypto.MaxRetries,
			OverviewLimit: cfg.Providers.Crypto.OverviewLimit,
		}, logger),
		model.SourceEvents: events.New(events.Config{
			GammaURL:      cfg.Providers.Events.GammaURL,
			ClobURL:       cfg.Providers.Events.ClobURL,
			Timeout:       cfg.Providers.Events.Timeout,
			MaxRetries:    cfg.Providers.Events.MaxRetries,
			OverviewLimit: cfg.Providers.Events.OverviewLimit,
		}, logger),
	}

	// Read path: resolver → quote service → aggregator
	resolver := resolve.New(adapters, resolve.Config{
		TTL:         cfg.Resolve.TTL,
		NegativeTTL: cfg.Resolve.NegativeTTL,
	}, logger, m)

	quotes := quote.New(adapters, resolver, quote.Config{
		TTL:               cfg.Cache.QuoteTTL,
		ServeStaleOnError: cfg.Cache.ServeStaleOnError,
		RateLimitWindow:   cfg.Cache.RateLimitWindow,
		SweepInterval:     cfg.Cache.SweepInterval,
	}, logger, m)

	aggregator := aggregate.New(adapters, aggregate.Config{
		TTL: cfg.Overview.TTL,
	}, logger, m)

	// Push path: refresher → hub → websocket subscribers
	updates := make(chan model.UpdateEvent, 256)
	h := hub.New(hub.Config{QueueSize: cfg.Hub.QueueSize}, updates, logger, m)

	interest := refresh.NewInterest(cfg.Refresh.Grace, nil)
	refresher := refresh.New(refresh.Config{
		Intervals: map[model.Source]time.Duration{
			model.SourceStock:  cfg.Refresh.StockInterval,
			model.SourceCrypto: cfg.Refresh.CryptoInterval,
			model.SourceEvents: cfg.Refresh.EventsInterval,
		},
		Grace:       cfg.Refresh.Grace,
		Concurrency: cfg.Refresh.Concurrency,
		Timeout:     cfg.Refresh.Timeout,
	}, quotes, h, interest, updates, logger, m)

	// Start components
	components := []struct {
		name string
		comp interface {
			Start(context.Context) error
			Stop(context.Context) error
		}
	}{
		{"quote service", quotes},
		{"hub", h},
		{"refresher", refresher},
	}
	for _, c := range components {
		if err := c.comp.Start(ctx); err != nil {
			logger.Error("failed to start component", "component", c.name, "error", err)
			os.Exit(1)
		}
	}

	// HTTP server
	server := api.New(cfg.Server, cfg.Metrics.Path, registry,
		quotes, aggregator, h, refresher, interest, logger)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			logger.Error("http server failed", "error", err)
		}
		cancel()
	}

	// Graceful shutdown, reverse start order.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", "error", err)
	}
	for i := len(components) - 1; i >= 0; i-- {
		if err := components[i].comp.Stop(shutdownCtx); err != nil {
			logger.Warn("component shutdown", "component", components[i].name, "error", err)
		}
	}

	logger.Info("quote gateway stopped")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
