package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *GatewayConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Providers.Stocks.BaseURL == "" {
		return errors.New("providers.stocks.base_url is required")
	}
	if c.Providers.Crypto.BaseURL == "" {
		return errors.New("providers.crypto.base_url is required")
	}
	if c.Providers.Events.GammaURL == "" {
		return errors.New("providers.events.gamma_url is required")
	}
	if c.Providers.Events.ClobURL == "" {
		return errors.New("providers.events.clob_url is required")
	}
	if len(c.Providers.Stocks.OverviewSymbols) == 0 {
		return errors.New("providers.stocks.overview_symbols must not be empty")
	}

	if c.Cache.QuoteTTL <= 0 {
		return errors.New("cache.quote_ttl must be positive")
	}
	if c.Resolve.TTL <= 0 {
		return errors.New("resolve.ttl must be positive")
	}
	if c.Overview.TTL <= 0 {
		return errors.New("overview.ttl must be positive")
	}

	if c.Refresh.Concurrency < 1 {
		return errors.New("refresh.concurrency must be >= 1")
	}
	if c.Refresh.StockInterval <= 0 || c.Refresh.CryptoInterval <= 0 || c.Refresh.EventsInterval <= 0 {
		return errors.New("refresh intervals must be positive")
	}

	if c.Hub.QueueSize < 1 {
		return errors.New("hub.queue_size must be >= 1")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}

	return nil
}
