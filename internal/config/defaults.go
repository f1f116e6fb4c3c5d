package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 8080
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second

	DefaultStocksURL = "https://query1.finance.yahoo.com"
	DefaultCryptoURL = "https://api.coingecko.com/api/v3"
	DefaultGammaURL  = "https://gamma-api.polymarket.com"
	DefaultClobURL   = "https://clob.polymarket.com"

	DefaultProviderTimeout     = 10 * time.Second
	DefaultMaxRetries          = 3
	DefaultProviderConcurrency = 4
	DefaultOverviewLimit       = 5

	DefaultQuoteTTL        = 10 * time.Second
	DefaultSweepInterval   = time.Minute
	DefaultRateLimitWindow = 30 * time.Second

	DefaultResolveTTL         = time.Hour
	DefaultResolveNegativeTTL = 30 * time.Second

	DefaultOverviewTTL = 5 * time.Minute

	DefaultCryptoInterval     = 10 * time.Second
	DefaultStockInterval      = 15 * time.Second
	DefaultEventsInterval     = 60 * time.Second
	DefaultRefreshGrace       = 5 * time.Minute
	DefaultRefreshConcurrency = 8
	DefaultRefreshTimeout     = 10 * time.Second

	DefaultQueueSize = 64

	DefaultMetricsPath = "/metrics"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// DefaultOverviewSymbols is the equity overview set when none is configured.
var DefaultOverviewSymbols = []string{"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA"}

func (c *GatewayConfig) applyDefaults() {
	// Server defaults
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Provider defaults
	if c.Providers.Stocks.BaseURL == "" {
		c.Providers.Stocks.BaseURL = DefaultStocksURL
	}
	if c.Providers.Stocks.Timeout == 0 {
		c.Providers.Stocks.Timeout = DefaultProviderTimeout
	}
	if c.Providers.Stocks.MaxRetries == 0 {
		c.Providers.Stocks.MaxRetries = DefaultMaxRetries
	}
	if len(c.Providers.Stocks.OverviewSymbols) == 0 {
		c.Providers.Stocks.OverviewSymbols = append([]string(nil), DefaultOverviewSymbols...)
	}
	if c.Providers.Stocks.Concurrency == 0 {
		c.Providers.Stocks.Concurrency = DefaultProviderConcurrency
	}

	if c.Providers.Crypto.BaseURL == "" {
		c.Providers.Crypto.BaseURL = DefaultCryptoURL
	}
	if c.Providers.Crypto.Timeout == 0 {
		c.Providers.Crypto.Timeout = DefaultProviderTimeout
	}
	if c.Providers.Crypto.MaxRetries == 0 {
		c.Providers.Crypto.MaxRetries = DefaultMaxRetries
	}
	if c.Providers.Crypto.OverviewLimit == 0 {
		c.Providers.Crypto.OverviewLimit = DefaultOverviewLimit
	}

	if c.Providers.Events.GammaURL == "" {
		c.Providers.Events.GammaURL = DefaultGammaURL
	}
	if c.Providers.Events.ClobURL == "" {
		c.Providers.Events.ClobURL = DefaultClobURL
	}
	if c.Providers.Events.Timeout == 0 {
		c.Providers.Events.Timeout = DefaultProviderTimeout
	}
	if c.Providers.Events.MaxRetries == 0 {
		c.Providers.Events.MaxRetries = DefaultMaxRetries
	}
	if c.Providers.Events.OverviewLimit == 0 {
		c.Providers.Events.OverviewLimit = DefaultOverviewLimit
	}

	// Cache defaults
	if c.Cache.QuoteTTL == 0 {
		c.Cache.QuoteTTL = DefaultQuoteTTL
	}
	if c.Cache.SweepInterval == 0 {
		c.Cache.SweepInterval = DefaultSweepInterval
	}
	if c.Cache.RateLimitWindow == 0 {
		c.Cache.RateLimitWindow = DefaultRateLimitWindow
	}

	// Resolution defaults
	if c.Resolve.TTL == 0 {
		c.Resolve.TTL = DefaultResolveTTL
	}
	if c.Resolve.NegativeTTL == 0 {
		c.Resolve.NegativeTTL = DefaultResolveNegativeTTL
	}

	// Overview defaults
	if c.Overview.TTL == 0 {
		c.Overview.TTL = DefaultOverviewTTL
	}

	// Refresh defaults
	if c.Refresh.StockInterval == 0 {
		c.Refresh.StockInterval = DefaultStockInterval
	}
	if c.Refresh.CryptoInterval == 0 {
		c.Refresh.CryptoInterval = DefaultCryptoInterval
	}
	if c.Refresh.EventsInterval == 0 {
		c.Refresh.EventsInterval = DefaultEventsInterval
	}
	if c.Refresh.Grace == 0 {
		c.Refresh.Grace = DefaultRefreshGrace
	}
	if c.Refresh.Concurrency == 0 {
		c.Refresh.Concurrency = DefaultRefreshConcurrency
	}
	if c.Refresh.Timeout == 0 {
		c.Refresh.Timeout = DefaultRefreshTimeout
	}

	// Hub defaults
	if c.Hub.QueueSize == 0 {
		c.Hub.QueueSize = DefaultQueueSize
	}

	// Metrics defaults
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}
