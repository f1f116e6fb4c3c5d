// Package config defines the gateway's YAML configuration: load, defaults,
// validation.
package config

import "time"

// GatewayConfig is the root configuration for a gateway instance.
type GatewayConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Cache     CacheConfig     `yaml:"cache"`
	Resolve   ResolveConfig   `yaml:"resolve"`
	Overview  OverviewConfig  `yaml:"overview"`
	Refresh   RefreshConfig   `yaml:"refresh"`
	Hub       HubConfig       `yaml:"hub"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ProvidersConfig holds one section per upstream source.
type ProvidersConfig struct {
	Stocks StocksConfig `yaml:"stocks"`
	Crypto CryptoConfig `yaml:"crypto"`
	Events EventsConfig `yaml:"events"`
}

// StocksConfig holds the equities provider settings.
type StocksConfig struct {
	BaseURL         string        `yaml:"base_url"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxRetries      int           `yaml:"max_retries"`
	OverviewSymbols []string      `yaml:"overview_symbols"`
	Concurrency     int           `yaml:"concurrency"`
}

// CryptoConfig holds the crypto provider settings.
type CryptoConfig struct {
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"api_key"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	OverviewLimit int           `yaml:"overview_limit"`
}

// EventsConfig holds the prediction-market provider settings. Quotes come
// from the Gamma API, price history from the CLOB API.
type EventsConfig struct {
	GammaURL      string        `yaml:"gamma_url"`
	ClobURL       string        `yaml:"clob_url"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	OverviewLimit int           `yaml:"overview_limit"`
}

// CacheConfig holds quote cache policy.
type CacheConfig struct {
	QuoteTTL          time.Duration `yaml:"quote_ttl"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	ServeStaleOnError bool          `yaml:"serve_stale_on_error"`
	RateLimitWindow   time.Duration `yaml:"rate_limit_window"`
}

// ResolveConfig holds identifier-resolution cache policy.
type ResolveConfig struct {
	TTL         time.Duration `yaml:"ttl"`
	NegativeTTL time.Duration `yaml:"negative_ttl"`
}

// OverviewConfig holds overview aggregation policy.
type OverviewConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// RefreshConfig holds background refresh cadence.
type RefreshConfig struct {
	StockInterval  time.Duration `yaml:"stock_interval"`
	CryptoInterval time.Duration `yaml:"crypto_interval"`
	EventsInterval time.Duration `yaml:"events_interval"`
	Grace          time.Duration `yaml:"grace"`
	Concurrency    int           `yaml:"concurrency"`
	Timeout        time.Duration `yaml:"timeout"`
}

// HubConfig holds subscriber fan-out settings.
type HubConfig struct {
	QueueSize int `yaml:"queue_size"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}
