package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"btcFootprint/internal/adapters/logger"
	"btcFootprint/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	// Exchange
	Symbol         string `env:"SYMBOL" envDefault:"BTCUSDT"`
	BinanceBaseURL string `env:"BINANCE_BASE_URL" envDefault:"https://api.binance.com"`

	KlinesRetries        int `env:"KLINES_RETRIES" envDefault:"3"`
	KlinesTimeoutSeconds int `env:"KLINES_TIMEOUT_SECONDS" envDefault:"15"`
	TradesRetries        int `env:"TRADES_RETRIES" envDefault:"2"`
	TradesTimeoutSeconds int `env:"TRADES_TIMEOUT_SECONDS" envDefault:"12"`
	DepthRetries         int `env:"DEPTH_RETRIES" envDefault:"2"`
	DepthTimeoutSeconds  int `env:"DEPTH_TIMEOUT_SECONDS" envDefault:"10"`
	RetryBackoffMS       int `env:"RETRY_BACKOFF_MS" envDefault:"1000"`

	// Factor 1 keeps every delay at RETRY_BACKOFF_MS.
	RetryBackoffFactor float64 `env:"RETRY_BACKOFF_FACTOR" envDefault:"1"`
	RetryBackoffMaxMS  int     `env:"RETRY_BACKOFF_MAX_MS" envDefault:"0"` // 0 uses 8x RETRY_BACKOFF_MS
	RetryJitter        bool    `env:"RETRY_JITTER" envDefault:"false"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"10"` // 0 disables
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"20"`

	// HTTP server
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":5001"`

	// Logging
	LogLevelName string `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat    string `env:"LOG_FORMAT" envDefault:"text"`

	// Series
	KlineLimit      int    `env:"KLINE_LIMIT" envDefault:"150"`
	EnrichBars      int    `env:"ENRICH_BARS" envDefault:"20"`
	LevelFill       string `env:"LEVEL_FILL" envDefault:"body"`
	TimezoneName    string `env:"TIMEZONE" envDefault:"Local"`
	CacheTTLSeconds int    `env:"CACHE_TTL_SECONDS" envDefault:"60"` // 0 never expires

	// Order book
	OrderBookTTLMS int `env:"ORDERBOOK_TTL_MS" envDefault:"3000"`
	OrderBookDepth int `env:"ORDERBOOK_DEPTH" envDefault:"1000"`

	// Request defaults for /api/data
	DefaultInterval         string  `env:"DEFAULT_INTERVAL" envDefault:"1m"`
	DefaultStep             float64 `env:"DEFAULT_STEP" envDefault:"10"`
	DefaultFilterMode       string  `env:"DEFAULT_FILTER_MODE" envDefault:"percentile"`
	DefaultFilterPercentile int     `env:"DEFAULT_FILTER_PERCENTILE" envDefault:"75"`
	DefaultFilterMinQty     float64 `env:"DEFAULT_FILTER_MIN_QTY" envDefault:"0.5"`
	DefaultFilterTopN       int     `env:"DEFAULT_FILTER_TOP_N" envDefault:"300"`

	// Relevant orders
	RelevantRangePct float64 `env:"RELEVANT_RANGE_PCT" envDefault:"0.42"`
	RelevantMinQty   float64 `env:"RELEVANT_MIN_QTY" envDefault:"3.0"`
	RelevantHistory  int     `env:"RELEVANT_HISTORY" envDefault:"50"`
	RelevantChartTF  string  `env:"RELEVANT_CHART_TF" envDefault:"15m"`

	// Derived during validation
	LogLevel logger.LogLevel
	Location *time.Location
}

// KlinesTimeout is the per-attempt timeout of kline requests.
func (c *Config) KlinesTimeout() time.Duration {
	return time.Duration(c.KlinesTimeoutSeconds) * time.Second
}

// TradesTimeout is the per-attempt timeout of trade requests.
func (c *Config) TradesTimeout() time.Duration {
	return time.Duration(c.TradesTimeoutSeconds) * time.Second
}

// DepthTimeout is the per-attempt timeout of order book requests.
func (c *Config) DepthTimeout() time.Duration {
	return time.Duration(c.DepthTimeoutSeconds) * time.Second
}

// RetryBackoff is the delay between exchange attempts.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMS) * time.Millisecond
}

// RetryBackoffMax caps the growing delay when RetryBackoffFactor is above 1.
func (c *Config) RetryBackoffMax() time.Duration {
	return time.Duration(c.RetryBackoffMaxMS) * time.Millisecond
}

// CacheTTL is the lifetime of a full series. Zero means entries never expire.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// OrderBookTTL is the minimum age before the order book is fetched again.
func (c *Config) OrderBookTTL() time.Duration {
	return time.Duration(c.OrderBookTTLMS) * time.Millisecond
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if errs := cfg.validate(); len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// validate checks every value, fills the derived fields, and returns all problems found.
func (c *Config) validate() []string {
	var errs []string

	c.Symbol = strings.ToUpper(strings.TrimSpace(c.Symbol))
	if c.Symbol == "" {
		errs = append(errs, "SYMBOL must be set")
	}
	if c.BinanceBaseURL == "" {
		errs = append(errs, "BINANCE_BASE_URL must be set")
	}
	if c.HTTPAddr == "" {
		errs = append(errs, "HTTP_ADDR must be set")
	}

	// Exchange retry budgets
	if c.KlinesRetries <= 0 || c.TradesRetries <= 0 || c.DepthRetries <= 0 {
		errs = append(errs, "KLINES_RETRIES, TRADES_RETRIES and DEPTH_RETRIES must be positive")
	}
	if c.KlinesTimeoutSeconds <= 0 || c.TradesTimeoutSeconds <= 0 || c.DepthTimeoutSeconds <= 0 {
		errs = append(errs, "exchange timeouts must be positive")
	}
	if c.RetryBackoffMS < 0 {
		errs = append(errs, "RETRY_BACKOFF_MS cannot be negative")
	}
	if c.RetryBackoffFactor < 1 {
		errs = append(errs, fmt.Sprintf("RETRY_BACKOFF_FACTOR must be at least 1, got %v", c.RetryBackoffFactor))
	}
	if c.RetryBackoffMaxMS < 0 {
		errs = append(errs, "RETRY_BACKOFF_MAX_MS cannot be negative")
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		errs = append(errs, "RATE_LIMIT_RPS and RATE_LIMIT_BURST cannot be negative")
	}

	// Logging
	c.LogLevel = logger.ParseLevel(c.LogLevelName)
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}

	// Series
	if c.KlineLimit <= 0 || c.KlineLimit > 1000 {
		errs = append(errs, "KLINE_LIMIT must be between 1 and 1000")
	}
	if c.EnrichBars < 0 {
		errs = append(errs, "ENRICH_BARS cannot be negative")
	}
	if !domain.LevelFill(c.LevelFill).Valid() {
		errs = append(errs, fmt.Sprintf("LEVEL_FILL must be body or range, got %q", c.LevelFill))
	}
	loc, err := time.LoadLocation(c.TimezoneName)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TIMEZONE: %v", err))
	} else {
		c.Location = loc
	}
	if c.CacheTTLSeconds < 0 {
		errs = append(errs, "CACHE_TTL_SECONDS cannot be negative")
	}

	// Order book
	if c.OrderBookTTLMS <= 0 {
		errs = append(errs, "ORDERBOOK_TTL_MS must be positive")
	}
	if c.OrderBookDepth <= 0 || c.OrderBookDepth > 5000 {
		errs = append(errs, "ORDERBOOK_DEPTH must be between 1 and 5000")
	}

	// Request defaults
	if _, err := domain.IntervalDuration(c.DefaultInterval); err != nil {
		errs = append(errs, fmt.Sprintf("invalid DEFAULT_INTERVAL: %v", err))
	}
	if c.DefaultStep <= 0 {
		errs = append(errs, "DEFAULT_STEP must be positive")
	}
	if !domain.FilterMode(c.DefaultFilterMode).Valid() {
		errs = append(errs, fmt.Sprintf("invalid DEFAULT_FILTER_MODE %q", c.DefaultFilterMode))
	}
	if c.DefaultFilterPercentile < 0 || c.DefaultFilterPercentile > 100 {
		errs = append(errs, "DEFAULT_FILTER_PERCENTILE must be between 0 and 100")
	}
	if c.DefaultFilterMinQty < 0 {
		errs = append(errs, "DEFAULT_FILTER_MIN_QTY cannot be negative")
	}
	if c.DefaultFilterTopN <= 0 {
		errs = append(errs, "DEFAULT_FILTER_TOP_N must be positive")
	}

	// Relevant orders
	if c.RelevantRangePct <= 0 {
		errs = append(errs, "RELEVANT_RANGE_PCT must be positive")
	}
	if c.RelevantMinQty < 0 {
		errs = append(errs, "RELEVANT_MIN_QTY cannot be negative")
	}
	if c.RelevantHistory <= 0 {
		errs = append(errs, "RELEVANT_HISTORY must be positive")
	}
	if _, err := domain.IntervalDuration(c.RelevantChartTF); err != nil {
		errs = append(errs, fmt.Sprintf("invalid RELEVANT_CHART_TF: %v", err))
	}

	return errs
}
