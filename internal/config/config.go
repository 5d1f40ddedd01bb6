package config

import (
	"time"

	"github.com/joho/godotenv"

	pkgconfig "github.com/spms-io/spms/pkg/config"
)

// Config holds the runtime configuration for the portfolio tracker.
// It supports environment-based initialization, with sensible defaults.
type Config struct {
	ServiceName string // e.g. "spms"
	Env         string // e.g. "dev", "prod"
	LogLevel    string // "debug", "info", etc.
	Port        int    // HTTP API port
	StreamPort  int    // WebSocket state-stream port

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	HTTPBodyLimit    int

	RedisAddr string // e.g. localhost:6379
	RedisDB   int
	RedisPass string

	DatabaseURL         string // optional Postgres mirror; empty disables it
	PGMaxConns          int
	PGMinConns          int
	PGMaxConnLifetime   time.Duration
	PGMaxConnIdleTime   time.Duration
	PGHealthCheckPeriod time.Duration

	NATSURL        string // empty disables event publishing
	SubjectPrefix  string // NATS subject prefix for change events
	EventBusBuffer int

	// Feed configuration. The API key is resolved from AWS Secrets
	// Manager when FeedAPIKeySecretID is set, otherwise FeedAPIKey is
	// used directly.
	QuoteFeedURL       string
	FXFeedURL          string
	FeedAPIKey         string
	FeedAPIKeySecretID string
	FeedTimeout        time.Duration
	FeedRatePerSecond  int
	FeedBurst          int

	AWSRegion   string
	CacheTTL    time.Duration // TTL for the resolved API key cache
	CleanupFreq time.Duration // frequency for cache cleanup goroutine

	// Currencies: holdings are valued in the base currency; totals can
	// also be requested in the quote currency via the tracked exchange
	// rate for Pair.
	BaseCurrency  string
	QuoteCurrency string

	PriceRefreshInterval time.Duration
	RateRefreshInterval  time.Duration
}

// Pair returns the exchange-rate pair identifier used by the FX feed,
// e.g. "EUR_USD".
func (c *Config) Pair() string {
	return c.BaseCurrency + "_" + c.QuoteCurrency
}

// Load loads configuration from environment variables and .env file if present.
func Load() *Config {
	// load .env silently (no error if missing)
	_ = godotenv.Load()

	cfg := &Config{
		ServiceName: pkgconfig.GetEnv("SERVICE_NAME", "spms"),
		Env:         pkgconfig.GetEnv("ENV", "dev"),
		LogLevel:    pkgconfig.GetEnv("LOG_LEVEL", "info"),
		Port:        pkgconfig.GetEnvInt("PORT", 9020),
		StreamPort:  pkgconfig.GetEnvInt("STREAM_PORT", 9021),

		HTTPReadTimeout:  pkgconfig.GetEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second),
		HTTPWriteTimeout: pkgconfig.GetEnvDuration("HTTP_WRITE_TIMEOUT", 10*time.Second),
		HTTPIdleTimeout:  pkgconfig.GetEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		HTTPBodyLimit:    pkgconfig.GetEnvInt("HTTP_BODY_LIMIT", 1*1024*1024),

		RedisAddr: pkgconfig.GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:   pkgconfig.GetEnvInt("REDIS_DB", 0),
		RedisPass: pkgconfig.GetEnv("REDIS_PASS", ""),

		DatabaseURL:         pkgconfig.GetEnv("DATABASE_URL", ""),
		PGMaxConns:          pkgconfig.GetEnvInt("PG_MAX_CONNS", 10),
		PGMinConns:          pkgconfig.GetEnvInt("PG_MIN_CONNS", 2),
		PGMaxConnLifetime:   pkgconfig.GetEnvDuration("PG_MAX_CONN_LIFETIME", 30*time.Minute),
		PGMaxConnIdleTime:   pkgconfig.GetEnvDuration("PG_MAX_CONN_IDLE_TIME", 5*time.Minute),
		PGHealthCheckPeriod: pkgconfig.GetEnvDuration("PG_HEALTH_CHECK_PERIOD", 1*time.Minute),

		NATSURL:        pkgconfig.GetEnv("NATS_URL", ""),
		SubjectPrefix:  pkgconfig.GetEnv("SUBJECT_PREFIX", "evt.spms"),
		EventBusBuffer: pkgconfig.GetEnvInt("EVENT_BUS_BUFFER", 64),

		QuoteFeedURL:       pkgconfig.GetEnv("QUOTE_FEED_URL", "https://www.alphavantage.co"),
		FXFeedURL:          pkgconfig.GetEnv("FX_FEED_URL", "https://free.currencyconverterapi.com"),
		FeedAPIKey:         pkgconfig.GetEnv("FEED_API_KEY", "demo"),
		FeedAPIKeySecretID: pkgconfig.GetEnv("FEED_API_KEY_SECRET_ID", ""),
		FeedTimeout:        pkgconfig.GetEnvDuration("FEED_TIMEOUT", 15*time.Second),
		FeedRatePerSecond:  pkgconfig.GetEnvInt("FEED_RATE_PER_SECOND", 5),
		FeedBurst:          pkgconfig.GetEnvInt("FEED_BURST", 5),

		AWSRegion:   pkgconfig.GetEnv("AWS_REGION", "us-east-2"),
		CacheTTL:    pkgconfig.GetEnvDuration("CACHE_TTL", 24*time.Hour),
		CleanupFreq: pkgconfig.GetEnvDuration("CACHE_CLEANUP_FREQ", 10*time.Minute),

		BaseCurrency:  pkgconfig.GetEnv("BASE_CURRENCY", "EUR"),
		QuoteCurrency: pkgconfig.GetEnv("QUOTE_CURRENCY", "USD"),

		PriceRefreshInterval: pkgconfig.GetEnvDuration("PRICE_REFRESH_INTERVAL", 5*time.Minute),
		RateRefreshInterval:  pkgconfig.GetEnvDuration("RATE_REFRESH_INTERVAL", 5*time.Minute),
	}

	return cfg
}
