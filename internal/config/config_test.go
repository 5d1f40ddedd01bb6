package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	// Clear any env vars that would override defaults
	envVars := []string{
		"SERVICE_NAME", "ENV", "LOG_LEVEL", "PORT", "STREAM_PORT",
		"REDIS_ADDR", "REDIS_DB", "DATABASE_URL", "NATS_URL",
		"QUOTE_FEED_URL", "FX_FEED_URL", "FEED_API_KEY",
		"BASE_CURRENCY", "QUOTE_CURRENCY",
		"PRICE_REFRESH_INTERVAL", "RATE_REFRESH_INTERVAL",
	}
	for _, key := range envVars {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.ServiceName != "spms" {
		t.Errorf("expected ServiceName=spms, got %s", cfg.ServiceName)
	}
	if cfg.Env != "dev" {
		t.Errorf("expected Env=dev, got %s", cfg.Env)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("expected RedisAddr=localhost:6379, got %s", cfg.RedisAddr)
	}
	if cfg.Port != 9020 {
		t.Errorf("expected Port=9020, got %d", cfg.Port)
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("expected empty DatabaseURL by default, got %s", cfg.DatabaseURL)
	}
	if cfg.NATSURL != "" {
		t.Errorf("expected empty NATSURL by default, got %s", cfg.NATSURL)
	}
	if cfg.BaseCurrency != "EUR" || cfg.QuoteCurrency != "USD" {
		t.Errorf("expected EUR/USD currencies, got %s/%s", cfg.BaseCurrency, cfg.QuoteCurrency)
	}
	if cfg.PriceRefreshInterval != 5*time.Minute {
		t.Errorf("expected PriceRefreshInterval=5m, got %v", cfg.PriceRefreshInterval)
	}
	if cfg.RateRefreshInterval != 5*time.Minute {
		t.Errorf("expected RateRefreshInterval=5m, got %v", cfg.RateRefreshInterval)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("BASE_CURRENCY", "GBP")
	t.Setenv("QUOTE_CURRENCY", "JPY")
	t.Setenv("PRICE_REFRESH_INTERVAL", "30s")

	cfg := Load()

	if cfg.Port != 8080 {
		t.Errorf("expected Port=8080, got %d", cfg.Port)
	}
	if cfg.Pair() != "GBP_JPY" {
		t.Errorf("expected pair GBP_JPY, got %s", cfg.Pair())
	}
	if cfg.PriceRefreshInterval != 30*time.Second {
		t.Errorf("expected PriceRefreshInterval=30s, got %v", cfg.PriceRefreshInterval)
	}
}
