package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"

	"github.com/spms-io/spms/internal/api"
	"github.com/spms-io/spms/internal/catalog"
	"github.com/spms-io/spms/internal/config"
	"github.com/spms-io/spms/internal/feed"
	"github.com/spms-io/spms/internal/fx"
	"github.com/spms-io/spms/internal/jobs"
	"github.com/spms-io/spms/internal/metrics"
	"github.com/spms-io/spms/internal/publisher"
	"github.com/spms-io/spms/internal/rate"
	internalsecrets "github.com/spms-io/spms/internal/secrets"
	"github.com/spms-io/spms/internal/store"
	"github.com/spms-io/spms/pkg/eventbus"
	"github.com/spms-io/spms/pkg/logger"
	"github.com/spms-io/spms/pkg/secrets"
	"github.com/spms-io/spms/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()
	logg.Info("starting [spms]...")
	if cfg.DatabaseURL != "" {
		logg.Info("mirroring to DSN: ", utils.MaskDSN(cfg.DatabaseURL))
	}

	// --- Feed API key (AWS Secrets Manager with env fallback) ---
	var provider secrets.Provider
	if cfg.FeedAPIKeySecretID != "" {
		p, err := secrets.NewAWSProvider(cfg.AWSRegion)
		if err != nil {
			logg.Fatalw("failed to create AWS Secrets Manager provider", "error", err)
		}
		provider = p
	}

	keyCache := secrets.NewCache[string](cfg.CacheTTL)
	stopCleaner := make(chan struct{})
	go keyCache.StartCleaner(cfg.CleanupFreq, stopCleaner)

	keyResolver := internalsecrets.NewAPIKeyResolver(
		logg.Desugar(),
		provider,
		keyCache,
		cfg.FeedAPIKeySecretID,
		cfg.FeedAPIKey,
	)

	// --- Store (Redis + optional Postgres mirror) ---
	st, err := store.NewHybrid(cfg.RedisAddr, cfg.RedisDB, cfg.RedisPass, cfg.DatabaseURL, store.PGPoolConfig{
		MaxConns:          int32(cfg.PGMaxConns),
		MinConns:          int32(cfg.PGMinConns),
		MaxConnLifetime:   cfg.PGMaxConnLifetime,
		MaxConnIdleTime:   cfg.PGMaxConnIdleTime,
		HealthCheckPeriod: cfg.PGHealthCheckPeriod,
	}, logg.Desugar())
	if err != nil {
		logg.Fatalw("failed to init store", "error", err)
	}

	// --- In-process event bus ---
	bus := eventbus.New(cfg.EventBusBuffer)

	// --- NATS (optional) ---
	var nc *nats.Conn
	var relay *publisher.Relay
	if cfg.NATSURL != "" {
		nc, err = nats.Connect(cfg.NATSURL)
		if err != nil {
			logg.Fatalw("failed to connect to NATS", "error", err)
		}
		pub, err := publisher.New(logg.Desugar(), nc, cfg.SubjectPrefix, cfg.ServiceName)
		if err != nil {
			logg.Fatalw("failed to init publisher", "error", err)
		}
		relay = publisher.NewRelay(logg.Desugar(), bus, pub)
		relay.Start(ctx)
	} else {
		logg.Warn("NATS_URL not configured; change events stay in-process")
	}

	// --- Rate limiter for feed calls ---
	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: cfg.FeedRatePerSecond,
		Burst:             cfg.FeedBurst,
		Cooldown:          1 * time.Second,
	})

	// --- Feed client ---
	feedClient := feed.NewClient(
		logg.Desugar(),
		rateMgr,
		cfg.QuoteFeedURL,
		cfg.FXFeedURL,
		keyResolver,
		cfg.FeedTimeout,
	)

	// --- Exchange-rate tracker ---
	tracker := fx.NewTracker(logg.Desugar(), feedClient, bus, cfg.Pair())
	rateRefresher := jobs.NewRefresher(logg.Desugar(), "fx", cfg.RateRefreshInterval, tracker.Refresh)
	go rateRefresher.Start(ctx)

	// --- Catalog (per-portfolio engines + price refreshers) ---
	cat := catalog.NewManager(
		logg.Desugar(),
		st,
		feedClient,
		bus,
		cfg.QuoteCurrency,
		cfg.PriceRefreshInterval,
	)
	if names, err := cat.List(ctx); err != nil {
		logg.Warnw("failed to list portfolios at startup", "error", err)
	} else {
		metrics.SetPortfolioCount(len(names))
		logg.Infow("catalog loaded", "portfolios", len(names))
	}

	// --- Fiber HTTP Server ---
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
		BodyLimit:    cfg.HTTPBodyLimit,
	})
	handler := api.NewHandler(logg.Desugar(), cat, tracker, cfg.BaseCurrency, cfg.QuoteCurrency)
	api.RegisterRoutes(app, nc, st, handler)

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	// --- WebSocket state stream (separate listener) ---
	stream := api.NewStreamServer(logg.Desugar(), bus, fmt.Sprintf(":%d", cfg.StreamPort))
	go func() {
		if err := stream.Start(); err != nil {
			logg.Fatalw("stream.listen_failed", "error", err)
		}
	}()

	logg.Infow("[spms] running",
		"env", cfg.Env,
		"pair", cfg.Pair(),
		"price_refresh", cfg.PriceRefreshInterval,
		"rate_refresh", cfg.RateRefreshInterval)

	<-ctx.Done()
	logg.Info("shutting down [spms]...")

	close(stopCleaner)
	rateRefresher.Stop()
	cat.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warnw("fiber.shutdown_failed", "error", err)
	}
	if err := stream.Shutdown(shutdownCtx); err != nil {
		logg.Warnw("stream.shutdown_failed", "error", err)
	}
	if relay != nil {
		relay.Stop()
	}
	if nc != nil {
		if err := nc.Drain(); err != nil {
			logg.Warnw("nats.drain_failed", "error", err)
		}
	}
	if err := st.Close(); err != nil {
		logg.Warnw("store.close_failed", "error", err)
	}
}
