package fx

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spms-io/spms/internal/feed"
	"github.com/spms-io/spms/internal/metrics"
	"github.com/spms-io/spms/pkg/eventbus"
	"github.com/spms-io/spms/pkg/model"
)

// Tracker holds the latest exchange rate for one fixed currency pair.
// Until the first successful fetch the rate is 1, so conversion behaves
// as identity. A failed refresh keeps the prior rate.
type Tracker struct {
	logger *zap.Logger
	source feed.Source
	bus    *eventbus.Bus
	pair   string

	mu   sync.RWMutex
	rate decimal.Decimal
}

// NewTracker constructs a tracker for pair (e.g. "EUR_USD").
func NewTracker(logger *zap.Logger, source feed.Source, bus *eventbus.Bus, pair string) *Tracker {
	return &Tracker{
		logger: logger,
		source: source,
		bus:    bus,
		pair:   pair,
		rate:   decimal.NewFromInt(1),
	}
}

// Pair returns the tracked currency pair.
func (t *Tracker) Pair() string {
	return t.pair
}

// Rate returns the current exchange rate.
func (t *Tracker) Rate() decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rate
}

// Refresh fetches the latest rate. On failure the prior rate stays in
// effect; the error is logged and counted, never surfaced.
func (t *Tracker) Refresh(ctx context.Context) {
	rate, err := t.source.FetchExchangeRate(ctx, t.pair)
	if err != nil {
		metrics.IncError("fx", "fetch_failed")
		t.logger.Warn("fx.refresh_failed",
			zap.String("pair", t.pair),
			zap.Error(err))
		return
	}

	t.mu.Lock()
	t.rate = rate
	t.mu.Unlock()

	metrics.SetLastRefresh("fx", time.Now())
	t.logger.Info("fx.rate_updated",
		zap.String("pair", t.pair),
		zap.String("rate", rate.String()))

	if t.bus != nil {
		t.bus.Publish(eventbus.Event{
			Type: model.EventRateUpdated,
			Payload: model.RateUpdatedEvent{
				Pair:      t.pair,
				Rate:      rate,
				Timestamp: time.Now().UTC(),
			},
		})
	}
}
