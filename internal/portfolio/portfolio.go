package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spms-io/spms/internal/feed"
	"github.com/spms-io/spms/internal/jobs"
	"github.com/spms-io/spms/internal/metrics"
	"github.com/spms-io/spms/internal/store"
	"github.com/spms-io/spms/pkg/eventbus"
	"github.com/spms-io/spms/pkg/model"
)

var (
	// ErrInvalidInput rejects an empty symbol or a non-positive quantity.
	ErrInvalidInput = errors.New("invalid symbol or quantity")
	// ErrDuplicateSymbol rejects adding a symbol the portfolio already
	// holds. Matching is case-sensitive.
	ErrDuplicateSymbol = errors.New("symbol already in portfolio")
	// ErrStorageRejected reports that the store refused the write, e.g.
	// the holdings limit was reached. The in-memory state is rolled back.
	ErrStorageRejected = errors.New("storage rejected the update")
)

// priceFetchTimeout bounds the detached fire-and-forget fetch started by
// AddHolding.
const priceFetchTimeout = 30 * time.Second

// Portfolio owns one portfolio's holdings list: it applies add/remove
// mutations, recomputes aggregate value, and persists through the store.
// All mutations are serialized by an internal mutex; asynchronous price
// resolutions re-check membership before writing, so a resolution
// arriving after its symbol was removed is dropped.
type Portfolio struct {
	name          string
	quoteCurrency string
	logger        *zap.Logger
	store         store.Store
	source        feed.Source
	bus           *eventbus.Bus

	mu        sync.Mutex
	holdings  []model.Holding
	closed    bool
	refresher *jobs.Refresher
}

// Open materializes the portfolio named name from the store. A name with
// no persisted record opens with an empty holdings list.
func Open(ctx context.Context, name, quoteCurrency string, st store.Store, source feed.Source, bus *eventbus.Bus, logger *zap.Logger) (*Portfolio, error) {
	holdings, err := st.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("open portfolio %q: %w", name, err)
	}

	logger.Info("portfolio.opened",
		zap.String("portfolio", name),
		zap.Int("holdings", len(holdings)))

	return &Portfolio{
		name:          name,
		quoteCurrency: quoteCurrency,
		logger:        logger,
		store:         st,
		source:        source,
		bus:           bus,
		holdings:      holdings,
	}, nil
}

// Name returns the portfolio's name.
func (p *Portfolio) Name() string {
	return p.name
}

// AddHolding validates and appends a new holding, persists the list, and
// kicks off a fire-and-forget price fetch for the symbol. The holding's
// unit value stays zero until that fetch resolves; a fetch failure is not
// surfaced to the caller.
func (p *Portfolio) AddHolding(ctx context.Context, symbol string, quantity decimal.Decimal) error {
	if symbol == "" || !quantity.IsPositive() {
		return ErrInvalidInput
	}

	p.mu.Lock()
	for _, h := range p.holdings {
		if h.Symbol == symbol {
			p.mu.Unlock()
			return ErrDuplicateSymbol
		}
	}

	p.holdings = append(p.holdings, model.Holding{
		Symbol:    symbol,
		Quantity:  quantity,
		UnitValue: decimal.Zero,
	})

	ok, err := p.store.Save(ctx, p.name, p.holdings)
	if err != nil || !ok {
		// roll back the append; the list must read exactly as before
		p.holdings = p.holdings[:len(p.holdings)-1]
		p.mu.Unlock()
		if err != nil {
			metrics.IncError("portfolio", "save_failed")
			return fmt.Errorf("persist %q: %w", p.name, err)
		}
		return ErrStorageRejected
	}
	p.mu.Unlock()

	p.logger.Info("portfolio.holding_added",
		zap.String("portfolio", p.name),
		zap.String("symbol", symbol),
		zap.String("quantity", quantity.String()))

	p.publishChanged("holding_added", []string{symbol})

	go p.resolvePrice(symbol)

	return nil
}

// RemoveHoldings removes every holding whose symbol is in symbols and
// persists the resulting list. Absent symbols are ignored, so the call is
// idempotent.
func (p *Portfolio) RemoveHoldings(ctx context.Context, symbols ...string) error {
	drop := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		drop[s] = struct{}{}
	}

	p.mu.Lock()
	kept := p.holdings[:0]
	var removed []string
	for _, h := range p.holdings {
		if _, ok := drop[h.Symbol]; ok {
			removed = append(removed, h.Symbol)
			continue
		}
		kept = append(kept, h)
	}
	p.holdings = kept

	// Removal never hits a capacity bound, so a refused save here can
	// only mean the backend itself failed. The in-memory list keeps the
	// removal; the next successful save converges the record.
	_, err := p.store.Save(ctx, p.name, p.holdings)
	p.mu.Unlock()

	if err != nil {
		metrics.IncError("portfolio", "save_failed")
		p.logger.Error("portfolio.remove_persist_failed",
			zap.String("portfolio", p.name),
			zap.Error(err))
		return fmt.Errorf("persist %q: %w", p.name, err)
	}

	if len(removed) > 0 {
		p.logger.Info("portfolio.holdings_removed",
			zap.String("portfolio", p.name),
			zap.Strings("symbols", removed))
		p.publishChanged("holdings_removed", removed)
	}
	return nil
}

// TotalValue sums unit value times quantity over all holdings. Holdings
// whose price has never resolved contribute zero. The rate is applied
// only when currency is the quote currency; any other currency is valued
// at par. The result is unrounded; display rounding is the caller's
// concern.
func (p *Portfolio) TotalValue(currency string, rate decimal.Decimal) decimal.Decimal {
	p.mu.Lock()
	total := decimal.Zero
	for _, h := range p.holdings {
		total = total.Add(h.MarketValue())
	}
	p.mu.Unlock()

	if currency == p.quoteCurrency {
		total = total.Mul(rate)
	}
	return total
}

// Snapshot returns a copy of the holdings list in insertion order.
func (p *Portfolio) Snapshot() []model.Holding {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.Holding, len(p.holdings))
	copy(out, p.holdings)
	return out
}

// RefreshPrices fetches the latest price for every holding. Each
// resolution is applied independently, so one failed symbol leaves the
// others' fresh values intact. There is no retry; the next scheduled
// cycle is the only recovery mechanism.
func (p *Portfolio) RefreshPrices(ctx context.Context) {
	p.mu.Lock()
	symbols := make([]string, len(p.holdings))
	for i, h := range p.holdings {
		symbols[i] = h.Symbol
	}
	p.mu.Unlock()

	for _, symbol := range symbols {
		price, err := p.source.FetchPrice(ctx, symbol)
		if err != nil {
			// already logged by the feed client; value stays stale
			metrics.IncError("portfolio", "price_fetch_failed")
			continue
		}
		p.applyPrice(ctx, symbol, price)
	}

	metrics.SetLastRefresh("portfolio:"+p.name, time.Now())
}

// StartRefresher begins the periodic price refresh loop for this
// portfolio. It may be started at most once.
func (p *Portfolio) StartRefresher(ctx context.Context, interval time.Duration) {
	p.mu.Lock()
	if p.closed || p.refresher != nil {
		p.mu.Unlock()
		return
	}
	r := jobs.NewRefresher(p.logger, "portfolio:"+p.name, interval, p.RefreshPrices)
	p.refresher = r
	p.mu.Unlock()

	go r.Start(ctx)
}

// Close tears the portfolio down: the refresher is stopped exactly once
// and any in-flight price resolution is dropped when it lands.
func (p *Portfolio) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	r := p.refresher
	p.mu.Unlock()

	if r != nil {
		r.Stop()
	}
	p.logger.Info("portfolio.closed", zap.String("portfolio", p.name))
}

// resolvePrice is the fire-and-forget fetch behind AddHolding. It runs
// detached from the request context.
func (p *Portfolio) resolvePrice(symbol string) {
	ctx, cancel := context.WithTimeout(context.Background(), priceFetchTimeout)
	defer cancel()

	price, err := p.source.FetchPrice(ctx, symbol)
	if err != nil {
		metrics.IncError("portfolio", "price_fetch_failed")
		return
	}
	p.applyPrice(ctx, symbol, price)
}

// applyPrice writes a resolved price onto the holding, provided the
// symbol is still a member and the portfolio is still live. The record is
// re-persisted so reloads see the last known value; a persist failure
// keeps the in-memory value.
func (p *Portfolio) applyPrice(ctx context.Context, symbol string, price decimal.Decimal) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.logger.Debug("portfolio.stale_price_dropped",
			zap.String("portfolio", p.name),
			zap.String("symbol", symbol),
			zap.String("reason", "closed"))
		return
	}

	idx := -1
	for i, h := range p.holdings {
		if h.Symbol == symbol {
			idx = i
			break
		}
	}
	if idx < 0 {
		p.mu.Unlock()
		p.logger.Debug("portfolio.stale_price_dropped",
			zap.String("portfolio", p.name),
			zap.String("symbol", symbol),
			zap.String("reason", "removed"))
		return
	}

	p.holdings[idx].UnitValue = price

	if _, err := p.store.Save(ctx, p.name, p.holdings); err != nil {
		p.logger.Warn("portfolio.price_persist_failed",
			zap.String("portfolio", p.name),
			zap.String("symbol", symbol),
			zap.Error(err))
	}
	p.mu.Unlock()

	p.logger.Debug("portfolio.price_applied",
		zap.String("portfolio", p.name),
		zap.String("symbol", symbol),
		zap.String("price", price.String()))

	if p.bus != nil {
		p.bus.Publish(eventbus.Event{
			Type: model.EventPriceUpdated,
			Payload: model.PriceUpdatedEvent{
				Portfolio: p.name,
				Symbol:    symbol,
				UnitValue: price,
				Timestamp: time.Now().UTC(),
			},
		})
	}
}

func (p *Portfolio) publishChanged(action string, symbols []string) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(eventbus.Event{
		Type: model.EventPortfolioChanged,
		Payload: model.PortfolioChangedEvent{
			Portfolio: p.name,
			Action:    action,
			Symbols:   symbols,
			Timestamp: time.Now().UTC(),
		},
	})
}
