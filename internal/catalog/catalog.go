package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spms-io/spms/internal/feed"
	"github.com/spms-io/spms/internal/metrics"
	"github.com/spms-io/spms/internal/portfolio"
	"github.com/spms-io/spms/internal/store"
	"github.com/spms-io/spms/pkg/eventbus"
	"github.com/spms-io/spms/pkg/model"
)

var (
	// ErrInvalidName rejects an empty portfolio name.
	ErrInvalidName = errors.New("invalid portfolio name")
	// ErrDuplicateName rejects creating a name that already exists.
	// Matching is case-sensitive.
	ErrDuplicateName = errors.New("portfolio name already exists")
	// ErrCapacityExceeded reports that the portfolio limit was reached.
	ErrCapacityExceeded = errors.New("portfolio limit reached")
	// ErrNotFound reports an unknown portfolio name.
	ErrNotFound = errors.New("portfolio not found")
)

// Manager is the catalog of portfolios: it creates and deletes names,
// lists them, and hands out the live engine for each. Engines are opened
// lazily on first access and each one runs its own periodic price
// refresh loop until the manager closes it.
type Manager struct {
	logger          *zap.Logger
	store           store.Store
	source          feed.Source
	bus             *eventbus.Bus
	quoteCurrency   string
	refreshInterval time.Duration

	// refreshers outlive the request that opened the engine
	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu     sync.Mutex
	open   map[string]*portfolio.Portfolio
	closed bool
}

// NewManager builds the catalog over the given store and price source.
func NewManager(logger *zap.Logger, st store.Store, source feed.Source, bus *eventbus.Bus, quoteCurrency string, refreshInterval time.Duration) *Manager {
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &Manager{
		logger:          logger,
		store:           st,
		source:          source,
		bus:             bus,
		quoteCurrency:   quoteCurrency,
		refreshInterval: refreshInterval,
		baseCtx:         baseCtx,
		baseCancel:      baseCancel,
		open:            map[string]*portfolio.Portfolio{},
	}
}

// Create registers a new empty portfolio. The empty record is persisted
// before the name becomes visible, so a store refusal leaves the catalog
// unchanged.
func (m *Manager) Create(ctx context.Context, name string) error {
	if name == "" {
		return ErrInvalidName
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	names, err := m.store.ListNames(ctx)
	if err != nil {
		return fmt.Errorf("list portfolios: %w", err)
	}
	for _, n := range names {
		if n == name {
			return ErrDuplicateName
		}
	}

	ok, err := m.store.Save(ctx, name, nil)
	if err != nil {
		metrics.IncError("catalog", "save_failed")
		return fmt.Errorf("create portfolio %q: %w", name, err)
	}
	if !ok {
		return ErrCapacityExceeded
	}

	names = append(names, name)
	sort.Strings(names)
	metrics.SetPortfolioCount(len(names))

	m.logger.Info("catalog.created", zap.String("portfolio", name))
	m.publish("created", name, names)
	return nil
}

// Delete removes a portfolio and its holdings; deleting an absent name
// is a no-op. The live engine, if one is open, is closed first so
// in-flight price resolutions are dropped.
func (m *Manager) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	names, err := m.store.ListNames(ctx)
	if err != nil {
		return fmt.Errorf("list portfolios: %w", err)
	}
	found := false
	remaining := names[:0]
	for _, n := range names {
		if n == name {
			found = true
			continue
		}
		remaining = append(remaining, n)
	}
	if !found {
		return nil
	}

	if eng, ok := m.open[name]; ok {
		eng.Close()
		delete(m.open, name)
	}

	if err := m.store.Delete(ctx, name); err != nil {
		metrics.IncError("catalog", "delete_failed")
		return fmt.Errorf("delete portfolio %q: %w", name, err)
	}

	metrics.SetPortfolioCount(len(remaining))

	m.logger.Info("catalog.deleted", zap.String("portfolio", name))
	m.publish("deleted", name, remaining)
	return nil
}

// List returns all portfolio names in sorted order.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.ListNames(ctx)
}

// Portfolio returns the live engine for name, opening it on first
// access. The engine's refresh loop starts when it opens.
func (m *Manager) Portfolio(ctx context.Context, name string) (*portfolio.Portfolio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrNotFound
	}
	if eng, ok := m.open[name]; ok {
		return eng, nil
	}

	names, err := m.store.ListNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("list portfolios: %w", err)
	}
	known := false
	for _, n := range names {
		if n == name {
			known = true
			break
		}
	}
	if !known {
		return nil, ErrNotFound
	}

	eng, err := portfolio.Open(ctx, name, m.quoteCurrency, m.store, m.source, m.bus, m.logger)
	if err != nil {
		return nil, err
	}
	eng.StartRefresher(m.baseCtx, m.refreshInterval)
	m.open[name] = eng
	return eng, nil
}

// Close shuts down every open engine. Further Portfolio calls fail.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.baseCancel()
	for name, eng := range m.open {
		eng.Close()
		delete(m.open, name)
	}
	m.logger.Info("catalog.closed")
}

func (m *Manager) publish(action, name string, names []string) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(eventbus.Event{
		Type: model.EventCatalogChanged,
		Payload: model.CatalogChangedEvent{
			Action:    action,
			Name:      name,
			Names:     names,
			Timestamp: time.Now().UTC(),
		},
	})
}
