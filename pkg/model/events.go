package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types emitted by the engines. These are used both as in-process
// bus topics and as NATS subject suffixes.
const (
	EventCatalogChanged   = "catalog.changed"
	EventPortfolioChanged = "portfolio.changed"
	EventPriceUpdated     = "price.updated"
	EventRateUpdated      = "rate.updated"
)

// Envelope is the canonical event envelope. All messages published to
// NATS follow this format.
type Envelope struct {
	ID        uuid.UUID       `json:"id"`
	Service   string          `json:"service"`
	EventType string          `json:"event_type"`
	Version   string          `json:"version"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// CatalogChangedEvent is emitted when a portfolio is created or deleted.
type CatalogChangedEvent struct {
	Action    string    `json:"action"` // created | deleted
	Name      string    `json:"name"`
	Names     []string  `json:"names"`
	Timestamp time.Time `json:"timestamp"`
}

// PortfolioChangedEvent is emitted when a portfolio's holdings list
// changes.
type PortfolioChangedEvent struct {
	Portfolio string    `json:"portfolio"`
	Action    string    `json:"action"` // holding_added | holdings_removed
	Symbols   []string  `json:"symbols"`
	Timestamp time.Time `json:"timestamp"`
}

// PriceUpdatedEvent is emitted when a holding's unit value is refreshed
// from the feed.
type PriceUpdatedEvent struct {
	Portfolio string          `json:"portfolio"`
	Symbol    string          `json:"symbol"`
	UnitValue decimal.Decimal `json:"unit_value"`
	Timestamp time.Time       `json:"timestamp"`
}

// RateUpdatedEvent is emitted when the exchange rate for the configured
// pair is refreshed.
type RateUpdatedEvent struct {
	Pair      string          `json:"pair"`
	Rate      decimal.Decimal `json:"rate"`
	Timestamp time.Time       `json:"timestamp"`
}
