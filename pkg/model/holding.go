package model

import "github.com/shopspring/decimal"

// Holding is one stock position inside a portfolio. This is also the
// persisted record shape: each portfolio is stored as a JSON array of
// holdings under its name.
type Holding struct {
	Symbol    string          `json:"symbol"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitValue decimal.Decimal `json:"unitValue"`
}

// Priced reports whether the holding's unit price has resolved at least
// once. A fresh holding carries a zero unit value until the first
// successful feed fetch.
func (h Holding) Priced() bool {
	return !h.UnitValue.IsZero()
}

// MarketValue returns unit value times quantity, in the feed's native
// currency.
func (h Holding) MarketValue() decimal.Decimal {
	return h.UnitValue.Mul(h.Quantity)
}
