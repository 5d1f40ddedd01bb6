package api

import (
	"errors"

	"github.com/shopspring/decimal"
)

// CreatePortfolioRequest is the payload to register a new portfolio.
type CreatePortfolioRequest struct {
	Name string `json:"name" example:"tech"`
}

func (r CreatePortfolioRequest) Validate() error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

// AddHoldingRequest is the payload to add one holding to a portfolio.
// Quantity accepts a JSON number or numeric string.
type AddHoldingRequest struct {
	Symbol   string          `json:"symbol" example:"AAPL"`
	Quantity decimal.Decimal `json:"quantity" example:"2.5"`
}

func (r AddHoldingRequest) Validate() error {
	if r.Symbol == "" {
		return errors.New("symbol is required")
	}
	if !r.Quantity.IsPositive() {
		return errors.New("quantity must be positive")
	}
	return nil
}

// RemoveHoldingsRequest is the payload to remove holdings by symbol.
type RemoveHoldingsRequest struct {
	Symbols []string `json:"symbols"`
}

func (r RemoveHoldingsRequest) Validate() error {
	if len(r.Symbols) == 0 {
		return errors.New("symbols is required")
	}
	return nil
}
