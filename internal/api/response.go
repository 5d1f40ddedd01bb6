package api

import (
	"github.com/shopspring/decimal"

	"github.com/spms-io/spms/pkg/model"
)

// HoldingView is the display form of one holding. Unit values are
// rendered to three decimal places, market values to two, matching the
// portfolio display convention.
type HoldingView struct {
	Symbol      string `json:"symbol"`
	Quantity    string `json:"quantity"`
	UnitValue   string `json:"unitValue"`
	MarketValue string `json:"marketValue"`
	Priced      bool   `json:"priced"`
}

// PortfolioView is the display form of a whole portfolio: the holdings
// snapshot plus the total in both the base and the quote currency, so
// the client can toggle without another round trip.
type PortfolioView struct {
	Name     string            `json:"name"`
	Holdings []HoldingView     `json:"holdings"`
	Totals   map[string]string `json:"totals"`
	Rate     string            `json:"rate"`
	Pair     string            `json:"pair"`
}

// ListView is the catalog listing.
type ListView struct {
	Portfolios []string `json:"portfolios"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func toHoldingView(h model.Holding) HoldingView {
	return HoldingView{
		Symbol:      h.Symbol,
		Quantity:    h.Quantity.String(),
		UnitValue:   h.UnitValue.StringFixed(3),
		MarketValue: h.MarketValue().StringFixed(2),
		Priced:      h.Priced(),
	}
}

func toPortfolioView(name string, holdings []model.Holding, totals map[string]decimal.Decimal, pair string, rate decimal.Decimal) PortfolioView {
	views := make([]HoldingView, len(holdings))
	for i, h := range holdings {
		views[i] = toHoldingView(h)
	}
	rendered := make(map[string]string, len(totals))
	for ccy, v := range totals {
		rendered[ccy] = v.StringFixed(2)
	}
	return PortfolioView{
		Name:     name,
		Holdings: views,
		Totals:   rendered,
		Rate:     rate.String(),
		Pair:     pair,
	}
}
