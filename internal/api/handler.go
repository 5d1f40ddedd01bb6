package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spms-io/spms/internal/catalog"
	"github.com/spms-io/spms/internal/fx"
	"github.com/spms-io/spms/internal/portfolio"
)

// Handler serves the portfolio HTTP API over the catalog and the
// exchange-rate tracker.
type Handler struct {
	logger        *zap.Logger
	catalog       *catalog.Manager
	fx            *fx.Tracker
	baseCurrency  string
	quoteCurrency string
}

// NewHandler creates a Handler.
func NewHandler(logger *zap.Logger, cat *catalog.Manager, tracker *fx.Tracker, baseCurrency, quoteCurrency string) *Handler {
	return &Handler{
		logger:        logger,
		catalog:       cat,
		fx:            tracker,
		baseCurrency:  baseCurrency,
		quoteCurrency: quoteCurrency,
	}
}

// CreatePortfolio handles POST /api/v1/portfolios.
func (h *Handler) CreatePortfolio(c *fiber.Ctx) error {
	var req CreatePortfolioRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error(), Code: "invalid_input"})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error(), Code: "invalid_name"})
	}

	if err := h.catalog.Create(c.Context(), req.Name); err != nil {
		return h.fail(c, "api.create_portfolio", req.Name, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"name": req.Name})
}

// DeletePortfolio handles DELETE /api/v1/portfolios/:name.
func (h *Handler) DeletePortfolio(c *fiber.Ctx) error {
	name := c.Params("name")
	if err := h.catalog.Delete(c.Context(), name); err != nil {
		return h.fail(c, "api.delete_portfolio", name, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListPortfolios handles GET /api/v1/portfolios.
func (h *Handler) ListPortfolios(c *fiber.Ctx) error {
	names, err := h.catalog.List(c.Context())
	if err != nil {
		return h.fail(c, "api.list_portfolios", "", err)
	}
	if names == nil {
		names = []string{}
	}
	return c.JSON(ListView{Portfolios: names})
}

// GetPortfolio handles GET /api/v1/portfolios/:name. The response
// carries the total in both currencies so the client can toggle the
// display without refetching.
func (h *Handler) GetPortfolio(c *fiber.Ctx) error {
	name := c.Params("name")
	eng, err := h.catalog.Portfolio(c.Context(), name)
	if err != nil {
		return h.fail(c, "api.get_portfolio", name, err)
	}

	rate := h.fx.Rate()
	totals := map[string]decimal.Decimal{
		h.baseCurrency:  eng.TotalValue(h.baseCurrency, rate),
		h.quoteCurrency: eng.TotalValue(h.quoteCurrency, rate),
	}
	return c.JSON(toPortfolioView(name, eng.Snapshot(), totals, h.fx.Pair(), rate))
}

// AddHolding handles POST /api/v1/portfolios/:name/holdings.
func (h *Handler) AddHolding(c *fiber.Ctx) error {
	name := c.Params("name")

	var req AddHoldingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error(), Code: "invalid_input"})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error(), Code: "invalid_input"})
	}

	eng, err := h.catalog.Portfolio(c.Context(), name)
	if err != nil {
		return h.fail(c, "api.add_holding", name, err)
	}
	if err := eng.AddHolding(c.Context(), req.Symbol, req.Quantity); err != nil {
		return h.fail(c, "api.add_holding", name, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"portfolio": name,
		"symbol":    req.Symbol,
	})
}

// RemoveHoldings handles DELETE /api/v1/portfolios/:name/holdings.
func (h *Handler) RemoveHoldings(c *fiber.Ctx) error {
	name := c.Params("name")

	var req RemoveHoldingsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error(), Code: "invalid_input"})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error(), Code: "invalid_input"})
	}

	eng, err := h.catalog.Portfolio(c.Context(), name)
	if err != nil {
		return h.fail(c, "api.remove_holdings", name, err)
	}
	if err := eng.RemoveHoldings(c.Context(), req.Symbols...); err != nil {
		return h.fail(c, "api.remove_holdings", name, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// fail maps an engine error onto the HTTP taxonomy and writes the
// uniform error body.
func (h *Handler) fail(c *fiber.Ctx, op, name string, err error) error {
	status, code := statusFor(err)
	if status == fiber.StatusInternalServerError {
		h.logger.Error(op+".failed",
			zap.String("portfolio", name),
			zap.Error(err))
	}
	return c.Status(status).JSON(ErrorResponse{Error: err.Error(), Code: code})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, catalog.ErrInvalidName):
		return fiber.StatusBadRequest, "invalid_name"
	case errors.Is(err, portfolio.ErrInvalidInput):
		return fiber.StatusBadRequest, "invalid_input"
	case errors.Is(err, catalog.ErrDuplicateName):
		return fiber.StatusConflict, "duplicate_name"
	case errors.Is(err, portfolio.ErrDuplicateSymbol):
		return fiber.StatusConflict, "duplicate_symbol"
	case errors.Is(err, catalog.ErrCapacityExceeded):
		return fiber.StatusConflict, "capacity_exceeded"
	case errors.Is(err, portfolio.ErrStorageRejected):
		return fiber.StatusConflict, "storage_rejected"
	case errors.Is(err, catalog.ErrNotFound):
		return fiber.StatusNotFound, "not_found"
	default:
		return fiber.StatusInternalServerError, "internal"
	}
}
