package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spms-io/spms/internal/catalog"
	"github.com/spms-io/spms/internal/fx"
	"github.com/spms-io/spms/internal/store"
)

type stubFeed struct {
	price decimal.Decimal
	rate  decimal.Decimal
}

func (s stubFeed) FetchPrice(context.Context, string) (decimal.Decimal, error) {
	return s.price, nil
}

func (s stubFeed) FetchExchangeRate(context.Context, string) (decimal.Decimal, error) {
	return s.rate, nil
}

func newTestApp(t *testing.T) (*fiber.App, *catalog.Manager, *fx.Tracker) {
	t.Helper()
	mr := miniredis.RunT(t)
	st, err := store.NewHybrid(mr.Addr(), 0, "", "", store.PGPoolConfig{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	src := stubFeed{price: decimal.RequireFromString("10"), rate: decimal.RequireFromString("2")}
	cat := catalog.NewManager(zap.NewNop(), st, src, nil, "USD", time.Hour)
	t.Cleanup(cat.Close)
	tracker := fx.NewTracker(zap.NewNop(), src, nil, "EUR_USD")

	app := fiber.New()
	RegisterRoutes(app, nil, st, NewHandler(zap.NewNop(), cat, tracker, "EUR", "USD"))
	return app, cat, tracker
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (int, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func TestCreatePortfolio(t *testing.T) {
	app, _, _ := newTestApp(t)

	code, _ := doJSON(t, app, "POST", "/api/v1/portfolios", CreatePortfolioRequest{Name: "tech"})
	assert.Equal(t, fiber.StatusCreated, code)

	code, body := doJSON(t, app, "POST", "/api/v1/portfolios", CreatePortfolioRequest{Name: "tech"})
	assert.Equal(t, fiber.StatusConflict, code)
	var er ErrorResponse
	require.NoError(t, json.Unmarshal(body, &er))
	assert.Equal(t, "duplicate_name", er.Code)

	code, body = doJSON(t, app, "POST", "/api/v1/portfolios", CreatePortfolioRequest{Name: ""})
	assert.Equal(t, fiber.StatusBadRequest, code)
	require.NoError(t, json.Unmarshal(body, &er))
	assert.Equal(t, "invalid_name", er.Code)
}

func TestCreatePortfolio_CapacityMapsToConflict(t *testing.T) {
	app, cat, _ := newTestApp(t)

	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
		require.NoError(t, cat.Create(context.Background(), name))
	}

	code, body := doJSON(t, app, "POST", "/api/v1/portfolios", CreatePortfolioRequest{Name: "overflow"})
	assert.Equal(t, fiber.StatusConflict, code)
	var er ErrorResponse
	require.NoError(t, json.Unmarshal(body, &er))
	assert.Equal(t, "capacity_exceeded", er.Code)
}

func TestListPortfolios(t *testing.T) {
	app, cat, _ := newTestApp(t)

	code, body := doJSON(t, app, "GET", "/api/v1/portfolios", nil)
	assert.Equal(t, fiber.StatusOK, code)
	var lst ListView
	require.NoError(t, json.Unmarshal(body, &lst))
	assert.Empty(t, lst.Portfolios)

	require.NoError(t, cat.Create(context.Background(), "tech"))
	require.NoError(t, cat.Create(context.Background(), "energy"))

	_, body = doJSON(t, app, "GET", "/api/v1/portfolios", nil)
	require.NoError(t, json.Unmarshal(body, &lst))
	assert.Equal(t, []string{"energy", "tech"}, lst.Portfolios)
}

func TestDeletePortfolio(t *testing.T) {
	app, cat, _ := newTestApp(t)
	require.NoError(t, cat.Create(context.Background(), "tech"))

	code, _ := doJSON(t, app, "DELETE", "/api/v1/portfolios/tech", nil)
	assert.Equal(t, fiber.StatusNoContent, code)

	// idempotent: deleting again is still a 204
	code, _ = doJSON(t, app, "DELETE", "/api/v1/portfolios/tech", nil)
	assert.Equal(t, fiber.StatusNoContent, code)
}

func TestAddHolding(t *testing.T) {
	app, cat, _ := newTestApp(t)
	require.NoError(t, cat.Create(context.Background(), "tech"))

	code, _ := doJSON(t, app, "POST", "/api/v1/portfolios/tech/holdings",
		AddHoldingRequest{Symbol: "AAPL", Quantity: decimal.NewFromInt(2)})
	assert.Equal(t, fiber.StatusCreated, code)

	code, body := doJSON(t, app, "POST", "/api/v1/portfolios/tech/holdings",
		AddHoldingRequest{Symbol: "AAPL", Quantity: decimal.NewFromInt(1)})
	assert.Equal(t, fiber.StatusConflict, code)
	var er ErrorResponse
	require.NoError(t, json.Unmarshal(body, &er))
	assert.Equal(t, "duplicate_symbol", er.Code)

	code, _ = doJSON(t, app, "POST", "/api/v1/portfolios/tech/holdings",
		AddHoldingRequest{Symbol: "", Quantity: decimal.NewFromInt(1)})
	assert.Equal(t, fiber.StatusBadRequest, code)

	code, body = doJSON(t, app, "POST", "/api/v1/portfolios/ghost/holdings",
		AddHoldingRequest{Symbol: "MSFT", Quantity: decimal.NewFromInt(1)})
	assert.Equal(t, fiber.StatusNotFound, code)
	require.NoError(t, json.Unmarshal(body, &er))
	assert.Equal(t, "not_found", er.Code)
}

func TestRemoveHoldings(t *testing.T) {
	app, cat, _ := newTestApp(t)
	require.NoError(t, cat.Create(context.Background(), "tech"))

	eng, err := cat.Portfolio(context.Background(), "tech")
	require.NoError(t, err)
	require.NoError(t, eng.AddHolding(context.Background(), "AAPL", decimal.NewFromInt(2)))

	code, _ := doJSON(t, app, "DELETE", "/api/v1/portfolios/tech/holdings",
		RemoveHoldingsRequest{Symbols: []string{"AAPL", "GHOST"}})
	assert.Equal(t, fiber.StatusNoContent, code)
	assert.Empty(t, eng.Snapshot())

	code, _ = doJSON(t, app, "DELETE", "/api/v1/portfolios/tech/holdings",
		RemoveHoldingsRequest{Symbols: nil})
	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestGetPortfolio_DualCurrencyTotals(t *testing.T) {
	app, cat, tracker := newTestApp(t)
	require.NoError(t, cat.Create(context.Background(), "tech"))

	eng, err := cat.Portfolio(context.Background(), "tech")
	require.NoError(t, err)
	require.NoError(t, eng.AddHolding(context.Background(), "AAPL", decimal.NewFromInt(2)))
	require.NoError(t, eng.AddHolding(context.Background(), "MSFT", decimal.NewFromInt(1)))

	// let the async price resolutions land (stub price is 10)
	require.Eventually(t, func() bool {
		for _, h := range eng.Snapshot() {
			if !h.Priced() {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	// stub rate is 2
	tracker.Refresh(context.Background())

	code, body := doJSON(t, app, "GET", "/api/v1/portfolios/tech", nil)
	require.Equal(t, fiber.StatusOK, code)

	var view PortfolioView
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Equal(t, "tech", view.Name)
	require.Len(t, view.Holdings, 2)
	assert.Equal(t, "10.000", view.Holdings[0].UnitValue)
	assert.Equal(t, "20.00", view.Holdings[0].MarketValue)
	assert.Equal(t, "30.00", view.Totals["EUR"])
	assert.Equal(t, "60.00", view.Totals["USD"])
	assert.Equal(t, "EUR_USD", view.Pair)
}

func TestGetPortfolio_NotFound(t *testing.T) {
	app, _, _ := newTestApp(t)
	code, _ := doJSON(t, app, "GET", "/api/v1/portfolios/ghost", nil)
	assert.Equal(t, fiber.StatusNotFound, code)
}

func TestHealth(t *testing.T) {
	app, _, _ := newTestApp(t)

	code, body := doJSON(t, app, "GET", "/health", nil)
	assert.Equal(t, fiber.StatusOK, code)

	var health struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "disabled", health.Checks["nats"])
	assert.Equal(t, "ok", health.Checks["store"])
}
