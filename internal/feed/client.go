package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spms-io/spms/internal/httpclient"
	"github.com/spms-io/spms/internal/metrics"
	"github.com/spms-io/spms/internal/rate"
)

// ErrFeedUnavailable marks any failure to obtain a usable value from the
// feed: transport errors, throttling notes, and malformed payloads alike.
// Callers treat it uniformly as "keep the prior value".
var ErrFeedUnavailable = errors.New("feed unavailable")

// Source supplies per-symbol unit prices and currency exchange rates.
type Source interface {
	FetchPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	FetchExchangeRate(ctx context.Context, pair string) (decimal.Decimal, error)
}

// KeyResolver supplies the quote feed API key.
type KeyResolver interface {
	Resolve(ctx context.Context) (string, error)
}

// Client fetches intraday stock prices and currency conversion rates.
// Prices come from an intraday time-series endpoint (latest 1-minute bar
// open); rates from a compact conversion endpoint.
type Client struct {
	logger   *zap.Logger
	exec     *httpclient.Executor
	quoteURL string
	fxURL    string
	keys     KeyResolver
}

// staticKey satisfies KeyResolver with a fixed API key.
type staticKey string

func (k staticKey) Resolve(context.Context) (string, error) { return string(k), nil }

// StaticKey returns a KeyResolver that always yields key. Useful in tests
// and when no secrets backend is configured.
func StaticKey(key string) KeyResolver { return staticKey(key) }

// NewClient constructs a feed client. Feed responses are small and the
// providers throttle hard, so requests are rate limited and never retried;
// the next scheduled refresh cycle is the retry policy.
func NewClient(logger *zap.Logger, rateMgr *rate.Manager, quoteURL, fxURL string, keys KeyResolver, timeout time.Duration) *Client {
	httpClient := &http.Client{Timeout: timeout}
	exec := httpclient.New(logger, rateMgr, httpClient, 0, "feed", nil)
	return &Client{
		logger:   logger,
		exec:     exec,
		quoteURL: quoteURL,
		fxURL:    fxURL,
		keys:     keys,
	}
}

// FetchPrice returns the latest intraday unit price for symbol, in the
// feed's native currency.
func (c *Client) FetchPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	start := time.Now()
	price, err := c.fetchPrice(ctx, symbol)
	metrics.ObserveDuration(metrics.FeedRequestDuration, start, "quotes")
	if err != nil {
		metrics.IncFeedRequest("quotes", "error")
		c.logger.Warn("feed.price_fetch_failed",
			zap.String("symbol", symbol),
			zap.Error(err))
		return decimal.Zero, err
	}
	metrics.IncFeedRequest("quotes", "ok")
	return price, nil
}

func (c *Client) fetchPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	apiKey, err := c.keys.Resolve(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}

	q := url.Values{}
	q.Set("function", "TIME_SERIES_INTRADAY")
	q.Set("symbol", symbol)
	q.Set("interval", "1min")
	q.Set("apikey", apiKey)
	reqURL := c.quoteURL + "/query?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}

	var resp intradayResponse
	if err := c.exec.DoJSON(ctx, req, "quotes", &resp); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}

	// The feed reports throttling and bad symbols as 200s with a message
	// body instead of a series.
	if resp.Error != "" {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrFeedUnavailable, resp.Error)
	}
	if resp.Note != "" {
		return decimal.Zero, fmt.Errorf("%w: throttled: %s", ErrFeedUnavailable, resp.Note)
	}
	if len(resp.Series) == 0 {
		return decimal.Zero, fmt.Errorf("%w: no intraday series for %q", ErrFeedUnavailable, symbol)
	}

	// Bar timestamps are "YYYY-MM-DD HH:MM:SS", so the lexicographic
	// maximum is the most recent bar.
	var latest string
	for ts := range resp.Series {
		if ts > latest {
			latest = ts
		}
	}

	open, ok := resp.Series[latest]["1. open"]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: bar %s has no open price", ErrFeedUnavailable, latest)
	}

	price, err := decimal.NewFromString(open)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: bad price %q: %v", ErrFeedUnavailable, open, err)
	}
	if price.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative price %s for %q", ErrFeedUnavailable, price, symbol)
	}

	c.logger.Debug("feed.price_fetched",
		zap.String("symbol", symbol),
		zap.String("price", price.String()),
		zap.String("bar", latest))

	return price, nil
}

// FetchExchangeRate returns the scalar multiplier for the given pair,
// e.g. "EUR_USD".
func (c *Client) FetchExchangeRate(ctx context.Context, pair string) (decimal.Decimal, error) {
	start := time.Now()
	rateVal, err := c.fetchExchangeRate(ctx, pair)
	metrics.ObserveDuration(metrics.FeedRequestDuration, start, "fx")
	if err != nil {
		metrics.IncFeedRequest("fx", "error")
		c.logger.Warn("feed.rate_fetch_failed",
			zap.String("pair", pair),
			zap.Error(err))
		return decimal.Zero, err
	}
	metrics.IncFeedRequest("fx", "ok")
	return rateVal, nil
}

func (c *Client) fetchExchangeRate(ctx context.Context, pair string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("q", pair)
	q.Set("compact", "y")
	reqURL := c.fxURL + "/api/v6/convert?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}

	var resp convertResponse
	if err := c.exec.DoJSON(ctx, req, "fx", &resp); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}

	entry, ok := resp[pair]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: pair %q not in response", ErrFeedUnavailable, pair)
	}
	if entry.Val <= 0 {
		return decimal.Zero, fmt.Errorf("%w: non-positive rate %f for %q", ErrFeedUnavailable, entry.Val, pair)
	}

	rateVal := decimal.NewFromFloat(entry.Val)
	c.logger.Debug("feed.rate_fetched",
		zap.String("pair", pair),
		zap.String("rate", rateVal.String()))

	return rateVal, nil
}
