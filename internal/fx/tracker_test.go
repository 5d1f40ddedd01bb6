package fx

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/spms-io/spms/internal/feed"
	"github.com/spms-io/spms/pkg/eventbus"
	"github.com/spms-io/spms/pkg/model"
)

type stubSource struct {
	rate decimal.Decimal
	err  error
}

func (s *stubSource) FetchPrice(context.Context, string) (decimal.Decimal, error) {
	return decimal.Zero, feed.ErrFeedUnavailable
}

func (s *stubSource) FetchExchangeRate(context.Context, string) (decimal.Decimal, error) {
	if s.err != nil {
		return decimal.Zero, s.err
	}
	return s.rate, nil
}

func TestTracker_DefaultsToIdentity(t *testing.T) {
	tr := NewTracker(zap.NewNop(), &stubSource{}, nil, "EUR_USD")
	assert.True(t, tr.Rate().Equal(decimal.NewFromInt(1)))
}

func TestTracker_RefreshUpdatesRate(t *testing.T) {
	src := &stubSource{rate: decimal.NewFromFloat(1.16)}
	bus := eventbus.New(4)
	ch, cancel := bus.Subscribe()
	defer cancel()

	tr := NewTracker(zap.NewNop(), src, bus, "EUR_USD")
	tr.Refresh(context.Background())

	assert.Equal(t, "1.16", tr.Rate().String())

	evt := <-ch
	assert.Equal(t, model.EventRateUpdated, evt.Type)
	payload := evt.Payload.(model.RateUpdatedEvent)
	assert.Equal(t, "EUR_USD", payload.Pair)
}

func TestTracker_FailedRefreshKeepsPriorRate(t *testing.T) {
	src := &stubSource{rate: decimal.NewFromFloat(1.16)}
	tr := NewTracker(zap.NewNop(), src, nil, "EUR_USD")

	tr.Refresh(context.Background())
	assert.Equal(t, "1.16", tr.Rate().String())

	src.err = feed.ErrFeedUnavailable
	tr.Refresh(context.Background())
	assert.Equal(t, "1.16", tr.Rate().String(), "failed refresh must keep the prior rate")
}
