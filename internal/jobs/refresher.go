package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spms-io/spms/internal/metrics"
)

// Refresher runs a task periodically until stopped. One instance backs
// each portfolio's price refresh and the process-wide exchange-rate
// refresh.
type Refresher struct {
	logger   *zap.Logger
	name     string
	interval time.Duration
	task     func(ctx context.Context)
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewRefresher constructs a periodic runner. The task itself is
// responsible for swallowing its own errors; a failed cycle is recovered
// only by the next tick.
func NewRefresher(logger *zap.Logger, name string, interval time.Duration, task func(ctx context.Context)) *Refresher {
	return &Refresher{
		logger:   logger,
		name:     name,
		interval: interval,
		task:     task,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the refresh loop until Stop is called or ctx is canceled.
// The first cycle runs immediately.
func (r *Refresher) Start(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("refresher.started",
		zap.String("name", r.name),
		zap.Duration("interval", r.interval))

	for {
		r.runOnce(ctx)

		select {
		case <-ticker.C:
			continue
		case <-r.stopCh:
			r.logger.Info("refresher.stopped (manual stop)", zap.String("name", r.name))
			return
		case <-ctx.Done():
			r.logger.Info("refresher.stopped (context canceled)", zap.String("name", r.name))
			return
		}
	}
}

// Stop halts the refresh loop. Safe to call more than once; only the
// first call has effect.
func (r *Refresher) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
}

// Done returns a channel closed when the loop has exited.
func (r *Refresher) Done() <-chan struct{} {
	return r.done
}

func (r *Refresher) runOnce(ctx context.Context) {
	start := time.Now()
	r.task(ctx)
	metrics.IncRefreshCycle(r.name)
	r.logger.Debug("refresher.cycle",
		zap.String("name", r.name),
		zap.Duration("duration", time.Since(start)))
}
