package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/spms-io/spms/internal/metrics"
	"github.com/spms-io/spms/pkg/eventbus"
	"github.com/spms-io/spms/pkg/model"
)

// Publisher wraps a NATS JetStream connection and publishes canonical
// event envelopes.
type Publisher struct {
	logger  *zap.Logger
	nc      *nats.Conn
	js      nats.JetStreamContext
	prefix  string
	service string
}

// New creates a Publisher over an established NATS connection. prefix is
// the subject prefix, e.g. "evt.spms".
func New(logger *zap.Logger, nc *nats.Conn, prefix, service string) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	return &Publisher{
		logger:  logger,
		nc:      nc,
		js:      js,
		prefix:  prefix,
		service: service,
	}, nil
}

// Subject returns the versioned subject for an event type, e.g.
// "evt.spms.price.updated.v1".
func (p *Publisher) Subject(eventType string) string {
	return p.prefix + "." + eventType + ".v1"
}

// PublishEvent wraps payload in a canonical envelope and publishes it on
// the subject derived from eventType.
func (p *Publisher) PublishEvent(ctx context.Context, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		metrics.IncError("publisher", "marshal_failed")
		return err
	}

	env := &model.Envelope{
		ID:        uuid.New(),
		Service:   p.service,
		EventType: eventType,
		Version:   "1.0.0",
		Timestamp: time.Now().UTC(),
		Payload:   data,
	}
	return p.PublishEnvelope(ctx, p.Subject(eventType), env)
}

// PublishEnvelope serializes and publishes an envelope to NATS.
func (p *Publisher) PublishEnvelope(_ context.Context, subject string, env *model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		p.logger.Error("publisher.marshal_failed",
			zap.String("subject", subject),
			zap.String("event_type", env.EventType),
			zap.Error(err))
		metrics.IncError("publisher", "marshal_failed")
		return err
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"event_type":   []string{env.EventType},
			"service":      []string{p.service},
			"content_type": []string{"application/json"},
		},
	}

	start := time.Now()
	_, err = p.js.PublishMsg(msg)
	metrics.ObserveDuration(metrics.NATSMessageLatency, start, subject)

	if err != nil {
		p.logger.Error("publisher.publish_failed",
			zap.String("subject", subject),
			zap.String("event_type", env.EventType),
			zap.Error(err))
		metrics.IncNATSMessage(subject, "error")
		return err
	}

	p.logger.Debug("publisher.publish_success",
		zap.String("subject", subject),
		zap.String("event_type", env.EventType))
	metrics.IncNATSMessage(subject, "ok")
	return nil
}

// Connected reports whether the underlying NATS connection is up.
func (p *Publisher) Connected() bool {
	return p.nc != nil && p.nc.IsConnected()
}

func (p *Publisher) Close() {
	if p.nc != nil && p.nc.IsConnected() {
		p.nc.Close()
	}
}

// Relay drains the in-process event bus and forwards each event to NATS.
// The engines stay decoupled from the broker: when NATS is down the
// relay logs and drops, it never blocks a mutation.
type Relay struct {
	logger *zap.Logger
	bus    *eventbus.Bus
	pub    *Publisher
	cancel func()
	done   chan struct{}
}

// NewRelay wires the bus to the publisher. Call Start to begin draining.
func NewRelay(logger *zap.Logger, bus *eventbus.Bus, pub *Publisher) *Relay {
	return &Relay{
		logger: logger,
		bus:    bus,
		pub:    pub,
		done:   make(chan struct{}),
	}
}

// Start consumes bus events until the context is cancelled or Stop is
// called.
func (r *Relay) Start(ctx context.Context) {
	events, cancel := r.bus.Subscribe()
	r.cancel = cancel

	go func() {
		defer close(r.done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				if err := r.pub.PublishEvent(ctx, ev.Type, ev.Payload); err != nil {
					r.logger.Warn("relay.forward_failed",
						zap.String("event_type", ev.Type),
						zap.Error(err))
				}
			}
		}
	}()
}

// Stop unsubscribes from the bus and waits for the drain loop to exit.
func (r *Relay) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}
