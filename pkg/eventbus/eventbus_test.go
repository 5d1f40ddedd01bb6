package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeAndPublish(t *testing.T) {
	bus := New(8)

	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(Event{Type: "price.updated", Payload: "AAPL"})

	select {
	case evt := <-ch:
		assert.Equal(t, "price.updated", evt.Type)
		assert.Equal(t, "AAPL", evt.Payload)
	case <-time.After(time.Second):
		t.Fatal("expected event, got none")
	}
}

func TestMultipleSubscribers(t *testing.T) {
	bus := New(8)

	ch1, cancel1 := bus.Subscribe()
	defer cancel1()
	ch2, cancel2 := bus.Subscribe()
	defer cancel2()

	require.Equal(t, 2, bus.SubscriberCount())

	bus.Publish(Event{Type: "catalog.changed"})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case evt := <-ch:
			assert.Equal(t, "catalog.changed", evt.Type)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestCancelClosesChannel(t *testing.T) {
	bus := New(8)

	ch, cancel := bus.Subscribe()
	cancel()
	// cancelling twice must be safe
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, bus.SubscriberCount())

	// publishing after cancel must not panic
	bus.Publish(Event{Type: "rate.updated"})
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	bus := New(1)

	ch, cancel := bus.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		// second publish overflows the buffer and must be dropped, not block
		bus.Publish(Event{Type: "price.updated"})
		bus.Publish(Event{Type: "price.updated"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}

	// exactly one event buffered
	<-ch
	select {
	case <-ch:
		t.Fatal("expected overflow event to be dropped")
	default:
	}
}
