package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewEventBus(4, testLogger())

	ch1, cancel1 := bus.Subscribe()
	ch2, cancel2 := bus.Subscribe()
	defer cancel1()
	defer cancel2()
	assert.Equal(t, 2, bus.SubscriberCount())

	bus.Publish(EventTyping, TypingUpdate{UserID: 2, IsTyping: true})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case event := <-ch:
			assert.Equal(t, EventTyping, event.Kind)
			assert.Equal(t, int64(2), event.Payload.(TypingUpdate).UserID)
			assert.False(t, event.At.IsZero())
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestEventBusCancelClosesChannel(t *testing.T) {
	bus := NewEventBus(4, testLogger())

	ch, cancel := bus.Subscribe()
	cancel()
	assert.Equal(t, 0, bus.SubscriberCount())

	_, open := <-ch
	assert.False(t, open)

	// publishing after cancel must not panic
	bus.Publish(EventPresence, PresenceUpdate{UserID: 2})
	cancel()
}

func TestEventBusDropsWhenSubscriberStalls(t *testing.T) {
	bus := NewEventBus(1, testLogger())

	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(EventTyping, TypingUpdate{UserID: 1})
	bus.Publish(EventTyping, TypingUpdate{UserID: 2})

	event := <-ch
	require.Equal(t, int64(1), event.Payload.(TypingUpdate).UserID)

	select {
	case extra := <-ch:
		t.Fatalf("expected second event dropped, got %+v", extra)
	default:
	}
}
