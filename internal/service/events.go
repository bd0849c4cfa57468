package service

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"chatwire/internal/metrics"
	"chatwire/internal/models"
)

// EventKind classifies events published toward the presentation layer.
type EventKind string

const (
	EventConnectionState EventKind = "connection_state"
	EventMessageNew      EventKind = "message_new"
	EventMessageUpdated  EventKind = "message_updated"
	EventMessagePending  EventKind = "message_pending"
	EventMessageFailed   EventKind = "message_failed"
	EventTyping          EventKind = "typing"
	EventPresence        EventKind = "presence"
	EventNotification    EventKind = "notification"
	EventCallState       EventKind = "call_state"
	EventCallTick        EventKind = "call_tick"
)

// Event is a single occurrence delivered to subscribers.
type Event struct {
	Kind    EventKind
	Payload interface{}
	At      time.Time
}

// NotificationEvent is published when the gate approves a notification.
type NotificationEvent struct {
	Title string
	Body  string
	From  string
}

// TypingUpdate reports a remote participant starting or stopping typing.
type TypingUpdate struct {
	UserID   int64
	Username string
	IsTyping bool
}

// PresenceUpdate reports a remote participant going online or offline.
type PresenceUpdate struct {
	UserID   int64
	Username string
	IsOnline bool
}

// CallStateUpdate reports a call session phase change.
type CallStateUpdate struct {
	Session models.CallSession
}

// CallTick reports elapsed time on an active call.
type CallTick struct {
	CallID  string
	Elapsed time.Duration
}

// EventBus fans events out to subscribers. Delivery is best effort: a
// subscriber that stops draining its channel loses events rather than
// stalling the pipeline.
type EventBus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	buffer int
	logger *logrus.Logger
}

// NewEventBus creates a bus with the given per-subscriber buffer.
func NewEventBus(buffer int, logger *logrus.Logger) *EventBus {
	if buffer <= 0 {
		buffer = 64
	}
	return &EventBus{
		subs:   make(map[int]chan Event),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a new subscriber. The returned cancel func removes
// the subscription and closes the channel.
func (b *EventBus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.buffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers an event to all subscribers without blocking.
func (b *EventBus) Publish(kind EventKind, payload interface{}) {
	event := Event{Kind: kind, Payload: payload, At: time.Now()}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			metrics.IncrementCounter("events_dropped",
				map[string]string{"kind": string(kind)}, "events dropped on full subscriber buffers")
			b.logger.WithField("kind", kind).Warn("Dropping event for slow subscriber")
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
