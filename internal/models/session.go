package models

import (
	"sync"
	"time"
)

// SessionClock records when the current channel session began. Every
// successful connect resets it, so consumers can distinguish live traffic
// from history replayed after a reconnect.
type SessionClock struct {
	mu      sync.RWMutex
	started time.Time
	now     func() time.Time
}

// NewSessionClock returns a clock whose session has not started yet.
func NewSessionClock() *SessionClock {
	return &SessionClock{now: time.Now}
}

// Reset marks the start of a new session.
func (c *SessionClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = c.now()
}

// StartedAt returns the start of the current session, or the zero time if
// no session has started.
func (c *SessionClock) StartedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.started
}
