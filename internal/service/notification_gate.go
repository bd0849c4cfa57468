package service

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"chatwire/internal/constants"
	"chatwire/internal/metrics"
	"chatwire/internal/models"
)

// ReadyChecker reports whether the conversation channel is usable.
type ReadyChecker interface {
	Ready() bool
}

// NotificationGate decides whether an inbound message may surface as a
// desktop notification. The gate starts disarmed, arms shortly after the
// local user sends, and disarms again whenever the owning channel drops,
// so reconnect history replay never produces a notification storm.
type NotificationGate struct {
	userID   int64
	clock    *models.SessionClock
	channel  ReadyChecker
	bus      *EventBus
	logger   *logrus.Logger
	armDelay time.Duration
	skew     time.Duration
	maxAge   time.Duration
	now      func() time.Time

	mu         sync.Mutex
	armed      bool
	armTimer   *time.Timer
	permission bool
	focused    bool
}

// NotificationGateOptions configures a NotificationGate. Zero durations
// fall back to the defaults.
type NotificationGateOptions struct {
	UserID   int64
	Clock    *models.SessionClock
	Channel  ReadyChecker
	Bus      *EventBus
	Logger   *logrus.Logger
	ArmDelay time.Duration
	Skew     time.Duration
	MaxAge   time.Duration
}

// NewNotificationGate creates a disarmed gate.
func NewNotificationGate(opts NotificationGateOptions) *NotificationGate {
	if opts.ArmDelay == 0 {
		opts.ArmDelay = time.Duration(constants.DefaultNotifyArmDelayMs) * time.Millisecond
	}
	if opts.Skew == 0 {
		opts.Skew = time.Duration(constants.DefaultNotifySkewSec) * time.Second
	}
	if opts.MaxAge == 0 {
		opts.MaxAge = time.Duration(constants.DefaultNotifyMaxAgeSec) * time.Second
	}

	return &NotificationGate{
		userID:   opts.UserID,
		clock:    opts.Clock,
		channel:  opts.Channel,
		bus:      opts.Bus,
		logger:   opts.Logger,
		armDelay: opts.ArmDelay,
		skew:     opts.Skew,
		maxAge:   opts.MaxAge,
		now:      time.Now,
	}
}

// NotifySend arms the gate after the arm delay. Called on every outbound
// send; a no-op while the gate is already armed or arming, so only the
// first send after a disarm starts the timer.
func (g *NotificationGate) NotifySend() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.armed || g.armTimer != nil {
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(g.armDelay, func() {
		g.mu.Lock()
		stale := g.armTimer != timer
		if !stale {
			g.armed = true
			g.armTimer = nil
		}
		g.mu.Unlock()
		if !stale {
			g.logger.Debug("Notification gate armed")
		}
	})
	g.armTimer = timer
}

// Disarm clears the gate. Called when the owning channel drops; the next
// send re-arms.
func (g *NotificationGate) Disarm() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.armTimer != nil {
		g.armTimer.Stop()
		g.armTimer = nil
	}
	if g.armed {
		g.armed = false
		g.logger.Debug("Notification gate disarmed")
	}
}

// SetPermission records whether the platform notification permission has
// been granted.
func (g *NotificationGate) SetPermission(granted bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.permission = granted
}

// SetFocused records whether the conversation view currently has focus.
func (g *NotificationGate) SetFocused(focused bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.focused = focused
}

// Armed reports whether the gate has armed.
func (g *NotificationGate) Armed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.armed
}

// Evaluate returns whether the message passes every gate condition, and
// the first failing condition when it does not.
func (g *NotificationGate) Evaluate(msg *models.InboundMessage) (bool, string) {
	g.mu.Lock()
	armed := g.armed
	permission := g.permission
	focused := g.focused
	g.mu.Unlock()

	switch {
	case !armed:
		return false, "gate not armed"
	case !permission:
		return false, "permission not granted"
	case msg.UserID == g.userID:
		return false, "own message"
	case focused:
		return false, "view focused"
	case g.channel != nil && !g.channel.Ready():
		return false, "channel not ready"
	}

	// Messages replayed from before the session started are history, not
	// live traffic. The skew allows for clock drift between client and
	// server.
	if g.clock != nil {
		started := g.clock.StartedAt()
		if !started.IsZero() && msg.Timestamp.Before(started.Add(-g.skew)) {
			return false, "predates session"
		}
	}

	if g.now().Sub(msg.Timestamp) > g.maxAge {
		return false, "message too old"
	}

	return true, ""
}

// Offer evaluates the message and publishes a notification event when it
// passes.
func (g *NotificationGate) Offer(msg *models.InboundMessage) bool {
	allowed, reason := g.Evaluate(msg)
	if !allowed {
		metrics.IncrementCounter("notifications_suppressed",
			map[string]string{"reason": reason}, "messages the gate declined to surface")
		g.logger.WithFields(logrus.Fields{
			"reason": reason,
			"sender": SanitizeUserID(msg.UserID),
		}).Debug("Notification suppressed")
		return false
	}

	metrics.IncrementCounter("notifications_shown", nil, "messages surfaced as notifications")
	g.bus.Publish(EventNotification, NotificationEvent{
		Title: msg.Username,
		Body:  msg.Text(),
		From:  msg.Username,
	})
	return true
}
