package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"chatwire/internal/constants"
	"chatwire/internal/models"
)

// TypingCoordinator tracks who is typing and who is online, and debounces
// the local user's own typing signal. The start frame is edge triggered:
// it goes out once per burst, and the stop frame follows after the idle
// interval with no activity.
type TypingCoordinator struct {
	userID  int64
	channel Sender
	bus     *EventBus
	logger  *logrus.Logger
	idle    time.Duration

	mu          sync.Mutex
	localTyping bool
	idleTimer   *time.Timer
	typingUsers map[int64]string
	onlineUsers map[int64]bool
}

// NewTypingCoordinator creates a coordinator for the local user. A zero
// idle duration falls back to the default.
func NewTypingCoordinator(userID int64, idle time.Duration, channel Sender, bus *EventBus, logger *logrus.Logger) *TypingCoordinator {
	if idle == 0 {
		idle = time.Duration(constants.DefaultTypingIdleMs) * time.Millisecond
	}
	return &TypingCoordinator{
		userID:      userID,
		channel:     channel,
		bus:         bus,
		logger:      logger,
		idle:        idle,
		typingUsers: make(map[int64]string),
		onlineUsers: make(map[int64]bool),
	}
}

// NotifyActivity records a local keystroke. The first call in a burst
// sends the typing-start frame; every call pushes the idle timer back.
func (t *TypingCoordinator) NotifyActivity(ctx context.Context) {
	t.mu.Lock()
	wasTyping := t.localTyping
	t.localTyping = true
	if t.idleTimer != nil {
		t.idleTimer.Stop()
	}
	t.idleTimer = time.AfterFunc(t.idle, func() {
		t.StopTyping(context.Background())
	})
	t.mu.Unlock()

	if !wasTyping {
		t.sendTyping(ctx, true)
	}
}

// StopTyping sends the typing-stop frame if a burst is in progress. Called
// on idle timeout and when a message is sent.
func (t *TypingCoordinator) StopTyping(ctx context.Context) {
	t.mu.Lock()
	wasTyping := t.localTyping
	t.localTyping = false
	if t.idleTimer != nil {
		t.idleTimer.Stop()
		t.idleTimer = nil
	}
	t.mu.Unlock()

	if wasTyping {
		t.sendTyping(ctx, false)
	}
}

func (t *TypingCoordinator) sendTyping(ctx context.Context, isTyping bool) {
	frame := models.TypingFrame{
		Type:     models.FrameTyping,
		IsTyping: isTyping,
	}
	if err := t.channel.Send(ctx, frame); err != nil {
		// Typing signals are transient, losing one is harmless.
		t.logger.WithError(err).Debug("Typing frame dropped")
	}
}

// ApplyTyping records a remote participant's typing state. The local
// user's own echo is ignored.
func (t *TypingCoordinator) ApplyTyping(frame *models.TypingFrame) {
	if frame.UserID == t.userID {
		return
	}

	t.mu.Lock()
	if frame.IsTyping {
		t.typingUsers[frame.UserID] = frame.Username
	} else {
		delete(t.typingUsers, frame.UserID)
	}
	t.mu.Unlock()

	t.bus.Publish(EventTyping, TypingUpdate{
		UserID:   frame.UserID,
		Username: frame.Username,
		IsTyping: frame.IsTyping,
	})
}

// ApplyUserStatus records a remote participant's online state. A user
// going offline also stops being shown as typing.
func (t *TypingCoordinator) ApplyUserStatus(frame *models.UserStatusFrame) {
	if frame.UserID == t.userID {
		return
	}

	t.mu.Lock()
	if frame.IsOnline {
		t.onlineUsers[frame.UserID] = true
	} else {
		delete(t.onlineUsers, frame.UserID)
		delete(t.typingUsers, frame.UserID)
	}
	t.mu.Unlock()

	t.bus.Publish(EventPresence, PresenceUpdate{
		UserID:   frame.UserID,
		Username: frame.Username,
		IsOnline: frame.IsOnline,
	})
}

// TypingUsers returns the usernames of everyone currently typing, sorted
// for stable display.
func (t *TypingCoordinator) TypingUsers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	names := make([]string, 0, len(t.typingUsers))
	for _, name := range t.typingUsers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsOnline reports whether a participant is currently online.
func (t *TypingCoordinator) IsOnline(userID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.onlineUsers[userID]
}

// OnlineCount returns the number of online participants.
func (t *TypingCoordinator) OnlineCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.onlineUsers)
}
