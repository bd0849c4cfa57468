package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"chatwire/internal/constants"
	"chatwire/internal/errors"
	"chatwire/internal/metrics"
	"chatwire/internal/models"
	"chatwire/internal/retry"
)

// ChannelState is the lifecycle state of a managed channel.
type ChannelState string

const (
	ChannelStateClosed     ChannelState = "closed"
	ChannelStateConnecting ChannelState = "connecting"
	ChannelStateOpen       ChannelState = "open"
	ChannelStateClosing    ChannelState = "closing"
)

// ConnectionUpdate is published on every channel state transition.
type ConnectionUpdate struct {
	Stream string
	State  ChannelState
	Ready  bool
}

// FrameHandler consumes raw inbound frames.
type FrameHandler func(ctx context.Context, data []byte)

// ChannelManagerOptions configures a ChannelManager.
type ChannelManagerOptions struct {
	// Name identifies the stream in logs and events, e.g. "conversation"
	// or "user".
	Name           string
	URL            string
	Dialer         Dialer
	ReconnectDelay time.Duration
	ReadyGrace     time.Duration
	DialTimeout    time.Duration
	SendTimeout    time.Duration
	Clock          *models.SessionClock
	Bus            *EventBus
	Logger         *logrus.Logger
	// OnDisconnect is invoked each time an established connection is
	// lost, before any reconnect attempt.
	OnDisconnect func()
}

// ChannelManager owns one websocket stream. It dials, pumps inbound
// frames to the handler, and reconnects at a fixed cadence when the
// connection drops abnormally. A normal close or an auth failure ends the
// channel for good.
//
// Sends work as soon as the connection is open. Ready additionally waits
// out a short post-connect grace period and is what the notification
// gate consults, so history replayed right after a reconnect never
// surfaces as notifications.
type ChannelManager struct {
	name         string
	url          string
	dialer       Dialer
	policy       *retry.Policy
	readyGrace   time.Duration
	dialTimeout  time.Duration
	sendTimeout  time.Duration
	clock        *models.SessionClock
	bus          *EventBus
	logger       *logrus.Logger
	onDisconnect func()

	mu      sync.RWMutex
	state   ChannelState
	ready   bool
	conn    Conn
	epoch   int
	handler FrameHandler
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
}

// NewChannelManager creates a manager for a single stream. Zero durations
// fall back to the defaults.
func NewChannelManager(opts ChannelManagerOptions) *ChannelManager {
	if opts.ReconnectDelay == 0 {
		opts.ReconnectDelay = time.Duration(constants.DefaultReconnectDelaySec) * time.Second
	}
	if opts.ReadyGrace == 0 {
		opts.ReadyGrace = time.Duration(constants.DefaultReadyGraceMs) * time.Millisecond
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = time.Duration(constants.DefaultDialTimeoutSec) * time.Second
	}
	if opts.SendTimeout == 0 {
		opts.SendTimeout = time.Duration(constants.DefaultSendTimeoutSec) * time.Second
	}

	return &ChannelManager{
		name:         opts.Name,
		url:          opts.URL,
		dialer:       opts.Dialer,
		policy:       retry.NewPolicy(retry.PolicyConfig{Delay: opts.ReconnectDelay}),
		readyGrace:   opts.ReadyGrace,
		dialTimeout:  opts.DialTimeout,
		sendTimeout:  opts.SendTimeout,
		clock:        opts.Clock,
		bus:          opts.Bus,
		logger:       opts.Logger,
		onDisconnect: opts.OnDisconnect,
		state:        ChannelStateClosed,
	}
}

// SetHandler installs the inbound frame handler. Must be called before
// Start.
func (m *ChannelManager) SetHandler(handler FrameHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// Start runs the connect loop until Stop is called or the context ends.
func (m *ChannelManager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("channel %s already started", m.name)
	}
	m.started = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.mu.Unlock()

	go m.run(ctx)
	return nil
}

// Stop closes the channel gracefully and waits for the loop to exit.
func (m *ChannelManager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	m.setStateLocked(ChannelStateClosing, false)
	close(m.stopCh)
	done := m.doneCh
	m.mu.Unlock()

	<-done
}

// State returns the current channel state.
func (m *ChannelManager) State() ChannelState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Ready reports whether the channel is open and past the post-connect
// grace period.
func (m *ChannelManager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == ChannelStateOpen && m.ready
}

// Send marshals the payload and writes it as a single text frame. Sends
// on a channel that is not open fail immediately; the caller decides
// whether that means dropping or marking the message failed.
func (m *ChannelManager) Send(ctx context.Context, payload interface{}) error {
	m.mu.RLock()
	conn := m.conn
	ok := m.state == ChannelStateOpen
	m.mu.RUnlock()

	if !ok || conn == nil {
		return errors.New(errors.ErrCodeChannelClosed, "channel not open").
			WithContext("stream", m.name)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to marshal frame").
			WithContext("stream", m.name)
	}

	writeCtx, cancel := context.WithTimeout(ctx, m.sendTimeout)
	defer cancel()

	if err := conn.Write(writeCtx, data); err != nil {
		metrics.IncrementCounter("channel_send_failures",
			map[string]string{"stream": m.name}, "frames that failed to send")
		return errors.NewTransportError(m.name, err)
	}

	metrics.IncrementCounter("channel_frames_sent",
		map[string]string{"stream": m.name}, "frames sent")
	return nil
}

func (m *ChannelManager) run(ctx context.Context) {
	defer close(m.doneCh)
	defer m.setState(ChannelStateClosed, false)

	for {
		if m.stopped(ctx) {
			return
		}

		m.setState(ChannelStateConnecting, false)

		dialCtx, cancel := context.WithTimeout(ctx, m.dialTimeout)
		go func() {
			select {
			case <-m.stopCh:
				cancel()
			case <-dialCtx.Done():
			}
		}()
		conn, err := m.dialer.Dial(dialCtx, m.url)
		cancel()
		if err != nil {
			m.logger.WithError(err).WithField("stream", m.name).Warn("Channel dial failed")
			metrics.IncrementCounter("channel_dial_failures",
				map[string]string{"stream": m.name}, "failed dial attempts")
			if !m.waitForRetry(ctx) {
				return
			}
			continue
		}

		epoch := m.attach(conn)
		readErr := m.readPump(ctx, conn)
		m.detach(epoch)

		if m.stopped(ctx) {
			_ = conn.Close(constants.CloseCodeNormal, "client shutdown")
			return
		}

		switch CloseCode(readErr) {
		case constants.CloseCodeNormal:
			m.logger.WithField("stream", m.name).Info("Channel closed normally")
			return
		case constants.CloseCodeAuthFailure:
			authErr := errors.NewAuthError("channel rejected credentials")
			m.logger.WithError(authErr).WithField("stream", m.name).Error("Channel authentication failed")
			metrics.IncrementCounter("channel_auth_failures",
				map[string]string{"stream": m.name}, "terminal auth rejections")
			return
		default:
			m.logger.WithError(readErr).WithField("stream", m.name).Warn("Channel connection lost, reconnecting")
			metrics.IncrementCounter("channel_reconnects",
				map[string]string{"stream": m.name}, "reconnect attempts after abnormal close")
			if !m.waitForRetry(ctx) {
				return
			}
		}
	}
}

// attach installs the new connection, resets the session clock, and arms
// the ready grace timer. Returns the connection epoch, used to ignore
// stale timer fires after a reconnect.
func (m *ChannelManager) attach(conn Conn) int {
	m.mu.Lock()
	m.conn = conn
	m.epoch++
	epoch := m.epoch
	m.ready = false
	m.setStateLocked(ChannelStateOpen, false)
	m.mu.Unlock()

	if m.clock != nil {
		m.clock.Reset()
	}

	time.AfterFunc(m.readyGrace, func() {
		m.mu.Lock()
		if m.epoch != epoch || m.state != ChannelStateOpen {
			m.mu.Unlock()
			return
		}
		m.ready = true
		m.mu.Unlock()
		m.publish(ChannelStateOpen, true)
		m.logger.WithField("stream", m.name).Debug("Channel ready")
	})

	m.logger.WithField("stream", m.name).Info("Channel connected")
	return epoch
}

func (m *ChannelManager) detach(epoch int) {
	m.mu.Lock()
	matched := m.epoch == epoch
	if matched {
		m.conn = nil
		m.ready = false
	}
	hook := m.onDisconnect
	m.mu.Unlock()

	if matched && hook != nil {
		hook()
	}
}

func (m *ChannelManager) readPump(ctx context.Context, conn Conn) error {
	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-m.stopCh:
			cancel()
		case <-readCtx.Done():
		}
	}()

	for {
		data, err := conn.Read(readCtx)
		if err != nil {
			return err
		}

		metrics.IncrementCounter("channel_frames_received",
			map[string]string{"stream": m.name}, "frames received")

		m.mu.RLock()
		handler := m.handler
		m.mu.RUnlock()
		if handler != nil {
			handler(ctx, data)
		}
	}
}

func (m *ChannelManager) waitForRetry(ctx context.Context) bool {
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-m.stopCh:
			cancel()
		case <-waitCtx.Done():
		}
	}()
	return m.policy.Wait(waitCtx) == nil
}

func (m *ChannelManager) stopped(ctx context.Context) bool {
	select {
	case <-m.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (m *ChannelManager) setState(state ChannelState, ready bool) {
	m.mu.Lock()
	m.setStateLocked(state, ready)
	m.mu.Unlock()
}

// setStateLocked updates state and publishes the transition. Callers must
// hold the mutex.
func (m *ChannelManager) setStateLocked(state ChannelState, ready bool) {
	if m.state == state && m.ready == ready {
		return
	}
	m.state = state
	m.ready = ready
	go m.publish(state, ready)
}

func (m *ChannelManager) publish(state ChannelState, ready bool) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(EventConnectionState, ConnectionUpdate{
		Stream: m.name,
		State:  state,
		Ready:  ready,
	})
}
