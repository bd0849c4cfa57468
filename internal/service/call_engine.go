package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"chatwire/internal/constants"
	"chatwire/internal/errors"
	"chatwire/internal/metrics"
	"chatwire/internal/models"
	"chatwire/internal/validation"
	"chatwire/pkg/rtc"
)

// CallEngine drives call signaling over the user stream and owns the
// media session. One call at a time: an incoming call during any other
// phase is rejected as busy without disturbing the current session.
type CallEngine struct {
	userID  int64
	channel Sender
	devices rtc.MediaDevices
	factory rtc.Factory
	rtcCfg  rtc.Configuration
	bus     *EventBus
	logger  *logrus.Logger
	tick    time.Duration
	now     func() time.Time

	mu       sync.Mutex
	session  *models.CallSession
	stream   rtc.MediaStream
	pc       rtc.PeerConnection
	ticker   *time.Ticker
	tickStop chan struct{}
}

// CallEngineOptions configures a CallEngine.
type CallEngineOptions struct {
	UserID  int64
	Channel Sender
	Devices rtc.MediaDevices
	Factory rtc.Factory
	RTC     rtc.Configuration
	Bus     *EventBus
	Logger  *logrus.Logger
	Tick    time.Duration
}

// NewCallEngine creates an idle engine.
func NewCallEngine(opts CallEngineOptions) *CallEngine {
	if opts.Tick == 0 {
		opts.Tick = time.Duration(constants.DefaultCallTickSec) * time.Second
	}
	if len(opts.RTC.ICEServers) == 0 {
		opts.RTC = rtc.DefaultConfiguration()
	}
	return &CallEngine{
		userID:  opts.UserID,
		channel: opts.Channel,
		devices: opts.Devices,
		factory: opts.Factory,
		rtcCfg:  opts.RTC,
		bus:     opts.Bus,
		logger:  opts.Logger,
		tick:    opts.Tick,
		now:     time.Now,
	}
}

// Phase returns the current call phase.
func (e *CallEngine) Phase() models.CallPhase {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return models.CallPhaseIdle
	}
	return e.session.Phase
}

// Session returns a copy of the current call session.
func (e *CallEngine) Session() (models.CallSession, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return models.CallSession{}, false
	}
	return *e.session, true
}

// InitiateCall starts an outgoing call. Media is acquired before any
// signaling goes out: if the devices are unavailable the callee never
// sees a ghost call.
func (e *CallEngine) InitiateCall(ctx context.Context, calleeID int64, callType models.CallType) (string, error) {
	e.mu.Lock()
	if e.session != nil {
		phase := string(e.session.Phase)
		e.mu.Unlock()
		return "", errors.NewCallStateError("initiate", phase)
	}
	e.mu.Unlock()

	stream, err := e.devices.GetUserMedia(ctx, mediaConstraints(callType))
	if err != nil {
		metrics.IncrementCounter("call_media_failures", nil, "failed media acquisitions")
		return "", errors.NewMediaError(string(callType), err)
	}

	callID := uuid.New().String()

	// An incoming call may have registered while media was acquired; it
	// keeps the engine, not us.
	e.mu.Lock()
	if e.session != nil {
		phase := string(e.session.Phase)
		e.mu.Unlock()
		stream.Stop()
		return "", errors.NewCallStateError("initiate", phase)
	}
	e.stream = stream
	e.session = &models.CallSession{
		CallID: callID,
		PeerID: calleeID,
		Type:   callType,
		Role:   models.CallRoleCaller,
		Phase:  models.CallPhaseOutgoing,
	}
	session := *e.session
	e.mu.Unlock()

	frame := models.CallInitiateFrame{
		Type:     models.FrameCallInitiate,
		CallID:   callID,
		CalleeID: calleeID,
		CallType: callType,
	}
	if err := e.channel.Send(ctx, frame); err != nil {
		e.mu.Lock()
		if e.session != nil && e.session.CallID == callID {
			e.session = nil
			e.stream = nil
		}
		e.mu.Unlock()
		stream.Stop()
		return "", err
	}

	metrics.IncrementCounter("calls_initiated",
		map[string]string{"call_type": string(callType)}, "outgoing calls started")
	e.publishState(session)
	return callID, nil
}

// HandleIncomingCall registers an incoming call, or rejects it as busy if
// a call is already in progress.
func (e *CallEngine) HandleIncomingCall(ctx context.Context, frame *models.IncomingCallFrame) {
	if err := validation.ValidateCallID(frame.CallID); err != nil {
		e.logger.WithError(err).Warn("Ignoring incoming call with invalid ID")
		return
	}

	e.mu.Lock()
	if e.session != nil {
		e.mu.Unlock()
		e.logger.WithFields(logrus.Fields{
			"call_id": SanitizeCallID(frame.CallID),
		}).Info("Rejecting incoming call, already in a call")
		metrics.IncrementCounter("calls_rejected_busy", nil, "incoming calls auto-rejected while busy")
		e.sendControl(ctx, models.FrameCallReject, frame.CallID)
		return
	}

	e.session = &models.CallSession{
		CallID:         frame.CallID,
		ConversationID: frame.ConversationID,
		PeerID:         frame.CallerID,
		PeerName:       frame.CallerName,
		Type:           frame.CallType,
		Role:           models.CallRoleCallee,
		Phase:          models.CallPhaseIncoming,
	}
	session := *e.session
	e.mu.Unlock()

	e.publishState(session)
}

// AcceptCall answers the ringing call. Media is acquired first; if it
// fails the call is rejected so the caller is not left hanging.
func (e *CallEngine) AcceptCall(ctx context.Context) error {
	e.mu.Lock()
	if e.session == nil || e.session.Phase != models.CallPhaseIncoming {
		phase := string(models.CallPhaseIdle)
		if e.session != nil {
			phase = string(e.session.Phase)
		}
		e.mu.Unlock()
		return errors.NewCallStateError("accept", phase)
	}
	callID := e.session.CallID
	callType := e.session.Type
	e.mu.Unlock()

	stream, err := e.devices.GetUserMedia(ctx, mediaConstraints(callType))
	if err != nil {
		metrics.IncrementCounter("call_media_failures", nil, "failed media acquisitions")
		e.sendControl(ctx, models.FrameCallReject, callID)
		e.teardown(models.CallPhaseEnded)
		return errors.NewMediaError(string(callType), err)
	}

	pc, err := e.setupPeerConnection(ctx, stream)
	if err != nil {
		stream.Stop()
		e.sendControl(ctx, models.FrameCallReject, callID)
		e.teardown(models.CallPhaseEnded)
		return err
	}

	// The caller may have hung up while the user sat at the permission
	// prompt; the session is gone or belongs to another call by now.
	e.mu.Lock()
	if e.session == nil || e.session.CallID != callID {
		phase := string(models.CallPhaseIdle)
		if e.session != nil {
			phase = string(e.session.Phase)
		}
		e.mu.Unlock()
		stream.Stop()
		_ = pc.Close()
		return errors.NewCallStateError("accept", phase)
	}
	e.stream = stream
	e.pc = pc
	e.session.Phase = models.CallPhaseActive
	e.session.StartedAt = e.now()
	session := *e.session
	e.mu.Unlock()

	e.sendControl(ctx, models.FrameCallAccept, callID)
	e.startTicker(session.CallID)
	metrics.IncrementCounter("calls_accepted", nil, "incoming calls accepted")
	e.publishState(session)
	return nil
}

// RejectCall declines the ringing call.
func (e *CallEngine) RejectCall(ctx context.Context) error {
	e.mu.Lock()
	if e.session == nil || e.session.Phase != models.CallPhaseIncoming {
		phase := string(models.CallPhaseIdle)
		if e.session != nil {
			phase = string(e.session.Phase)
		}
		e.mu.Unlock()
		return errors.NewCallStateError("reject", phase)
	}
	callID := e.session.CallID
	e.mu.Unlock()

	e.sendControl(ctx, models.FrameCallReject, callID)
	e.teardown(models.CallPhaseEnded)
	return nil
}

// HandleCallAccepted reacts to the callee accepting: the caller builds
// the peer connection and sends the offer.
func (e *CallEngine) HandleCallAccepted(ctx context.Context, frame *models.CallControlFrame) {
	e.mu.Lock()
	if e.session == nil || e.session.Role != models.CallRoleCaller ||
		e.session.Phase != models.CallPhaseOutgoing || e.session.CallID != frame.CallID {
		e.mu.Unlock()
		e.logger.Debug("Ignoring call_accepted outside an outgoing call")
		return
	}
	callID := e.session.CallID
	stream := e.stream
	e.mu.Unlock()

	pc, err := e.setupPeerConnection(ctx, stream)
	if err != nil {
		e.logger.WithError(err).Error("Peer connection setup failed")
		e.End(ctx)
		return
	}

	offer, err := pc.CreateOffer(ctx)
	if err == nil {
		err = pc.SetLocalDescription(offer)
	}
	if err != nil {
		e.logger.WithError(err).Error("Offer creation failed")
		_ = pc.Close()
		e.End(ctx)
		return
	}

	e.mu.Lock()
	if e.session == nil || e.session.CallID != callID {
		e.mu.Unlock()
		_ = pc.Close()
		e.logger.Debug("Call went away during offer setup")
		return
	}
	e.pc = pc
	e.session.Phase = models.CallPhaseActive
	e.session.StartedAt = e.now()
	session := *e.session
	e.mu.Unlock()

	e.sendSignal(ctx, models.FrameWebRTCOffer, session.CallID, offer, nil)
	e.startTicker(session.CallID)
	e.publishState(session)
}

// HandleCallRejected tears down the outgoing call the peer declined.
func (e *CallEngine) HandleCallRejected(frame *models.CallControlFrame) {
	if !e.matchesCall(frame.CallID) {
		return
	}
	e.logger.WithField("call_id", SanitizeCallID(frame.CallID)).Info("Call rejected by peer")
	e.teardown(models.CallPhaseEnded)
}

// HandleCallEnded tears down the call the peer hung up.
func (e *CallEngine) HandleCallEnded(frame *models.CallControlFrame) {
	if !e.matchesCall(frame.CallID) {
		return
	}
	e.logger.WithField("call_id", SanitizeCallID(frame.CallID)).Info("Call ended by peer")
	e.teardown(models.CallPhaseEnded)
}

// End hangs up the current call and notifies the peer.
func (e *CallEngine) End(ctx context.Context) {
	e.mu.Lock()
	if e.session == nil {
		e.mu.Unlock()
		return
	}
	callID := e.session.CallID
	e.mu.Unlock()

	e.sendControl(ctx, models.FrameCallEnd, callID)
	e.teardown(models.CallPhaseEnded)
}

// HandleOffer applies the caller's offer and replies with an answer.
func (e *CallEngine) HandleOffer(ctx context.Context, frame *models.SignalFrame) {
	// The callee builds its peer connection before call_accept goes out,
	// so by the time the caller's offer arrives pc is only nil when the
	// call has already been torn down.
	pc := e.currentPC(frame.CallID)
	if pc == nil {
		e.logger.Debug("Ignoring offer without an active call")
		return
	}

	var offer rtc.SessionDescription
	if err := json.Unmarshal(frame.Offer, &offer); err != nil {
		e.logger.WithError(err).Warn("Undecodable offer payload")
		return
	}

	if err := pc.SetRemoteDescription(offer); err != nil {
		e.logger.WithError(err).Error("Failed to apply remote offer")
		e.End(ctx)
		return
	}

	answer, err := pc.CreateAnswer(ctx)
	if err == nil {
		err = pc.SetLocalDescription(answer)
	}
	if err != nil {
		e.logger.WithError(err).Error("Answer creation failed")
		e.End(ctx)
		return
	}

	e.sendSignal(ctx, models.FrameWebRTCAnswer, frame.CallID, answer, nil)
}

// HandleAnswer applies the callee's answer on the caller side.
func (e *CallEngine) HandleAnswer(ctx context.Context, frame *models.SignalFrame) {
	pc := e.currentPC(frame.CallID)
	if pc == nil {
		e.logger.Debug("Ignoring answer without an active call")
		return
	}

	var answer rtc.SessionDescription
	if err := json.Unmarshal(frame.Answer, &answer); err != nil {
		e.logger.WithError(err).Warn("Undecodable answer payload")
		return
	}

	if err := pc.SetRemoteDescription(answer); err != nil {
		e.logger.WithError(err).Error("Failed to apply remote answer")
		e.End(ctx)
	}
}

// HandleICECandidate applies a relayed candidate. Candidates that arrive
// before the remote description are dropped, not queued.
func (e *CallEngine) HandleICECandidate(frame *models.SignalFrame) {
	pc := e.currentPC(frame.CallID)
	if pc == nil || !pc.HasRemoteDescription() {
		metrics.IncrementCounter("ice_candidates_dropped", nil, "candidates arriving before the remote description")
		e.logger.Debug("Dropping early ICE candidate")
		return
	}

	var candidate rtc.ICECandidate
	if err := json.Unmarshal(frame.Candidate, &candidate); err != nil {
		e.logger.WithError(err).Warn("Undecodable ICE candidate")
		return
	}

	if err := pc.AddICECandidate(candidate); err != nil {
		e.logger.WithError(err).Warn("Failed to add ICE candidate")
	}
}

// ToggleMute flips the local audio track. Purely local, nothing is
// signaled to the peer.
func (e *CallEngine) ToggleMute() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil || e.stream == nil {
		return false, errors.NewCallStateError("mute", string(models.CallPhaseIdle))
	}
	e.session.Muted = !e.session.Muted
	e.stream.SetTrackEnabled(rtc.MediaKindAudio, !e.session.Muted)
	return e.session.Muted, nil
}

// ToggleVideo flips the local video track. Purely local.
func (e *CallEngine) ToggleVideo() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil || e.stream == nil {
		return false, errors.NewCallStateError("video", string(models.CallPhaseIdle))
	}
	if e.session.Type != models.CallTypeVideo {
		return false, errors.New(errors.ErrCodeInvalidInput, "no video track on an audio call")
	}
	e.session.VideoOff = !e.session.VideoOff
	e.stream.SetTrackEnabled(rtc.MediaKindVideo, !e.session.VideoOff)
	return e.session.VideoOff, nil
}

func (e *CallEngine) setupPeerConnection(ctx context.Context, stream rtc.MediaStream) (rtc.PeerConnection, error) {
	pc, err := e.factory.NewPeerConnection(e.rtcCfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to create peer connection")
	}
	if stream != nil {
		if err := pc.AddStream(stream); err != nil {
			_ = pc.Close()
			return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to attach local stream")
		}
	}

	pc.OnICECandidate(func(candidate rtc.ICECandidate) {
		e.mu.Lock()
		var callID string
		if e.session != nil {
			callID = e.session.CallID
		}
		e.mu.Unlock()
		if callID == "" {
			return
		}
		e.sendSignal(context.Background(), models.FrameWebRTCCandidate, callID, rtc.SessionDescription{}, &candidate)
	})

	pc.OnConnectionStateChange(func(state rtc.ConnectionState) {
		e.logger.WithField("state", state).Debug("Peer connection state changed")
		if state.Terminal() && state != rtc.ConnectionStateClosed {
			e.End(context.Background())
		}
	})

	return pc, nil
}

func (e *CallEngine) currentPC(callID string) rtc.PeerConnection {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil || e.session.CallID != callID {
		return nil
	}
	return e.pc
}

func (e *CallEngine) matchesCall(callID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session != nil && e.session.CallID == callID
}

func (e *CallEngine) sendControl(ctx context.Context, frameType models.FrameType, callID string) {
	frame := models.CallControlFrame{Type: frameType, CallID: callID}
	if err := e.channel.Send(ctx, frame); err != nil {
		e.logger.WithError(err).WithField("type", frameType).Warn("Call control frame dropped")
	}
}

func (e *CallEngine) sendSignal(ctx context.Context, frameType models.FrameType, callID string, desc rtc.SessionDescription, candidate *rtc.ICECandidate) {
	frame := models.SignalFrame{Type: frameType, CallID: callID}

	switch frameType {
	case models.FrameWebRTCOffer:
		payload, _ := json.Marshal(desc)
		frame.Offer = payload
	case models.FrameWebRTCAnswer:
		payload, _ := json.Marshal(desc)
		frame.Answer = payload
	case models.FrameWebRTCCandidate:
		payload, _ := json.Marshal(candidate)
		frame.Candidate = payload
	}

	if err := e.channel.Send(ctx, frame); err != nil {
		e.logger.WithError(err).WithField("type", frameType).Warn("Signal frame dropped")
	}
}

func (e *CallEngine) startTicker(callID string) {
	e.mu.Lock()
	if e.ticker != nil {
		e.mu.Unlock()
		return
	}
	ticker := time.NewTicker(e.tick)
	stop := make(chan struct{})
	e.ticker = ticker
	e.tickStop = stop
	started := e.now()
	e.mu.Unlock()

	go func() {
		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				e.bus.Publish(EventCallTick, CallTick{
					CallID:  callID,
					Elapsed: now.Sub(started).Truncate(time.Second),
				})
			}
		}
	}()
}

// teardown releases media, closes the peer connection, publishes the
// final phase, and returns the engine to idle.
func (e *CallEngine) teardown(phase models.CallPhase) {
	e.mu.Lock()
	session := e.session
	stream := e.stream
	pc := e.pc
	ticker := e.ticker
	stop := e.tickStop
	e.session = nil
	e.stream = nil
	e.pc = nil
	e.ticker = nil
	e.tickStop = nil
	e.mu.Unlock()

	if ticker != nil {
		ticker.Stop()
		close(stop)
	}
	if stream != nil {
		stream.Stop()
	}
	if pc != nil {
		_ = pc.Close()
	}

	if session != nil {
		session.Phase = phase
		e.publishState(*session)
		metrics.IncrementCounter("calls_ended", nil, "calls torn down")
	}
}

func (e *CallEngine) publishState(session models.CallSession) {
	e.bus.Publish(EventCallState, CallStateUpdate{Session: session})
}

func mediaConstraints(callType models.CallType) rtc.MediaConstraints {
	return rtc.MediaConstraints{
		Audio: true,
		Video: callType == models.CallTypeVideo,
	}
}
