package rtc

import (
	"context"
	"fmt"
	"sync"
)

// NullMediaStream is a stream with no real tracks. Track toggles are
// recorded so callers can observe mute state.
type NullMediaStream struct {
	mu      sync.Mutex
	kinds   []MediaKind
	enabled map[MediaKind]bool
	stopped bool
}

// NewNullMediaStream creates a stream carrying the given track kinds.
func NewNullMediaStream(kinds ...MediaKind) *NullMediaStream {
	enabled := make(map[MediaKind]bool, len(kinds))
	for _, k := range kinds {
		enabled[k] = true
	}
	return &NullMediaStream{kinds: kinds, enabled: enabled}
}

func (s *NullMediaStream) Kinds() []MediaKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MediaKind, len(s.kinds))
	copy(out, s.kinds)
	return out
}

func (s *NullMediaStream) SetTrackEnabled(kind MediaKind, enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.enabled[kind]; !ok {
		return false
	}
	s.enabled[kind] = enabled
	return true
}

// TrackEnabled reports the recorded state of a track kind.
func (s *NullMediaStream) TrackEnabled(kind MediaKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled[kind]
}

func (s *NullMediaStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

// Stopped reports whether Stop has been called.
func (s *NullMediaStream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// NullMediaDevices hands out NullMediaStream instances. FailNext makes
// the next acquisition fail, for exercising media error paths.
type NullMediaDevices struct {
	mu       sync.Mutex
	failNext error
}

// NewNullMediaDevices creates a device source that always succeeds.
func NewNullMediaDevices() *NullMediaDevices {
	return &NullMediaDevices{}
}

// FailNext makes the next GetUserMedia call return err.
func (d *NullMediaDevices) FailNext(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failNext = err
}

func (d *NullMediaDevices) GetUserMedia(ctx context.Context, constraints MediaConstraints) (MediaStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	failErr := d.failNext
	d.failNext = nil
	d.mu.Unlock()
	if failErr != nil {
		return nil, failErr
	}

	var kinds []MediaKind
	if constraints.Audio {
		kinds = append(kinds, MediaKindAudio)
	}
	if constraints.Video {
		kinds = append(kinds, MediaKindVideo)
	}
	if len(kinds) == 0 {
		return nil, fmt.Errorf("no tracks requested")
	}

	return NewNullMediaStream(kinds...), nil
}

// NullPeerConnection is a headless peer connection. It produces
// placeholder SDP, tracks description state, and lets callers drive
// connection state transitions by hand.
type NullPeerConnection struct {
	mu            sync.Mutex
	localDesc     *SessionDescription
	remoteDesc    *SessionDescription
	candidates    []ICECandidate
	state         ConnectionState
	onCandidate   func(ICECandidate)
	onStateChange func(ConnectionState)
	closed        bool
}

// NewNullPeerConnection creates a peer connection in the new state.
func NewNullPeerConnection() *NullPeerConnection {
	return &NullPeerConnection{state: ConnectionStateNew}
}

func (pc *NullPeerConnection) AddStream(stream MediaStream) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.closed {
		return fmt.Errorf("peer connection closed")
	}
	return nil
}

func (pc *NullPeerConnection) CreateOffer(ctx context.Context) (SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return SessionDescription{}, err
	}
	return SessionDescription{Type: "offer", SDP: "v=0"}, nil
}

func (pc *NullPeerConnection) CreateAnswer(ctx context.Context) (SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return SessionDescription{}, err
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.remoteDesc == nil {
		return SessionDescription{}, fmt.Errorf("cannot answer without remote description")
	}
	return SessionDescription{Type: "answer", SDP: "v=0"}, nil
}

func (pc *NullPeerConnection) SetLocalDescription(desc SessionDescription) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.localDesc = &desc
	return nil
}

func (pc *NullPeerConnection) SetRemoteDescription(desc SessionDescription) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.remoteDesc = &desc
	return nil
}

func (pc *NullPeerConnection) HasRemoteDescription() bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.remoteDesc != nil
}

func (pc *NullPeerConnection) AddICECandidate(candidate ICECandidate) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.remoteDesc == nil {
		return fmt.Errorf("no remote description")
	}
	pc.candidates = append(pc.candidates, candidate)
	return nil
}

// Candidates returns the candidates applied so far.
func (pc *NullPeerConnection) Candidates() []ICECandidate {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	out := make([]ICECandidate, len(pc.candidates))
	copy(out, pc.candidates)
	return out
}

func (pc *NullPeerConnection) OnICECandidate(fn func(ICECandidate)) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.onCandidate = fn
}

func (pc *NullPeerConnection) OnConnectionStateChange(fn func(ConnectionState)) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.onStateChange = fn
}

func (pc *NullPeerConnection) ConnectionState() ConnectionState {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.state
}

// EmitCandidate feeds a locally gathered candidate to the registered
// callback, simulating the gathering process.
func (pc *NullPeerConnection) EmitCandidate(candidate ICECandidate) {
	pc.mu.Lock()
	fn := pc.onCandidate
	pc.mu.Unlock()
	if fn != nil {
		fn(candidate)
	}
}

// SetConnectionState transitions the connection and fires the state
// change callback.
func (pc *NullPeerConnection) SetConnectionState(state ConnectionState) {
	pc.mu.Lock()
	pc.state = state
	fn := pc.onStateChange
	pc.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

func (pc *NullPeerConnection) Close() error {
	pc.mu.Lock()
	alreadyClosed := pc.closed
	pc.closed = true
	pc.state = ConnectionStateClosed
	pc.mu.Unlock()
	if alreadyClosed {
		return nil
	}
	return nil
}

// NullFactory builds NullPeerConnection instances and remembers the last
// one created.
type NullFactory struct {
	mu   sync.Mutex
	last *NullPeerConnection
}

// NewNullFactory creates a factory for headless peer connections.
func NewNullFactory() *NullFactory {
	return &NullFactory{}
}

func (f *NullFactory) NewPeerConnection(config Configuration) (PeerConnection, error) {
	pc := NewNullPeerConnection()
	f.mu.Lock()
	f.last = pc
	f.mu.Unlock()
	return pc, nil
}

// Last returns the most recently created peer connection.
func (f *NullFactory) Last() *NullPeerConnection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}
