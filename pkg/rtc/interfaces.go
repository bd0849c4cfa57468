package rtc

import "context"

// MediaStream is a set of captured local tracks.
type MediaStream interface {
	// Kinds lists the track kinds present on the stream.
	Kinds() []MediaKind
	// SetTrackEnabled toggles all tracks of the given kind. Disabling an
	// audio track mutes, disabling a video track blanks the camera. The
	// track stays attached either way.
	SetTrackEnabled(kind MediaKind, enabled bool) bool
	// Stop releases all tracks and the underlying devices.
	Stop()
}

// MediaDevices acquires local capture streams.
type MediaDevices interface {
	GetUserMedia(ctx context.Context, constraints MediaConstraints) (MediaStream, error)
}

// PeerConnection is one side of a media session.
type PeerConnection interface {
	AddStream(stream MediaStream) error
	CreateOffer(ctx context.Context) (SessionDescription, error)
	CreateAnswer(ctx context.Context) (SessionDescription, error)
	SetLocalDescription(desc SessionDescription) error
	SetRemoteDescription(desc SessionDescription) error
	// HasRemoteDescription reports whether a remote description has been
	// applied. Candidates arriving before it must be discarded.
	HasRemoteDescription() bool
	AddICECandidate(candidate ICECandidate) error
	// OnICECandidate registers a callback for locally gathered candidates.
	OnICECandidate(fn func(ICECandidate))
	// OnConnectionStateChange registers a callback for lifecycle changes.
	OnConnectionStateChange(fn func(ConnectionState))
	ConnectionState() ConnectionState
	Close() error
}

// Factory builds peer connections.
type Factory interface {
	NewPeerConnection(config Configuration) (PeerConnection, error)
}
