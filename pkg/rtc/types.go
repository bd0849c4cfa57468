// Package rtc abstracts the media and peer-connection machinery a call
// needs. Implementations may bind a real WebRTC stack; the Null
// implementations let the signaling layer run headless.
package rtc

// MediaKind identifies a track type.
type MediaKind string

const (
	MediaKindAudio MediaKind = "audio"
	MediaKindVideo MediaKind = "video"
)

// MediaConstraints selects which tracks to capture.
type MediaConstraints struct {
	Audio bool
	Video bool
}

// ConnectionState mirrors the peer connection lifecycle.
type ConnectionState string

const (
	ConnectionStateNew          ConnectionState = "new"
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateFailed       ConnectionState = "failed"
	ConnectionStateClosed       ConnectionState = "closed"
)

// Terminal reports whether the state means the connection is beyond
// recovery and the call should be torn down.
func (s ConnectionState) Terminal() bool {
	return s == ConnectionStateFailed || s == ConnectionStateDisconnected || s == ConnectionStateClosed
}

// SessionDescription is an SDP offer or answer.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidate is a single ICE candidate.
type ICECandidate struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid,omitempty"`
	SDPMLineIndex int    `json:"sdpMLineIndex,omitempty"`
}

// ICEServer configures a STUN or TURN server.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// Configuration carries peer connection setup.
type Configuration struct {
	ICEServers []ICEServer
}

// DefaultConfiguration returns a configuration using a public STUN server.
func DefaultConfiguration() Configuration {
	return Configuration{
		ICEServers: []ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	}
}
