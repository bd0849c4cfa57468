package models

import (
	"encoding/json"
	"time"
)

// CallType distinguishes audio-only from video calls.
type CallType string

const (
	CallTypeAudio CallType = "audio"
	CallTypeVideo CallType = "video"
)

// CallRole records which side of the call the local user is on.
type CallRole string

const (
	CallRoleCaller CallRole = "caller"
	CallRoleCallee CallRole = "callee"
)

// CallPhase is the lifecycle phase of a call session.
type CallPhase string

const (
	CallPhaseIdle     CallPhase = "idle"
	CallPhaseOutgoing CallPhase = "outgoing"
	CallPhaseIncoming CallPhase = "incoming"
	CallPhaseActive   CallPhase = "active"
	CallPhaseEnded    CallPhase = "ended"
)

// CallSession is the local view of a single call.
type CallSession struct {
	CallID         string    `json:"call_id"`
	ConversationID int64     `json:"conversation_id,omitempty"`
	PeerID         int64     `json:"peer_id"`
	PeerName       string    `json:"peer_name"`
	Type           CallType  `json:"call_type"`
	Role           CallRole  `json:"role"`
	Phase          CallPhase `json:"phase"`
	StartedAt      time.Time `json:"started_at,omitempty"`
	Muted          bool      `json:"muted"`
	VideoOff       bool      `json:"video_off"`
}

// CallInitiateFrame starts a call toward another user.
type CallInitiateFrame struct {
	Type     FrameType `json:"type"`
	CallID   string    `json:"call_id"`
	CalleeID int64     `json:"callee_id"`
	CallType CallType  `json:"call_type"`
}

// IncomingCallFrame announces a call from another user.
type IncomingCallFrame struct {
	Type           FrameType `json:"type"`
	CallID         string    `json:"call_id"`
	CallerID       int64     `json:"caller_id"`
	CallerName     string    `json:"caller_name"`
	CallType       CallType  `json:"call_type"`
	ConversationID int64     `json:"conversation_id,omitempty"`
}

// CallControlFrame covers accept, reject and end in both directions.
type CallControlFrame struct {
	Type       FrameType `json:"type"`
	CallID     string    `json:"call_id"`
	AccepterID int64     `json:"accepter_id,omitempty"`
	RejecterID int64     `json:"rejecter_id,omitempty"`
	EndedBy    int64     `json:"ended_by,omitempty"`
}

// SessionDescription is an opaque SDP payload relayed between peers.
type SessionDescription struct {
	SDPType string `json:"type"`
	SDP     string `json:"sdp"`
}

// ICECandidate is an opaque candidate payload relayed between peers.
type ICECandidate struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid,omitempty"`
	SDPMLineIndex int    `json:"sdpMLineIndex,omitempty"`
}

// SignalFrame relays WebRTC offers, answers and ICE candidates. Exactly
// one of the payload fields is set, matching the frame type.
type SignalFrame struct {
	Type      FrameType       `json:"type"`
	CallID    string          `json:"call_id"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}
