package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// FrameType discriminates frames exchanged over a channel.
type FrameType string

// Conversation stream frame types.
const (
	FrameMessage         FrameType = "message"
	FrameFileMessage     FrameType = "file_message"
	FrameTyping          FrameType = "typing"
	FrameUserStatus      FrameType = "user_status"
	FrameMessageStatus   FrameType = "message_status"
	FrameReaction        FrameType = "reaction"
	FrameMessageReaction FrameType = "message_reaction"
	FrameMessageEdit     FrameType = "message_edit"
	FrameMessageDelete   FrameType = "message_delete"
)

// User-notification stream frame types (call signaling).
const (
	FrameCallInitiate    FrameType = "call_initiate"
	FrameIncomingCall    FrameType = "incoming_call"
	FrameCallAccept      FrameType = "call_accept"
	FrameCallAccepted    FrameType = "call_accepted"
	FrameCallReject      FrameType = "call_reject"
	FrameCallRejected    FrameType = "call_rejected"
	FrameCallEnd         FrameType = "call_end"
	FrameCallEnded       FrameType = "call_ended"
	FrameWebRTCOffer     FrameType = "webrtc_offer"
	FrameWebRTCAnswer    FrameType = "webrtc_answer"
	FrameWebRTCCandidate FrameType = "webrtc_ice_candidate"
)

// Envelope carries only the discriminator, used to classify an inbound
// frame before decoding it into its concrete type.
type Envelope struct {
	Type FrameType `json:"type"`
}

// ParseEnvelope extracts the frame type from a raw inbound frame.
func ParseEnvelope(data []byte) (FrameType, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("malformed frame: %w", err)
	}
	if env.Type == "" {
		return "", fmt.Errorf("frame missing type field")
	}
	return env.Type, nil
}

// MessageFrame is the outbound text-message frame.
type MessageFrame struct {
	Type    FrameType `json:"type"`
	Message string    `json:"message"`
	TempID  int64     `json:"temp_id"`
}

// InboundMessage is a confirmed message delivered by the server, either a
// plain text message or a file message. File messages carry their text in
// the content field.
type InboundMessage struct {
	Type      FrameType `json:"type"`
	MessageID int64     `json:"message_id"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	Message   string    `json:"message,omitempty"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status,omitempty"`
	TempID    int64     `json:"temp_id,omitempty"`
	FileURL   string    `json:"file_url,omitempty"`
	FileName  string    `json:"file_name,omitempty"`
	FileSize  string    `json:"file_size,omitempty"`
	FileIcon  string    `json:"file_icon,omitempty"`
	IsImage   bool      `json:"is_image,omitempty"`
}

// Text returns the displayable text of the message regardless of which
// field the server populated.
func (m *InboundMessage) Text() string {
	if m.Message != "" {
		return m.Message
	}
	return m.Content
}

// FileMessageFrame announces a completed upload. The file itself goes to
// the persistence API first; this frame carries the metadata the server
// returned so other participants can render the attachment.
type FileMessageFrame struct {
	Type      FrameType `json:"type"`
	Message   string    `json:"message"`
	MessageID int64     `json:"message_id"`
	FileName  string    `json:"file_name"`
	FileURL   string    `json:"file_url"`
	FileSize  string    `json:"file_size"`
	IsImage   bool      `json:"is_image"`
}

// TypingFrame is sent and received for typing indication. The user fields
// are only present inbound.
type TypingFrame struct {
	Type     FrameType `json:"type"`
	UserID   int64     `json:"user_id,omitempty"`
	Username string    `json:"username,omitempty"`
	IsTyping bool      `json:"is_typing"`
}

// UserStatusFrame reports a participant going online or offline.
type UserStatusFrame struct {
	Type     FrameType `json:"type"`
	UserID   int64     `json:"user_id"`
	Username string    `json:"username,omitempty"`
	IsOnline bool      `json:"is_online"`
}

// MessageStatusFrame reports a delivery-status transition for a message.
type MessageStatusFrame struct {
	Type      FrameType      `json:"type"`
	MessageID int64          `json:"message_id"`
	Status    DeliveryStatus `json:"status"`
}

// Reactor identifies a user who reacted to a message.
type Reactor struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

// ReactionFrame is the inbound full-snapshot reaction state for a message.
type ReactionFrame struct {
	Type      FrameType            `json:"type"`
	MessageID int64                `json:"message_id"`
	Emoji     string               `json:"emoji,omitempty"`
	UserID    int64                `json:"user_id,omitempty"`
	Username  string               `json:"username,omitempty"`
	Action    string               `json:"action,omitempty"`
	Reactions map[string][]Reactor `json:"reactions"`
}

// SendReactionFrame is the outbound reaction request.
type SendReactionFrame struct {
	Type      FrameType `json:"type"`
	MessageID int64     `json:"message_id"`
	Emoji     string    `json:"emoji"`
	Action    string    `json:"action"`
}

// EditFrame carries a message edit. Outbound uses the content field,
// inbound uses new_content.
type EditFrame struct {
	Type       FrameType `json:"type"`
	MessageID  int64     `json:"message_id"`
	Content    string    `json:"content,omitempty"`
	NewContent string    `json:"new_content,omitempty"`
	EditedBy   string    `json:"edited_by,omitempty"`
}

// NewText returns the edited text regardless of direction.
func (f *EditFrame) NewText() string {
	if f.NewContent != "" {
		return f.NewContent
	}
	return f.Content
}

// DeleteFrame carries a message deletion in either direction.
type DeleteFrame struct {
	Type      FrameType `json:"type"`
	MessageID int64     `json:"message_id"`
	DeletedBy string    `json:"deleted_by,omitempty"`
}
