package models

import "time"

// DeliveryStatus tracks how far a message has progressed toward the
// other participants.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusSent      DeliveryStatus = "sent"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusRead      DeliveryStatus = "read"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// PendingMessage is an optimistic message rendered locally before the
// server confirms it. TempID is the local correlation key echoed back by
// the server in the confirming frame.
type PendingMessage struct {
	TempID    int64
	Content   string
	CreatedAt time.Time
}

// FileRef describes an attachment on a confirmed message.
type FileRef struct {
	URL     string
	Name    string
	Size    string
	Icon    string
	IsImage bool
}

// ChatMessage is a confirmed message in the local conversation view.
type ChatMessage struct {
	ID        int64
	UserID    int64
	Username  string
	Content   string
	Timestamp time.Time
	Status    DeliveryStatus
	Edited    bool
	Deleted   bool
	File      *FileRef
	Reactions map[string][]Reactor
}

// Own reports whether the message was authored by the given user.
func (m *ChatMessage) Own(userID int64) bool {
	return m.UserID == userID
}
