package service

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"chatwire/internal/errors"
	"chatwire/internal/metrics"
	"chatwire/internal/models"
	"chatwire/internal/validation"
	"chatwire/pkg/chatapi"
)

// Sender writes frames to a channel. Satisfied by ChannelManager.
type Sender interface {
	Send(ctx context.Context, payload interface{}) error
	Ready() bool
}

// ConfirmedMessage pairs a confirmed message with the optimistic temp ID
// it replaces. TempID is zero for messages from other participants.
type ConfirmedMessage struct {
	TempID  int64
	Message models.ChatMessage
}

// FailedMessage reports an optimistic message that could not be sent.
type FailedMessage struct {
	TempID  int64
	Content string
	Reason  string
}

// MessageStore keeps the local view of a conversation. Outbound messages
// are rendered optimistically under a temp ID and reconciled when the
// server echoes them back. Edits and deletions go to the persistence API
// first; only a successful response is fanned out over the channel.
type MessageStore struct {
	userID   int64
	username string
	channel  Sender
	api      chatapi.Client
	bus      *EventBus
	logger   *logrus.Logger

	mu         sync.Mutex
	messages   map[int64]*models.ChatMessage
	order      []int64
	pending    map[int64]*models.PendingMessage
	lastTempID int64
	sentCount  int64
	onSend     func()
}

// NewMessageStore creates an empty store for the local user.
func NewMessageStore(userID int64, username string, channel Sender, api chatapi.Client, bus *EventBus, logger *logrus.Logger) *MessageStore {
	return &MessageStore{
		userID:   userID,
		username: username,
		channel:  channel,
		api:      api,
		bus:      bus,
		logger:   logger,
		messages: make(map[int64]*models.ChatMessage),
		pending:  make(map[int64]*models.PendingMessage),
	}
}

// SendMessage validates and sends a text message, rendering it
// optimistically first. Returns the temp ID of the pending message.
func (s *MessageStore) SendMessage(ctx context.Context, content string) (int64, error) {
	if err := validation.ValidateMessageContent(content); err != nil {
		return 0, err
	}
	content = strings.TrimSpace(content)

	tempID := s.nextTempID()
	pending := &models.PendingMessage{
		TempID:    tempID,
		Content:   content,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.pending[tempID] = pending
	pendingCount := len(s.pending)
	s.mu.Unlock()

	metrics.SetGauge("pending_messages", float64(pendingCount), nil, "optimistic messages awaiting confirmation")
	s.bus.Publish(EventMessagePending, *pending)

	frame := models.MessageFrame{
		Type:    models.FrameMessage,
		Message: content,
		TempID:  tempID,
	}
	if err := s.channel.Send(ctx, frame); err != nil {
		s.MarkFailed(tempID, "send failed")
		return tempID, err
	}

	s.mu.Lock()
	s.sentCount++
	hook := s.onSend
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return tempID, nil
}

// SendFileMessage uploads a file through the persistence API, then
// announces it over the channel with the metadata the server returned.
// The caption may be empty for a file-only message. Returns the
// confirmed message ID.
func (s *MessageStore) SendFileMessage(ctx context.Context, conversationID int64, fileName string, file io.Reader, caption string) (int64, error) {
	caption = strings.TrimSpace(caption)
	if caption != "" {
		if err := validation.ValidateMessageContent(caption); err != nil {
			return 0, err
		}
	}

	resp, err := s.api.UploadFile(ctx, conversationID, fileName, file, caption)
	if err != nil {
		s.logger.WithError(err).WithField("file_name", fileName).Warn("File upload rejected")
		return 0, err
	}

	frame := models.FileMessageFrame{
		Type:      models.FrameFileMessage,
		Message:   caption,
		MessageID: resp.MessageID,
		FileName:  resp.FileName,
		FileURL:   resp.FileURL,
		FileSize:  resp.FileSize,
		IsImage:   resp.IsImage,
	}
	if err := s.channel.Send(ctx, frame); err != nil {
		// The upload is already persisted; other clients catch up from
		// the server even if the announce frame is lost.
		s.logger.WithError(err).WithField("message_id", resp.MessageID).Warn("File announce frame dropped")
	}

	s.mu.Lock()
	s.sentCount++
	hook := s.onSend
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return resp.MessageID, nil
}

// OnSend registers a hook fired after every successful send. Used to arm
// the notification gate.
func (s *MessageStore) OnSend(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSend = fn
}

// HasSentThisSession reports whether the local user has sent at least one
// message since startup.
func (s *MessageStore) HasSentThisSession() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sentCount > 0
}

// ApplyInbound reconciles a confirmed message from the server. A frame
// carrying the local user's temp ID resolves the matching pending entry.
func (s *MessageStore) ApplyInbound(msg *models.InboundMessage) {
	chatMsg := &models.ChatMessage{
		ID:        msg.MessageID,
		UserID:    msg.UserID,
		Username:  msg.Username,
		Content:   msg.Text(),
		Timestamp: msg.Timestamp,
		Status:    models.DeliveryStatus(msg.Status),
	}
	if chatMsg.Status == "" {
		chatMsg.Status = models.DeliveryStatusSent
	}
	if msg.FileURL != "" {
		chatMsg.File = &models.FileRef{
			URL:     msg.FileURL,
			Name:    msg.FileName,
			Size:    msg.FileSize,
			Icon:    msg.FileIcon,
			IsImage: msg.IsImage,
		}
	}

	var tempID int64
	s.mu.Lock()
	if msg.TempID != 0 && msg.UserID == s.userID {
		if _, ok := s.pending[msg.TempID]; ok {
			delete(s.pending, msg.TempID)
			tempID = msg.TempID
		}
	}
	if _, exists := s.messages[msg.MessageID]; !exists {
		s.order = append(s.order, msg.MessageID)
	}
	s.messages[msg.MessageID] = chatMsg
	pendingCount := len(s.pending)
	s.mu.Unlock()

	metrics.SetGauge("pending_messages", float64(pendingCount), nil, "optimistic messages awaiting confirmation")
	s.bus.Publish(EventMessageNew, ConfirmedMessage{TempID: tempID, Message: *chatMsg})
}

// ApplyStatus records a delivery-status transition.
func (s *MessageStore) ApplyStatus(messageID int64, status models.DeliveryStatus) {
	s.mu.Lock()
	msg, ok := s.messages[messageID]
	if ok {
		msg.Status = status
	}
	s.mu.Unlock()

	if ok {
		s.bus.Publish(EventMessageUpdated, *msg)
	}
}

// ApplyReactions replaces a message's reaction state with the server
// snapshot. Last write wins, there is no local merging.
func (s *MessageStore) ApplyReactions(messageID int64, reactions map[string][]models.Reactor) {
	s.mu.Lock()
	msg, ok := s.messages[messageID]
	if ok {
		msg.Reactions = reactions
	}
	s.mu.Unlock()

	if ok {
		s.bus.Publish(EventMessageUpdated, *msg)
	}
}

// SendReaction sends a reaction toggle for a message.
func (s *MessageStore) SendReaction(ctx context.Context, messageID int64, emoji string) error {
	if err := validation.ValidateMessageID(messageID); err != nil {
		return err
	}
	if err := validation.ValidateEmoji(emoji); err != nil {
		return err
	}

	return s.channel.Send(ctx, models.SendReactionFrame{
		Type:      models.FrameMessageReaction,
		MessageID: messageID,
		Emoji:     emoji,
		Action:    "add",
	})
}

// EditMessage edits one of the local user's messages. The persistence API
// is consulted first; the local view is only updated, and the edit fanned
// out over the channel, once the server accepts it.
func (s *MessageStore) EditMessage(ctx context.Context, messageID int64, newContent string) error {
	if err := validation.ValidateMessageContent(newContent); err != nil {
		return err
	}
	newContent = strings.TrimSpace(newContent)

	s.mu.Lock()
	msg, ok := s.messages[messageID]
	if !ok {
		s.mu.Unlock()
		return errors.NewNotFoundError("message", "")
	}
	if msg.UserID != s.userID {
		s.mu.Unlock()
		return errors.New(errors.ErrCodeAuthorization, "cannot edit another user's message")
	}
	s.mu.Unlock()

	if _, err := s.api.EditMessage(ctx, messageID, newContent); err != nil {
		s.logger.WithError(err).WithField("message_id", messageID).Warn("Message edit rejected")
		return err
	}

	s.applyEdit(messageID, newContent)

	frame := models.EditFrame{
		Type:      models.FrameMessageEdit,
		MessageID: messageID,
		Content:   newContent,
	}
	if err := s.channel.Send(ctx, frame); err != nil {
		// The edit is already persisted; other clients catch up from the
		// server even if this fanout frame is lost.
		s.logger.WithError(err).WithField("message_id", messageID).Warn("Edit fanout frame dropped")
	}
	return nil
}

// ApplyEdit records an edit received over the channel.
func (s *MessageStore) ApplyEdit(messageID int64, newContent string) {
	s.applyEdit(messageID, newContent)
}

func (s *MessageStore) applyEdit(messageID int64, newContent string) {
	s.mu.Lock()
	msg, ok := s.messages[messageID]
	changed := ok && (msg.Content != newContent || !msg.Edited)
	var copied models.ChatMessage
	if changed {
		msg.Content = newContent
		msg.Edited = true
		copied = *msg
	}
	s.mu.Unlock()

	if changed {
		s.bus.Publish(EventMessageUpdated, copied)
	}
}

// DeleteMessage deletes one of the local user's messages. Deletion is a
// tombstone, the entry stays in the timeline.
func (s *MessageStore) DeleteMessage(ctx context.Context, messageID int64) error {
	s.mu.Lock()
	msg, ok := s.messages[messageID]
	if !ok {
		s.mu.Unlock()
		return errors.NewNotFoundError("message", "")
	}
	if msg.UserID != s.userID {
		s.mu.Unlock()
		return errors.New(errors.ErrCodeAuthorization, "cannot delete another user's message")
	}
	s.mu.Unlock()

	if _, err := s.api.DeleteMessage(ctx, messageID); err != nil {
		s.logger.WithError(err).WithField("message_id", messageID).Warn("Message delete rejected")
		return err
	}

	s.applyDelete(messageID)

	frame := models.DeleteFrame{
		Type:      models.FrameMessageDelete,
		MessageID: messageID,
	}
	if err := s.channel.Send(ctx, frame); err != nil {
		s.logger.WithError(err).WithField("message_id", messageID).Warn("Delete fanout frame dropped")
	}
	return nil
}

// ApplyDelete records a deletion received over the channel.
func (s *MessageStore) ApplyDelete(messageID int64) {
	s.applyDelete(messageID)
}

func (s *MessageStore) applyDelete(messageID int64) {
	s.mu.Lock()
	msg, ok := s.messages[messageID]
	if ok {
		msg.Deleted = true
		msg.Content = ""
		msg.Reactions = nil
	}
	s.mu.Unlock()

	if ok {
		s.bus.Publish(EventMessageUpdated, *msg)
	}
}

// MarkFailed marks a pending message as failed and publishes the failure.
func (s *MessageStore) MarkFailed(tempID int64, reason string) {
	s.mu.Lock()
	pending, ok := s.pending[tempID]
	if ok {
		delete(s.pending, tempID)
	}
	pendingCount := len(s.pending)
	s.mu.Unlock()

	if !ok {
		return
	}

	metrics.SetGauge("pending_messages", float64(pendingCount), nil, "optimistic messages awaiting confirmation")
	metrics.IncrementCounter("messages_failed", nil, "optimistic messages that never confirmed")
	s.bus.Publish(EventMessageFailed, FailedMessage{
		TempID:  tempID,
		Content: pending.Content,
		Reason:  reason,
	})
}

// PendingOlderThan returns pending messages created before the cutoff.
func (s *MessageStore) PendingOlderThan(cutoff time.Time) []models.PendingMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []models.PendingMessage
	for _, p := range s.pending {
		if p.CreatedAt.Before(cutoff) {
			stale = append(stale, *p)
		}
	}
	return stale
}

// PendingCount returns the number of unconfirmed messages.
func (s *MessageStore) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Messages returns the confirmed messages in timeline order.
func (s *MessageStore) Messages() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.ChatMessage, 0, len(s.order))
	for _, id := range s.order {
		if msg, ok := s.messages[id]; ok {
			out = append(out, *msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Get returns a confirmed message by ID.
func (s *MessageStore) Get(messageID int64) (models.ChatMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := s.messages[messageID]; ok {
		return *msg, true
	}
	return models.ChatMessage{}, false
}

// nextTempID returns a strictly increasing millisecond-based temp ID so
// rapid sends in the same millisecond stay distinct.
func (s *MessageStore) nextTempID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := time.Now().UnixMilli()
	if id <= s.lastTempID {
		id = s.lastTempID + 1
	}
	s.lastTempID = id
	return id
}
