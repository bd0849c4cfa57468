package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatwire/internal/errors"
	"chatwire/internal/models"
)

func newTestStore(t *testing.T) (*MessageStore, *fakeSender, *fakeAPI, *eventCollector) {
	t.Helper()
	sender := newFakeSender()
	api := &fakeAPI{}
	bus := NewEventBus(64, testLogger())
	collector := collectEvents(bus)
	store := NewMessageStore(1, "alice", sender, api, bus, testLogger())
	return store, sender, api, collector
}

func TestSendMessageOptimistic(t *testing.T) {
	store, sender, _, _ := newTestStore(t)

	tempID, err := store.SendMessage(context.Background(), "  hello  ")
	require.NoError(t, err)
	assert.NotZero(t, tempID)
	assert.Equal(t, 1, store.PendingCount())
	assert.True(t, store.HasSentThisSession())

	frame, ok := sender.lastFrame().(models.MessageFrame)
	require.True(t, ok)
	assert.Equal(t, "hello", frame.Message)
	assert.Equal(t, tempID, frame.TempID)
}

func TestSendMessageValidation(t *testing.T) {
	store, sender, _, _ := newTestStore(t)

	_, err := store.SendMessage(context.Background(), "   ")
	require.Error(t, err)
	assert.Empty(t, sender.sent())
	assert.False(t, store.HasSentThisSession())
}

func TestSendMessageFailureMarksFailed(t *testing.T) {
	store, sender, _, collector := newTestStore(t)
	sender.setErr(errors.New(errors.ErrCodeChannelClosed, "channel not ready"))

	tempID, err := store.SendMessage(context.Background(), "hello")
	require.Error(t, err)
	assert.NotZero(t, tempID)
	assert.Equal(t, 0, store.PendingCount())

	require.True(t, waitFor(time.Second, func() bool {
		return len(collector.ofKind(EventMessageFailed)) == 1
	}))
	failed := collector.ofKind(EventMessageFailed)[0].Payload.(FailedMessage)
	assert.Equal(t, tempID, failed.TempID)
	assert.Equal(t, "hello", failed.Content)
}

func TestOnSendFiresEverySend(t *testing.T) {
	store, _, _, _ := newTestStore(t)

	fired := 0
	store.OnSend(func() { fired++ })

	_, err := store.SendMessage(context.Background(), "first")
	require.NoError(t, err)
	_, err = store.SendMessage(context.Background(), "second")
	require.NoError(t, err)

	assert.Equal(t, 2, fired)
}

func TestSendFileMessageUploadsThenAnnounces(t *testing.T) {
	store, sender, api, _ := newTestStore(t)

	msgID, err := store.SendFileMessage(context.Background(), 5, "photo.png",
		strings.NewReader("PNGDATA"), "  look  ")
	require.NoError(t, err)
	assert.NotZero(t, msgID)
	assert.True(t, store.HasSentThisSession())
	assert.Equal(t, []string{"photo.png"}, api.uploads)

	frame, ok := sender.lastFrame().(models.FileMessageFrame)
	require.True(t, ok)
	assert.Equal(t, models.FrameFileMessage, frame.Type)
	assert.Equal(t, "look", frame.Message)
	assert.Equal(t, msgID, frame.MessageID)
	assert.Equal(t, "/media/chat_files/photo.png", frame.FileURL)
	assert.True(t, frame.IsImage)
}

func TestSendFileMessageUploadFailureSendsNothing(t *testing.T) {
	store, sender, api, _ := newTestStore(t)
	api.uploadErr = errors.New(errors.ErrCodePersistenceAPI, "file too large")

	_, err := store.SendFileMessage(context.Background(), 5, "big.bin",
		strings.NewReader("x"), "")
	require.Error(t, err)
	assert.Empty(t, sender.sent())
	assert.False(t, store.HasSentThisSession())
}

func TestConfirmResolvesPending(t *testing.T) {
	store, _, _, collector := newTestStore(t)

	tempID, err := store.SendMessage(context.Background(), "hello")
	require.NoError(t, err)

	store.ApplyInbound(&models.InboundMessage{
		Type:      models.FrameMessage,
		MessageID: 100,
		UserID:    1,
		Username:  "alice",
		Message:   "hello",
		Timestamp: time.Now(),
		Status:    "sent",
		TempID:    tempID,
	})

	assert.Equal(t, 0, store.PendingCount())
	msg, ok := store.Get(100)
	require.True(t, ok)
	assert.Equal(t, "hello", msg.Content)

	require.True(t, waitFor(time.Second, func() bool {
		return len(collector.ofKind(EventMessageNew)) == 1
	}))
	confirmed := collector.ofKind(EventMessageNew)[0].Payload.(ConfirmedMessage)
	assert.Equal(t, tempID, confirmed.TempID)
}

func TestInboundFromOtherUser(t *testing.T) {
	store, _, _, _ := newTestStore(t)

	store.ApplyInbound(&models.InboundMessage{
		Type:      models.FrameMessage,
		MessageID: 200,
		UserID:    2,
		Username:  "bob",
		Message:   "hi alice",
		Timestamp: time.Now(),
	})

	msg, ok := store.Get(200)
	require.True(t, ok)
	assert.Equal(t, "bob", msg.Username)
	assert.Equal(t, models.DeliveryStatusSent, msg.Status, "missing status defaults to sent")
	assert.Equal(t, 0, store.PendingCount())
}

func TestInboundFileMessage(t *testing.T) {
	store, _, _, _ := newTestStore(t)

	store.ApplyInbound(&models.InboundMessage{
		Type:      models.FrameFileMessage,
		MessageID: 201,
		UserID:    2,
		Username:  "bob",
		Content:   "report.pdf",
		Timestamp: time.Now(),
		FileURL:   "/media/report.pdf",
		FileName:  "report.pdf",
		FileSize:  "1.2 MB",
		IsImage:   false,
	})

	msg, ok := store.Get(201)
	require.True(t, ok)
	require.NotNil(t, msg.File)
	assert.Equal(t, "/media/report.pdf", msg.File.URL)
	assert.Equal(t, "report.pdf", msg.Content)
}

func TestApplyStatus(t *testing.T) {
	store, _, _, _ := newTestStore(t)
	store.ApplyInbound(&models.InboundMessage{MessageID: 100, UserID: 2, Timestamp: time.Now()})

	store.ApplyStatus(100, models.DeliveryStatusRead)

	msg, _ := store.Get(100)
	assert.Equal(t, models.DeliveryStatusRead, msg.Status)

	// unknown message is a no-op
	store.ApplyStatus(999, models.DeliveryStatusRead)
}

func TestApplyReactionsSnapshot(t *testing.T) {
	store, _, _, _ := newTestStore(t)
	store.ApplyInbound(&models.InboundMessage{MessageID: 100, UserID: 2, Timestamp: time.Now()})

	store.ApplyReactions(100, map[string][]models.Reactor{
		"👍": {{UserID: 2, Username: "bob"}},
	})
	store.ApplyReactions(100, map[string][]models.Reactor{
		"❤️": {{UserID: 3, Username: "carol"}},
	})

	msg, _ := store.Get(100)
	assert.Len(t, msg.Reactions, 1, "snapshots replace, not merge")
	assert.Contains(t, msg.Reactions, "❤️")
}

func TestSendReaction(t *testing.T) {
	store, sender, _, _ := newTestStore(t)

	require.NoError(t, store.SendReaction(context.Background(), 100, "👍"))

	frame, ok := sender.lastFrame().(models.SendReactionFrame)
	require.True(t, ok)
	assert.Equal(t, "add", frame.Action)
	assert.Equal(t, "👍", frame.Emoji)

	assert.Error(t, store.SendReaction(context.Background(), 0, "👍"))
	assert.Error(t, store.SendReaction(context.Background(), 100, ""))
}

func TestEditMessagePersistsFirst(t *testing.T) {
	store, sender, api, _ := newTestStore(t)
	store.ApplyInbound(&models.InboundMessage{MessageID: 100, UserID: 1, Message: "original", Timestamp: time.Now()})

	require.NoError(t, store.EditMessage(context.Background(), 100, "fixed"))

	assert.Equal(t, []int64{100}, api.edits)
	msg, _ := store.Get(100)
	assert.Equal(t, "fixed", msg.Content)
	assert.True(t, msg.Edited)

	frame, ok := sender.lastFrame().(models.EditFrame)
	require.True(t, ok)
	assert.Equal(t, "fixed", frame.Content)
}

func TestEditMessageAPIFailureLeavesLocalUntouched(t *testing.T) {
	store, sender, api, _ := newTestStore(t)
	store.ApplyInbound(&models.InboundMessage{MessageID: 100, UserID: 1, Message: "original", Timestamp: time.Now()})
	api.editErr = errors.NewPersistenceError("/edit-message/100/", 500, assert.AnError)

	require.Error(t, store.EditMessage(context.Background(), 100, "fixed"))

	msg, _ := store.Get(100)
	assert.Equal(t, "original", msg.Content)
	assert.False(t, msg.Edited)
	assert.Empty(t, sender.sent())
}

func TestEditMessageAuthorization(t *testing.T) {
	store, _, _, _ := newTestStore(t)
	store.ApplyInbound(&models.InboundMessage{MessageID: 100, UserID: 2, Message: "bob's", Timestamp: time.Now()})

	err := store.EditMessage(context.Background(), 100, "hijack")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeAuthorization, errors.GetCode(err))

	err = store.EditMessage(context.Background(), 999, "ghost")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNotFound, errors.GetCode(err))
}

func TestDeleteMessageTombstone(t *testing.T) {
	store, sender, api, _ := newTestStore(t)
	store.ApplyInbound(&models.InboundMessage{MessageID: 100, UserID: 1, Message: "secret", Timestamp: time.Now()})

	require.NoError(t, store.DeleteMessage(context.Background(), 100))

	assert.Equal(t, []int64{100}, api.deletes)
	msg, ok := store.Get(100)
	require.True(t, ok, "deletion tombstones, it does not remove")
	assert.True(t, msg.Deleted)
	assert.Empty(t, msg.Content)

	_, ok = sender.lastFrame().(models.DeleteFrame)
	assert.True(t, ok)
}

func TestApplyEditAndDeleteFromChannel(t *testing.T) {
	store, _, _, _ := newTestStore(t)
	store.ApplyInbound(&models.InboundMessage{MessageID: 100, UserID: 2, Message: "hi", Timestamp: time.Now()})

	store.ApplyEdit(100, "hi there")
	msg, _ := store.Get(100)
	assert.Equal(t, "hi there", msg.Content)
	assert.True(t, msg.Edited)

	store.ApplyDelete(100)
	msg, _ = store.Get(100)
	assert.True(t, msg.Deleted)
}

func TestRepeatedIdenticalEditPublishesOnce(t *testing.T) {
	store, _, _, collector := newTestStore(t)
	store.ApplyInbound(&models.InboundMessage{MessageID: 100, UserID: 2, Message: "original", Timestamp: time.Now()})

	store.ApplyEdit(100, "fixed")
	store.ApplyEdit(100, "fixed")

	require.True(t, waitFor(time.Second, func() bool {
		return len(collector.ofKind(EventMessageUpdated)) == 1
	}))
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, collector.ofKind(EventMessageUpdated), 1, "identical edit is not re-announced")

	msg, _ := store.Get(100)
	assert.Equal(t, "fixed", msg.Content)
	assert.True(t, msg.Edited)
}

func TestMessagesOrderedByTimestamp(t *testing.T) {
	store, _, _, _ := newTestStore(t)
	base := time.Now()

	store.ApplyInbound(&models.InboundMessage{MessageID: 2, UserID: 2, Message: "second", Timestamp: base.Add(time.Second)})
	store.ApplyInbound(&models.InboundMessage{MessageID: 1, UserID: 2, Message: "first", Timestamp: base})

	msgs := store.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)
}

func TestPendingOlderThan(t *testing.T) {
	store, _, _, _ := newTestStore(t)

	tempID, err := store.SendMessage(context.Background(), "hello")
	require.NoError(t, err)

	assert.Empty(t, store.PendingOlderThan(time.Now().Add(-time.Minute)))
	stale := store.PendingOlderThan(time.Now().Add(time.Minute))
	require.Len(t, stale, 1)
	assert.Equal(t, tempID, stale[0].TempID)
}

func TestTempIDsMonotonic(t *testing.T) {
	store, _, _, _ := newTestStore(t)

	var last int64
	for i := 0; i < 5; i++ {
		id, err := store.SendMessage(context.Background(), "msg")
		require.NoError(t, err)
		assert.Greater(t, id, last)
		last = id
	}
}
