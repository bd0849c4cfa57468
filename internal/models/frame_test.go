package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvelope(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected FrameType
		wantErr  bool
	}{
		{
			name:     "message frame",
			raw:      `{"type":"message","message":"hi","temp_id":123}`,
			expected: FrameMessage,
		},
		{
			name:     "typing frame",
			raw:      `{"type":"typing","is_typing":true}`,
			expected: FrameTyping,
		},
		{
			name:     "call frame",
			raw:      `{"type":"incoming_call","call_id":"abc"}`,
			expected: FrameIncomingCall,
		},
		{
			name:    "missing type",
			raw:     `{"message":"hi"}`,
			wantErr: true,
		},
		{
			name:    "malformed json",
			raw:     `{"type":`,
			wantErr: true,
		},
		{
			name:    "empty payload",
			raw:     ``,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft, err := ParseEnvelope([]byte(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ft)
		})
	}
}

func TestInboundMessageText(t *testing.T) {
	raw := `{"type":"file_message","message_id":7,"user_id":2,"username":"bob","content":"report.pdf","timestamp":"2025-06-01T10:00:00Z","file_url":"/media/report.pdf","file_name":"report.pdf","is_image":false}`

	var msg InboundMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))

	assert.Equal(t, FrameFileMessage, msg.Type)
	assert.Equal(t, "report.pdf", msg.Text())
	assert.Equal(t, int64(7), msg.MessageID)
	assert.False(t, msg.IsImage)

	msg.Message = "inline text"
	assert.Equal(t, "inline text", msg.Text())
}

func TestReactionFrameSnapshot(t *testing.T) {
	raw := `{"type":"reaction","message_id":42,"reactions":{"👍":[{"user_id":1,"username":"alice"},{"user_id":2,"username":"bob"}],"❤️":[{"user_id":3,"username":"carol"}]}}`

	var frame ReactionFrame
	require.NoError(t, json.Unmarshal([]byte(raw), &frame))

	assert.Equal(t, int64(42), frame.MessageID)
	assert.Len(t, frame.Reactions["👍"], 2)
	assert.Equal(t, "carol", frame.Reactions["❤️"][0].Username)
}

func TestEditFrameNewText(t *testing.T) {
	inbound := EditFrame{Type: FrameMessageEdit, MessageID: 5, NewContent: "fixed"}
	assert.Equal(t, "fixed", inbound.NewText())

	outbound := EditFrame{Type: FrameMessageEdit, MessageID: 5, Content: "fixed"}
	assert.Equal(t, "fixed", outbound.NewText())
}

func TestSessionClock(t *testing.T) {
	clock := NewSessionClock()
	assert.True(t, clock.StartedAt().IsZero())

	before := time.Now()
	clock.Reset()
	started := clock.StartedAt()
	assert.False(t, started.Before(before))
	assert.False(t, started.After(time.Now()))
}
