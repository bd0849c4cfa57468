package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"chatwire/internal/constants"
	"chatwire/internal/errors"
)

// ValidateMessageContent validates outbound message text. Content is
// trimmed before validation, matching what the server persists.
func ValidateMessageContent(content string) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return errors.New(errors.ErrCodeInvalidInput, "message content cannot be empty")
	}

	if utf8.RuneCountInString(trimmed) > constants.MaxMessageRunes {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("message too long (max %d characters)", constants.MaxMessageRunes))
	}

	return nil
}

// ValidateEmoji validates a reaction emoji payload. Anything short and
// non-empty is accepted, the server owns the allowed set.
func ValidateEmoji(emoji string) error {
	if emoji == "" {
		return errors.New(errors.ErrCodeInvalidInput, "emoji cannot be empty")
	}

	if utf8.RuneCountInString(emoji) > 8 {
		return errors.New(errors.ErrCodeInvalidInput, "emoji payload too long")
	}

	return nil
}

// ValidateMessageID validates a server message identifier.
func ValidateMessageID(messageID int64) error {
	if messageID <= 0 {
		return errors.New(errors.ErrCodeInvalidInput, "message ID must be positive")
	}
	return nil
}

// ValidateFrameSize validates an inbound frame against the read limit.
func ValidateFrameSize(data []byte) error {
	if len(data) == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "empty frame")
	}

	if len(data) > constants.MaxInboundFrameBytes {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("frame too large: %d bytes (max %d bytes)", len(data), constants.MaxInboundFrameBytes))
	}

	return nil
}

// ValidateCallID validates a call identifier received in a signaling frame.
func ValidateCallID(callID string) error {
	if callID == "" {
		return errors.New(errors.ErrCodeInvalidInput, "call ID cannot be empty")
	}

	if len(callID) > 64 {
		return errors.New(errors.ErrCodeInvalidInput, "call ID too long (max 64 characters)")
	}

	for _, char := range callID {
		if char == '\x00' || char == '\n' || char == '\r' || char == '\t' {
			return errors.New(errors.ErrCodeInvalidInput, "call ID contains invalid characters")
		}
	}

	return nil
}
