package service

import (
	"context"
	"fmt"

	"chatwire/internal/constants"

	"github.com/sirupsen/logrus"
)

// ContextKey is a package-local type to prevent context key collisions
type ContextKey string

// VerboseContextKey is the strongly-typed context key for verbose logging flag
const VerboseContextKey ContextKey = "verbose"

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// SanitizeContent completely hides message content for privacy
func SanitizeContent(content string) string {
	if content == "" {
		return ""
	}
	return "[hidden]"
}

// SanitizeCallID shortens call IDs in logs
func SanitizeCallID(callID string) string {
	if callID == "" {
		return ""
	}
	if len(callID) > constants.DefaultMessageIDLength {
		return callID[:constants.DefaultMessageIDLength] + "..."
	}
	return callID
}

// SanitizeUserID masks a user ID unless verbose logging is on
func SanitizeUserID(userID int64) string {
	return fmt.Sprintf("user_%d", userID%1000)
}

// LogWithContext creates a logger entry with optional sensitive information
func LogWithContext(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	return logger.WithField("verbose", IsVerboseLogging(ctx))
}

// LogFrameProcessing logs inbound frame handling with privacy controls
func LogFrameProcessing(ctx context.Context, logger *logrus.Logger, stream, frameType string, sender int64, content string) {
	if IsVerboseLogging(ctx) {
		logger.WithFields(logrus.Fields{
			"stream":  stream,
			"type":    frameType,
			"sender":  sender,
			"content": content,
		}).Info("Processing frame")
	} else {
		logger.WithFields(logrus.Fields{
			"stream": stream,
			"type":   frameType,
			"sender": SanitizeUserID(sender),
		}).Info("Processing frame")
	}
}
