package errors

import (
	"context"
	"fmt"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	traceIDKey   contextKey = "trace_id"
	userIDKey    contextKey = "user_id"
	streamKey    contextKey = "stream"
)

// Common error creators for frequent use cases

// NewValidationError creates a validation error with field context
func NewValidationError(field, value, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithContext("value", value).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewTransportError creates a retryable channel transport error
func NewTransportError(stream string, err error) *AppError {
	return WrapRetryable(err, ErrCodeTransport, "channel transport failure").
		WithContext("stream", stream).
		WithUserMessage("Connection lost, reconnecting")
}

// NewAuthError creates an authentication error. Auth failures are terminal
// for the channel, never retryable.
func NewAuthError(reason string) *AppError {
	return New(ErrCodeAuthentication, "authentication failed").
		WithContext("reason", reason).
		WithUserMessage("Authentication failed")
}

// NewParseError creates a protocol parse error for an undecodable frame
func NewParseError(stream string, err error) *AppError {
	return Wrap(err, ErrCodeProtocolParse, "undecodable frame").
		WithContext("stream", stream)
}

// NewPersistenceError creates an API error for the chat persistence service
func NewPersistenceError(endpoint string, statusCode int, err error) *AppError {
	appErr := Wrap(err, ErrCodePersistenceAPI, "persistence API call failed").
		WithContext("endpoint", endpoint).
		WithContext("status_code", statusCode).
		WithUserMessage("Server request failed")

	// 5xx and throttling responses are worth retrying
	if statusCode >= 500 || statusCode == 429 || statusCode == 408 {
		appErr.Retryable = true
	}

	return appErr
}

// NewMediaError creates a media acquisition error for call setup
func NewMediaError(kind string, err error) *AppError {
	return Wrap(err, ErrCodeMediaAcquisition, fmt.Sprintf("%s capture failed", kind)).
		WithContext("media_kind", kind).
		WithUserMessage("Could not access camera or microphone")
}

// NewCallStateError creates an error for a call operation attempted in the
// wrong phase
func NewCallStateError(operation, phase string) *AppError {
	return New(ErrCodeCallState, fmt.Sprintf("%s not allowed in phase %s", operation, phase)).
		WithContext("operation", operation).
		WithContext("phase", phase)
}

// NewTimeoutError creates a timeout error with context
func NewTimeoutError(operation string, duration string) *AppError {
	return New(ErrCodeTimeout, fmt.Sprintf("%s timed out after %s", operation, duration)).
		WithContext("operation", operation).
		WithContext("timeout", duration).
		WithUserMessage("Operation timed out, please try again")
}

// NewNotFoundError creates a not found error with resource context
func NewNotFoundError(resource, identifier string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithContext("resource", resource).
		WithContext("identifier", identifier).
		WithUserMessage(fmt.Sprintf("%s not found", resource))
}

// Context helpers

// FromContext extracts error context from a context.Context if present
func FromContext(ctx context.Context) map[string]interface{} {
	if ctx == nil {
		return nil
	}

	errorCtx := make(map[string]interface{})

	if requestID := ctx.Value(requestIDKey); requestID != nil {
		errorCtx["request_id"] = requestID
	}
	if traceID := ctx.Value(traceIDKey); traceID != nil {
		errorCtx["trace_id"] = traceID
	}
	if userID := ctx.Value(userIDKey); userID != nil {
		errorCtx["user_id"] = userID
	}
	if stream := ctx.Value(streamKey); stream != nil {
		errorCtx["stream"] = stream
	}

	return errorCtx
}

// WithContextFromRequest adds request context to an error
func WithContextFromRequest(err *AppError, ctx context.Context) *AppError {
	if err == nil || ctx == nil {
		return err
	}

	contextMap := FromContext(ctx)
	for k, v := range contextMap {
		err = err.WithContext(k, v)
	}

	return err
}
