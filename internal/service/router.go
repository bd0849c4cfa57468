package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"chatwire/internal/errors"
	"chatwire/internal/metrics"
	"chatwire/internal/models"
	"chatwire/internal/tracing"
	"chatwire/internal/validation"
)

// Router classifies inbound frames and dispatches them to the owning
// component. A frame that fails to decode is logged and dropped; the
// stream keeps flowing.
type Router struct {
	store  *MessageStore
	typing *TypingCoordinator
	gate   *NotificationGate
	calls  *CallEngine
	logger *logrus.Logger
}

// NewRouter wires the dispatch targets together.
func NewRouter(store *MessageStore, typing *TypingCoordinator, gate *NotificationGate, calls *CallEngine, logger *logrus.Logger) *Router {
	return &Router{
		store:  store,
		typing: typing,
		gate:   gate,
		calls:  calls,
		logger: logger,
	}
}

// ConversationHandler returns the handler for the conversation stream.
func (r *Router) ConversationHandler() FrameHandler {
	return func(ctx context.Context, data []byte) {
		r.dispatch(ctx, "conversation", data)
	}
}

// UserHandler returns the handler for the user notification stream.
func (r *Router) UserHandler() FrameHandler {
	return func(ctx context.Context, data []byte) {
		r.dispatch(ctx, "user", data)
	}
}

func (r *Router) dispatch(ctx context.Context, stream string, data []byte) {
	start := time.Now()

	if err := validation.ValidateFrameSize(data); err != nil {
		r.drop(stream, "", err)
		return
	}

	frameType, err := models.ParseEnvelope(data)
	if err != nil {
		r.drop(stream, "", errors.NewParseError(stream, err))
		return
	}

	spanCtx, span := tracing.StartSpan(ctx, "frame.dispatch",
		tracing.FrameAttributes(stream, string(frameType))...)
	defer span.End()

	metrics.IncrementCounter("frames_dispatched",
		map[string]string{"stream": stream, "type": string(frameType)}, "frames routed by type")

	switch frameType {
	case models.FrameMessage, models.FrameFileMessage:
		r.handleMessage(spanCtx, stream, data)
	case models.FrameTyping:
		decodeAnd(r, stream, data, func(f *models.TypingFrame) { r.typing.ApplyTyping(f) })
	case models.FrameUserStatus:
		decodeAnd(r, stream, data, func(f *models.UserStatusFrame) { r.typing.ApplyUserStatus(f) })
	case models.FrameMessageStatus:
		decodeAnd(r, stream, data, func(f *models.MessageStatusFrame) {
			r.store.ApplyStatus(f.MessageID, f.Status)
		})
	case models.FrameReaction:
		decodeAnd(r, stream, data, func(f *models.ReactionFrame) {
			r.store.ApplyReactions(f.MessageID, f.Reactions)
		})
	case models.FrameMessageEdit:
		decodeAnd(r, stream, data, func(f *models.EditFrame) {
			r.store.ApplyEdit(f.MessageID, f.NewText())
		})
	case models.FrameMessageDelete:
		decodeAnd(r, stream, data, func(f *models.DeleteFrame) { r.store.ApplyDelete(f.MessageID) })
	case models.FrameIncomingCall:
		decodeAnd(r, stream, data, func(f *models.IncomingCallFrame) {
			r.calls.HandleIncomingCall(spanCtx, f)
		})
	case models.FrameCallAccepted:
		decodeAnd(r, stream, data, func(f *models.CallControlFrame) {
			r.calls.HandleCallAccepted(spanCtx, f)
		})
	case models.FrameCallRejected:
		decodeAnd(r, stream, data, func(f *models.CallControlFrame) { r.calls.HandleCallRejected(f) })
	case models.FrameCallEnded:
		decodeAnd(r, stream, data, func(f *models.CallControlFrame) { r.calls.HandleCallEnded(f) })
	case models.FrameWebRTCOffer:
		decodeAnd(r, stream, data, func(f *models.SignalFrame) { r.calls.HandleOffer(spanCtx, f) })
	case models.FrameWebRTCAnswer:
		decodeAnd(r, stream, data, func(f *models.SignalFrame) { r.calls.HandleAnswer(spanCtx, f) })
	case models.FrameWebRTCCandidate:
		decodeAnd(r, stream, data, func(f *models.SignalFrame) { r.calls.HandleICECandidate(f) })
	default:
		metrics.IncrementCounter("frames_unknown",
			map[string]string{"stream": stream, "type": string(frameType)}, "frames with unrecognized type")
		r.logger.WithFields(logrus.Fields{
			"stream": stream,
			"type":   frameType,
		}).Debug("Ignoring unknown frame type")
	}

	metrics.RecordTimer("frame_dispatch", time.Since(start),
		map[string]string{"stream": stream}, "frame dispatch latency")
}

func (r *Router) handleMessage(ctx context.Context, stream string, data []byte) {
	var msg models.InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		r.drop(stream, string(models.FrameMessage), errors.NewParseError(stream, err))
		return
	}

	LogFrameProcessing(ctx, r.logger, stream, string(msg.Type), msg.UserID, SanitizeContent(msg.Text()))
	r.store.ApplyInbound(&msg)
	r.gate.Offer(&msg)
}

func (r *Router) drop(stream, frameType string, err error) {
	metrics.IncrementCounter("frames_dropped",
		map[string]string{"stream": stream}, "undecodable frames dropped")
	r.logger.WithError(err).WithFields(logrus.Fields{
		"stream": stream,
		"type":   frameType,
	}).Warn("Dropping undecodable frame")
}

// decodeAnd unmarshals a frame into T and runs fn, dropping the frame on
// decode failure.
func decodeAnd[T any](r *Router, stream string, data []byte, fn func(*T)) {
	var frame T
	if err := json.Unmarshal(data, &frame); err != nil {
		r.drop(stream, "", errors.NewParseError(stream, err))
		return
	}
	fn(&frame)
}
