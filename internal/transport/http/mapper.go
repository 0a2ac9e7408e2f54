package http

import (
	"errors"

	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/proto"
)

func newMessageFrame(msg core.ChatMessage) proto.NewMessage {
	return proto.NewMessage{
		Type:      proto.TypeNewMessage,
		Username:  msg.Username,
		Content:   msg.Body,
		Timestamp: msg.CreatedAt,
		Seq:       msg.Seq,
	}
}

func historyFrame(msgs []core.ChatMessage) proto.History {
	frames := make([]proto.NewMessage, 0, len(msgs))
	for _, msg := range msgs {
		frames = append(frames, newMessageFrame(msg))
	}
	return proto.History{Type: proto.TypeHistory, Messages: frames}
}

// errorFrame converts any error into the client-facing Error frame.
// Errors outside the core taxonomy are reported without internal detail.
func errorFrame(err error) proto.Error {
	if ce, ok := core.AsCoreError(err); ok {
		return proto.Error{Type: proto.TypeError, Reason: ce.Message, Code: ce.Code}
	}
	return proto.Error{Type: proto.TypeError, Reason: "internal error", Code: "internal_error"}
}

// parseError maps inbound decoding failures to validation errors.
func parseError(err error) *core.CoreError {
	switch {
	case errors.Is(err, proto.ErrUnknownType):
		return core.ValidationError("unknown message type")
	case errors.Is(err, proto.ErrHistoryCount):
		return core.ValidationError("history count must be a positive number")
	default:
		return core.ValidationError("malformed message")
	}
}

func outboundFromEvent(event *core.Event) any {
	switch event.Kind {
	case core.EventNewMessage:
		return newMessageFrame(event.Message)
	case core.EventUserJoined:
		return proto.UserJoined{Type: proto.TypeUserJoined, Username: event.User}
	case core.EventUserLeft:
		return proto.UserLeft{Type: proto.TypeUserLeft, Username: event.User}
	case core.EventHistory:
		return historyFrame(event.Messages)
	case core.EventError:
		if event.Error == nil {
			return proto.Error{Type: proto.TypeError, Reason: "unknown error", Code: "unknown"}
		}
		return errorFrame(event.Error)
	default:
		return proto.Error{Type: proto.TypeError, Reason: "unknown event", Code: "unknown"}
	}
}
