package ws

import (
	"go.uber.org/zap"

	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/protocol"
)

// MessageHandler is the callback signature for a parsed server event. The msg
// parameter is the concrete struct returned by protocol.ParseServerMessage
// (e.g., protocol.UsersUpdateMsg, protocol.NewLocationMessageMsg).
type MessageHandler func(msg interface{})

// MessageDispatcher routes server events to registered handlers based on the
// event type. Handlers run on the caller's goroutine, so a single consumer of
// Socket.Events gets serialized handler execution.
type MessageDispatcher struct {
	handlers map[string]MessageHandler
	logger   *zap.Logger
}

// NewMessageDispatcher creates an empty MessageDispatcher.
func NewMessageDispatcher(logger *zap.Logger) *MessageDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageDispatcher{
		handlers: make(map[string]MessageHandler),
		logger:   logger.Named("dispatch"),
	}
}

// Register associates a MessageHandler with an event type. If a handler was
// already registered for the type, it is replaced.
func (d *MessageDispatcher) Register(msgType string, handler MessageHandler) {
	d.handlers[msgType] = handler
}

// Reset detaches every handler.
func (d *MessageDispatcher) Reset() {
	d.handlers = make(map[string]MessageHandler)
}

// Dispatch parses a raw frame and routes it. Parse errors and unregistered
// types are logged and dropped; it reports whether a handler ran.
func (d *MessageDispatcher) Dispatch(data []byte) bool {
	msgType, msg, err := protocol.ParseServerMessage(data)
	if err != nil {
		d.logger.Warn("dispatch parse error", zap.String("type", msgType), zap.Error(err))
		return false
	}

	handler, ok := d.handlers[msgType]
	if !ok {
		d.logger.Debug("no handler", zap.String("type", msgType))
		return false
	}

	handler(msg)
	return true
}
