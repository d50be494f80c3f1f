package zonechat

import (
	"errors"
	"fmt"

	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/protocol"
	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/session"
)

var (
	// ErrNoActiveZone rejects a send before any zone has been joined. The
	// message is not queued.
	ErrNoActiveZone = errors.New("zonechat: no active zone")

	// ErrRateLimited is the cause of a SendFailure refused by the limiter.
	ErrRateLimited = errors.New("zonechat: sending too fast")

	// ErrZoneChanged is the cause of a SendFailure whose zone was replaced
	// before the message was posted.
	ErrZoneChanged = errors.New("zonechat: zone changed before send")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("zonechat: controller closed")
)

// ConnectionError reports that the chat socket is not usable.
type ConnectionError struct {
	State     session.State
	Exhausted bool // reconnect attempts used up, manual Reconnect required
}

func (e *ConnectionError) Error() string {
	if e.Exhausted {
		return "zonechat: cannot connect to chat service"
	}
	return fmt.Sprintf("zonechat: not connected (%s)", e.State)
}

// SendFailure reports a message that did not reach the server. If an
// optimistic entry was inserted, TempID names it; it has been rolled back.
type SendFailure struct {
	TempID protocol.ID
	Err    error
}

func (e *SendFailure) Error() string {
	return "zonechat: failed to send message: " + e.Err.Error()
}

func (e *SendFailure) Unwrap() error {
	return e.Err
}
