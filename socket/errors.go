package socket

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by Emit and room operations outside the
	// connected state.
	ErrNotConnected = errors.New("socket: not connected")

	ErrInvalidEventName    = errors.New("socket: invalid event name")
	ErrInvalidPayloadShape = errors.New("socket: payload must be a JSON object or array")
	ErrInvalidRoom         = errors.New("socket: invalid room name")

	// Inbound rejections, delivered through the error event.
	ErrInvalidPayload      = errors.New("socket: inbound payload is not a JSON object")
	ErrInvalidMessageShape = errors.New("socket: inbound message has an invalid shape")

	ErrSendFailed       = errors.New("socket: send failed")
	ErrTransport        = errors.New("socket: transport error")
	ErrHeartbeatTimeout = errors.New("socket: heartbeat timeout")
)

// OpError attaches the failing operation and event to an error.
type OpError struct {
	Op    string
	Event Event
	Err   error
}

func (e *OpError) Error() string {
	if e.Event == "" {
		return fmt.Sprintf("socket: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("socket: %s %q: %v", e.Op, e.Event, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}
