package transport

import "errors"

type EventKind int

const (
	EventOpened EventKind = iota
	EventMessage
	EventClosed
	EventError
	EventLiveness
)

func (k EventKind) String() string {
	switch k {
	case EventOpened:
		return "opened"
	case EventMessage:
		return "message"
	case EventClosed:
		return "closed"
	case EventError:
		return "error"
	case EventLiveness:
		return "liveness-signal"
	default:
		return "unknown"
	}
}

// Event is the tagged variant a transport hands to its listener. Only the
// fields relevant to Kind are set.
type Event struct {
	Kind    EventKind
	Payload []byte
	Code    int
	Reason  string
	Err     error
}

// Listener receives transport events in arrival order. It must not block.
type Listener func(Event)

// Standard close codes.
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	CloseProtocolError   = 1002
	CloseUnsupportedData = 1003
	CloseAbnormal        = 1006
	CloseInvalidPayload  = 1007
	ClosePolicyViolation = 1008
	CloseTooBig          = 1009
	CloseInternalError   = 1011
)

var (
	ErrNotConnected    = errors.New("transport: not connected")
	ErrSendFailed      = errors.New("transport: send failed")
	ErrInvalidEndpoint = errors.New("transport: invalid endpoint")
	ErrDial            = errors.New("transport: dial failed")
	ErrConnectionLost  = errors.New("transport: connection lost")
)
