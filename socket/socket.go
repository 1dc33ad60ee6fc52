package socket

import (
	"encoding/json"
	"time"
)

type Event string

// Lifecycle events emitted by the client itself.
const (
	EventConnect          Event = "connect"
	EventDisconnect       Event = "disconnect"
	EventError            Event = "error"
	EventReconnectAttempt Event = "reconnect_attempt"
	EventReconnectFailed  Event = "reconnect_failed"
)

// Reserved protocol event names.
const (
	EventJoinRoom  Event = "join_room"
	EventLeaveRoom Event = "leave_room"

	// EventAny registers a wildcard handler. Wildcard handlers receive an
	// Envelope for every valid inbound message, after the exact-name handlers.
	EventAny Event = "*"
)

// Envelope is the wire unit: {"event": "...", "data": {...}|[...]}.
type Envelope struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type ConnectEvent struct {
	Namespace string    `json:"namespace"`
	Timestamp time.Time `json:"timestamp"`
}

type DisconnectEvent struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

type ErrorEvent struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Err       error     `json:"-"`
}

type ReconnectAttemptEvent struct {
	Attempt int           `json:"attempt"`
	Delay   time.Duration `json:"delay"`
}

type ReconnectFailedEvent struct {
	Attempts    int `json:"attempts"`
	MaxAttempts int `json:"maxAttempts"`
}

type roomRequest struct {
	Room      string `json:"room"`
	Namespace string `json:"namespace"`
}

// Handler receives the payload of an event. Application events deliver a
// json.RawMessage, wildcard handlers an Envelope, lifecycle events one of the
// *Event structs above. A server may send an envelope named like a lifecycle
// event; its handlers then receive a json.RawMessage, so check the type.
type Handler func(data interface{})

type ListenerID uint64

// ConnectionInfo is a read-only snapshot of the client.
type ConnectionInfo struct {
	State             State      `json:"state"`
	URL               string     `json:"url"`
	Namespace         string     `json:"namespace"`
	ConnectedAt       *time.Time `json:"connectedAt"`
	ReconnectAttempts int        `json:"reconnectAttempts"`
	IsReconnecting    bool       `json:"isReconnecting"`
}

type Socket interface {
	ID() string

	Connect()

	Disconnect()

	Emit(event Event, data interface{}) error

	On(event Event, handler Handler) ListenerID

	Once(event Event, handler Handler) ListenerID

	Off(event Event, ids ...ListenerID)

	JoinRoom(room string) error

	LeaveRoom(room string) error

	Rooms() []string

	State() State

	IsConnected() bool

	ConnectionInfo() ConnectionInfo

	Close()
}
