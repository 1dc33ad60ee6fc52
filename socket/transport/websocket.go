package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/kleeedolinux/socketclient/debug"
)

type status int

const (
	statusIdle status = iota
	statusOpening
	statusOpen
	statusClosing
)

// WebSocketTransport owns at most one gorilla connection at a time and
// reports its lifecycle to a single listener. Each Open starts a new
// attempt; every attempt ends with exactly one EventClosed.
type WebSocketTransport struct {
	mu       sync.Mutex
	writeMu  sync.Mutex
	conn     *websocket.Conn
	status   status
	gen      uint64
	cancel   context.CancelFunc
	listener Listener

	closeRequested bool
	closeCode      int
	closeReason    string

	dialer           *websocket.Dialer
	headers          http.Header
	readTimeout      time.Duration
	writeTimeout     time.Duration
	handshakeTimeout time.Duration
	compression      bool
	log              zerolog.Logger
}

type WebSocketOption func(*WebSocketTransport)

func WithHeaders(headers http.Header) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.headers = headers.Clone()
	}
}

// WithReadTimeout sets a read deadline that every inbound frame or pong
// extends. Zero leaves liveness to the client heartbeat.
func WithReadTimeout(timeout time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.readTimeout = timeout
	}
}

func WithWriteTimeout(timeout time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.writeTimeout = timeout
	}
}

func WithHandshakeTimeout(timeout time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.handshakeTimeout = timeout
	}
}

func WithCompression(enabled bool) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.compression = enabled
	}
}

func WithDialer(d *websocket.Dialer) WebSocketOption {
	return func(t *WebSocketTransport) {
		if d != nil {
			t.dialer = d
		}
	}
}

func WithLogger(log zerolog.Logger) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.log = log
	}
}

func NewWebSocketTransport(opts ...WebSocketOption) *WebSocketTransport {
	t := &WebSocketTransport{
		dialer:           websocket.DefaultDialer,
		headers:          make(http.Header),
		writeTimeout:     10 * time.Second,
		handshakeTimeout: 10 * time.Second,
		log:              debug.Logger("transport"),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

func (t *WebSocketTransport) SetListener(l Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listener = l
}

// IsOpen reports whether the handshake has completed and no close is pending.
func (t *WebSocketTransport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status == statusOpen
}

// Open starts a connection attempt in the background. It is a no-op while an
// attempt is already opening, open, or closing.
func (t *WebSocketTransport) Open(endpoint string, protocols []string) {
	t.mu.Lock()
	if t.status != statusIdle {
		t.mu.Unlock()
		t.log.Debug().Str("endpoint", endpoint).Msg("open ignored, attempt in progress")
		return
	}

	t.gen++
	gen := t.gen
	ctx, cancel := context.WithCancel(context.Background())
	t.status = statusOpening
	t.cancel = cancel
	t.closeRequested = false
	t.closeCode = 0
	t.closeReason = ""
	t.mu.Unlock()

	go t.dial(ctx, gen, endpoint, append([]string(nil), protocols...))
}

func (t *WebSocketTransport) dial(ctx context.Context, gen uint64, endpoint string, protocols []string) {
	u, err := url.Parse(endpoint)
	if err == nil && u.Scheme != "ws" && u.Scheme != "wss" {
		err = fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if err != nil {
		t.fail(gen, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err))
		return
	}

	t.log.Debug().Str("host", u.Host).Str("path", u.Path).Msg("connecting")

	dialer := *t.dialer
	dialer.HandshakeTimeout = t.handshakeTimeout
	dialer.Subprotocols = protocols
	if t.compression {
		dialer.EnableCompression = true
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, t.headers.Clone())
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		t.fail(gen, fmt.Errorf("%w: %v", ErrDial, err))
		return
	}

	t.mu.Lock()
	if t.gen != gen || t.closeRequested {
		code, reason := t.closeCode, t.closeReason
		current := t.gen == gen
		if current {
			t.status = statusIdle
			t.cancel = nil
		}
		l := t.listener
		t.mu.Unlock()

		conn.Close()
		if current && l != nil {
			l(Event{Kind: EventClosed, Code: code, Reason: reason})
		}
		return
	}
	t.conn = conn
	t.status = statusOpen
	t.mu.Unlock()

	if t.compression {
		conn.EnableWriteCompression(true)
	}
	conn.SetPongHandler(func(string) error {
		t.extendReadDeadline(conn)
		t.emit(gen, Event{Kind: EventLiveness})
		return nil
	})

	t.log.Debug().Str("subprotocol", conn.Subprotocol()).Msg("connected")
	t.emit(gen, Event{Kind: EventOpened})
	t.readLoop(gen, conn)
}

func (t *WebSocketTransport) readLoop(gen uint64, conn *websocket.Conn) {
	for {
		t.extendReadDeadline(conn)

		_, message, err := conn.ReadMessage()
		if err != nil {
			t.finish(gen, conn, err)
			return
		}

		t.emit(gen, Event{Kind: EventMessage, Payload: message})
	}
}

func (t *WebSocketTransport) extendReadDeadline(conn *websocket.Conn) {
	if t.readTimeout <= 0 {
		return
	}
	if err := conn.SetReadDeadline(time.Now().Add(t.readTimeout)); err != nil {
		t.log.Debug().Err(err).Msg("set read deadline")
	}
}

// fail ends an attempt that never opened.
func (t *WebSocketTransport) fail(gen uint64, err error) {
	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		return
	}
	requested := t.closeRequested
	code, reason := CloseAbnormal, err.Error()
	if requested {
		code, reason = t.closeCode, t.closeReason
	}
	t.status = statusIdle
	t.cancel = nil
	l := t.listener
	t.mu.Unlock()

	if l == nil {
		return
	}
	if !requested {
		t.log.Debug().Err(err).Msg("connection attempt failed")
		l(Event{Kind: EventError, Err: err})
	}
	l(Event{Kind: EventClosed, Code: code, Reason: reason})
}

// finish ends an attempt that was open.
func (t *WebSocketTransport) finish(gen uint64, conn *websocket.Conn, err error) {
	conn.Close()

	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		return
	}
	requested, code, reason := t.closeRequested, t.closeCode, t.closeReason
	t.conn = nil
	t.status = statusIdle
	t.cancel = nil
	l := t.listener
	t.mu.Unlock()

	var closeErr *websocket.CloseError
	lost := false
	switch {
	case requested:
	case errors.As(err, &closeErr):
		code, reason = closeErr.Code, closeErr.Text
	default:
		code, reason = CloseAbnormal, err.Error()
		lost = true
	}

	t.log.Debug().Int("code", code).Str("reason", reason).Msg("connection closed")
	if l == nil {
		return
	}
	if lost {
		l(Event{Kind: EventError, Err: fmt.Errorf("%w: %v", ErrConnectionLost, err)})
	}
	l(Event{Kind: EventClosed, Code: code, Reason: reason})
}

func (t *WebSocketTransport) emit(gen uint64, ev Event) {
	t.mu.Lock()
	if t.gen != gen || t.status == statusIdle {
		t.mu.Unlock()
		return
	}
	l := t.listener
	t.mu.Unlock()

	if l != nil {
		l(ev)
	}
}

func (t *WebSocketTransport) Send(data []byte) error {
	t.mu.Lock()
	conn := t.conn
	open := t.status == statusOpen
	t.mu.Unlock()

	if !open || conn == nil {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.writeTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return fmt.Errorf("%w: %v", ErrSendFailed, err)
		}
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.log.Debug().Err(err).Msg("send error")
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

// Ping writes a keepalive probe. The matching pong surfaces as EventLiveness.
func (t *WebSocketTransport) Ping() error {
	t.mu.Lock()
	conn := t.conn
	open := t.status == statusOpen
	t.mu.Unlock()

	if !open || conn == nil {
		return ErrNotConnected
	}

	deadline := time.Now().Add(time.Second)
	if t.writeTimeout > 0 {
		deadline = time.Now().Add(t.writeTimeout)
	}
	if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

// Close requests a graceful shutdown of the current attempt. Once Close has
// been called the attempt's EventClosed carries code and reason, whatever
// close frame the peer answers with.
func (t *WebSocketTransport) Close(code int, reason string) {
	t.mu.Lock()
	switch t.status {
	case statusIdle, statusClosing:
		t.mu.Unlock()
		return
	case statusOpening:
		t.closeRequested = true
		t.closeCode, t.closeReason = code, reason
		t.status = statusClosing
		cancel := t.cancel
		t.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return
	}

	t.closeRequested = true
	t.closeCode, t.closeReason = code, reason
	t.status = statusClosing
	conn := t.conn
	t.mu.Unlock()

	t.log.Debug().Int("code", code).Str("reason", reason).Msg("closing connection")

	err := conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(time.Second),
	)
	if err != nil {
		t.log.Debug().Err(err).Msg("error sending close message")
	}

	if err := conn.Close(); err != nil {
		t.log.Debug().Err(err).Msg("error closing connection")
	}
}
