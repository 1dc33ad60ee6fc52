package socket

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/kleeedolinux/socketclient/debug"
	"github.com/kleeedolinux/socketclient/socket/transport"
)

// Transport is the connection primitive a Client drives. Open must not block
// and every attempt must end with exactly one transport.EventClosed.
type Transport interface {
	Open(endpoint string, protocols []string)
	Send(data []byte) error
	Close(code int, reason string)
	SetListener(l transport.Listener)
}

const manualCloseReason = "client disconnect"

// Client is the session controller. Transport events, timers, Connect and
// Disconnect requests and all handler calls run on one goroutine in FIFO
// order; the getters and Emit may be called from anywhere.
type Client struct {
	id              string
	cfg             Config
	transport       Transport
	log             zerolog.Logger
	logSet          bool
	metrics         *Metrics
	tracer          trace.Tracer
	clock           clock
	shouldReconnect func(code int, reason string) bool

	emitter   *emitter
	queue     *taskQueue
	done      chan struct{}
	closeOnce sync.Once

	mu                   sync.RWMutex
	state                State
	rooms                map[string]struct{}
	connectedAt          time.Time
	attempts             int
	manual               bool
	closingFromConnected bool
	pendingConnect       bool

	reconnectTimer timer
	reconnectGen   uint64
	hb             heartbeat
}

var _ Socket = (*Client)(nil)

func NewClient(url string, opts ...ClientOption) *Client {
	client := &Client{
		id:      generateID(),
		cfg:     DefaultConfig(),
		tracer:  defaultTracer(),
		clock:   realClock{},
		emitter: newEmitter(),
		queue:   newTaskQueue(),
		done:    make(chan struct{}),
		rooms:   make(map[string]struct{}),
	}
	client.cfg.URL = url

	for _, opt := range opts {
		opt(client)
	}

	client.cfg = client.cfg.normalized()

	if !client.logSet {
		client.log = debug.Logger("client")
	}
	if client.cfg.Debug && client.log.GetLevel() > zerolog.DebugLevel {
		client.log = client.log.Level(zerolog.DebugLevel)
	}
	client.log = client.log.With().Str("client", client.id).Logger()

	if client.transport == nil {
		client.transport = transport.NewWebSocketTransport(
			transport.WithLogger(client.log.With().Str("layer", "transport").Logger()),
		)
	}
	client.transport.SetListener(client.onTransportEvent)
	client.metrics.setState(client.id, StateDisconnected)

	go func() {
		defer close(client.done)
		client.queue.run()
	}()

	return client
}

func (c *Client) ID() string {
	return c.id
}

// Connect starts connecting unless a connection is already being made or
// held. It returns immediately; the outcome arrives as connect, error or
// reconnect_* events.
func (c *Client) Connect() {
	if !c.queue.push(c.connect) {
		c.log.Debug().Msg("connect ignored, client closed")
	}
}

// Disconnect closes the connection and suppresses automatic reconnection.
func (c *Client) Disconnect() {
	if !c.queue.push(c.disconnect) {
		c.log.Debug().Msg("disconnect ignored, client closed")
	}
}

// Close disconnects and stops the client's event goroutine once queued work
// has drained. The client cannot be reused.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.queue.push(func() {
			c.disconnect()
			c.teardown()
		})
		c.queue.close()
	})
}

// Done is closed when the event goroutine has exited after Close.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) connect() {
	c.mu.Lock()
	switch c.state {
	case StateConnecting, StateConnected, StateReconnecting:
		state := c.state
		c.mu.Unlock()
		c.log.Debug().Stringer("state", state).Msg("connect ignored")
		return
	case StateClosing:
		c.pendingConnect = true
		c.mu.Unlock()
		c.log.Debug().Msg("connect deferred until close completes")
		return
	}

	c.manual = false
	c.attempts = 0
	c.state = StateConnecting
	c.mu.Unlock()

	c.metrics.setState(c.id, StateConnecting)
	c.log.Debug().Str("url", c.cfg.URL).Str("namespace", c.cfg.Namespace).Msg("connecting")
	c.transport.Open(c.cfg.Endpoint(), c.cfg.Protocols)
}

func (c *Client) disconnect() {
	c.mu.Lock()
	c.manual = true
	c.pendingConnect = false
	c.cancelReconnectLocked()
	c.stopHeartbeatLocked()

	prev := c.state
	switch prev {
	case StateConnecting, StateConnected:
		c.state = StateClosing
		c.closingFromConnected = prev == StateConnected
		c.mu.Unlock()

		c.metrics.setState(c.id, StateClosing)
		c.log.Debug().Stringer("from", prev).Msg("disconnecting")
		c.transport.Close(transport.CloseNormal, manualCloseReason)
		return
	case StateReconnecting:
		c.state = StateDisconnected
		c.attempts = 0
		c.mu.Unlock()

		c.metrics.setState(c.id, StateDisconnected)
		c.log.Debug().Msg("pending reconnect cancelled")
		return
	}
	c.mu.Unlock()
}

func (c *Client) teardown() {
	c.mu.Lock()
	c.cancelReconnectLocked()
	c.stopHeartbeatLocked()
	c.state = StateDisconnected
	c.rooms = make(map[string]struct{})
	c.connectedAt = time.Time{}
	c.mu.Unlock()

	c.metrics.forget(c.id)
}

func (c *Client) onTransportEvent(ev transport.Event) {
	c.queue.push(func() { c.handleTransportEvent(ev) })
}

func (c *Client) handleTransportEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventOpened:
		c.handleOpened()
	case transport.EventMessage:
		c.handleMessage(ev.Payload)
	case transport.EventClosed:
		c.handleClosed(ev.Code, ev.Reason)
	case transport.EventError:
		c.emitError(fmt.Errorf("%w: %w", ErrTransport, ev.Err))
	case transport.EventLiveness:
		c.touch()
	}
}

func (c *Client) handleOpened() {
	c.mu.Lock()
	if c.state != StateConnecting {
		state := c.state
		c.mu.Unlock()
		c.log.Debug().Stringer("state", state).Msg("opened ignored")
		return
	}

	now := c.clock.Now()
	c.cancelReconnectLocked()
	c.state = StateConnected
	c.attempts = 0
	c.connectedAt = now
	c.startHeartbeatLocked(now)
	c.mu.Unlock()

	c.metrics.connected()
	c.metrics.setState(c.id, StateConnected)
	c.log.Info().Str("namespace", c.cfg.Namespace).Msg("connected")
	c.dispatch(EventConnect, ConnectEvent{Namespace: c.cfg.Namespace, Timestamp: now})
}

func (c *Client) handleClosed(code int, reason string) {
	c.mu.Lock()
	prev := c.state
	if prev == StateDisconnected {
		c.mu.Unlock()
		c.log.Debug().Int("code", code).Msg("closed ignored, already disconnected")
		return
	}

	wasConnected := prev == StateConnected || (prev == StateClosing && c.closingFromConnected)
	c.stopHeartbeatLocked()
	c.cancelReconnectLocked()
	c.state = StateDisconnected
	c.rooms = make(map[string]struct{})
	c.connectedAt = time.Time{}
	c.closingFromConnected = false
	manual := c.manual
	if manual {
		c.attempts = 0
	}
	pending := c.pendingConnect
	c.pendingConnect = false
	c.mu.Unlock()

	c.metrics.disconnected(code)
	c.metrics.setState(c.id, StateDisconnected)
	c.log.Info().Int("code", code).Str("reason", reason).Bool("manual", manual).Msg("disconnected")

	if wasConnected {
		c.dispatch(EventDisconnect, DisconnectEvent{Code: code, Reason: reason})
	}

	if pending {
		c.connect()
		return
	}
	if manual || !c.cfg.Reconnect.Enabled {
		return
	}
	if c.shouldReconnect != nil && !c.shouldReconnect(code, reason) {
		c.log.Info().Int("code", code).Msg("reconnect suppressed for close code")
		return
	}
	c.scheduleReconnect()
}

func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	rc := c.cfg.Reconnect
	if rc.MaxAttempts > 0 && c.attempts >= rc.MaxAttempts {
		attempts := c.attempts
		c.mu.Unlock()

		c.metrics.reconnectExhausted()
		c.log.Warn().Int("attempts", attempts).Msg("reconnect attempts exhausted")
		c.dispatch(EventReconnectFailed, ReconnectFailedEvent{Attempts: attempts, MaxAttempts: rc.MaxAttempts})
		return
	}

	delay := rc.DelayFor(c.attempts)
	c.attempts++
	attempt := c.attempts
	c.state = StateReconnecting
	c.cancelReconnectLocked()
	gen := c.reconnectGen
	c.reconnectTimer = c.clock.AfterFunc(delay, func() {
		c.queue.push(func() { c.reconnectFired(gen) })
	})
	c.mu.Unlock()

	c.metrics.reconnectScheduled()
	c.metrics.setState(c.id, StateReconnecting)
	c.log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("reconnecting")
	c.dispatch(EventReconnectAttempt, ReconnectAttemptEvent{Attempt: attempt, Delay: delay})
}

func (c *Client) reconnectFired(gen uint64) {
	c.mu.Lock()
	if gen != c.reconnectGen || c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.reconnectTimer = nil
	c.state = StateConnecting
	c.mu.Unlock()

	c.metrics.setState(c.id, StateConnecting)
	c.transport.Open(c.cfg.Endpoint(), c.cfg.Protocols)
}

func (c *Client) cancelReconnectLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.reconnectGen++
}

func (c *Client) handleMessage(payload []byte) {
	c.touch()

	env, err := DecodeEnvelope(payload)
	if err != nil {
		c.metrics.rejected(err)
		c.emitError(err)
		return
	}

	c.metrics.received()
	span := c.startSpan("socket.receive", env.Event, trace.SpanKindConsumer)
	c.dispatch(env.Event, env.Data)
	c.dispatch(EventAny, env)
	endSpan(span, nil)
}

func (c *Client) emitError(err error) {
	c.log.Debug().Err(err).Msg("error event")
	c.dispatch(EventError, ErrorEvent{Message: err.Error(), Timestamp: c.clock.Now(), Err: err})
}

func (c *Client) dispatch(event Event, data interface{}) {
	for _, l := range c.emitter.take(event) {
		c.invoke(event, l, data)
	}
}

func (c *Client) invoke(event Event, l listener, data interface{}) {
	defer func() {
		if r := recover(); r != nil {
			c.metrics.handlerPanicked()
			c.log.Error().Str("event", string(event)).Interface("panic", r).Msg("handler panicked")
		}
	}()
	l.handler(data)
}

// On registers handler for event. Use EventAny to observe every inbound
// application event.
func (c *Client) On(event Event, handler Handler) ListenerID {
	return c.emitter.on(event, handler, false)
}

func (c *Client) Once(event Event, handler Handler) ListenerID {
	return c.emitter.on(event, handler, true)
}

// Off removes the listed handlers, or all handlers for event when none are
// given.
func (c *Client) Off(event Event, ids ...ListenerID) {
	c.emitter.off(event, ids...)
}

// Emit sends an event. It fails with ErrNotConnected outside the connected
// state, ErrInvalidEventName or ErrInvalidPayloadShape for bad input, and
// ErrSendFailed when the transport write fails.
func (c *Client) Emit(event Event, data interface{}) error {
	span := c.startSpan("socket.emit", event, trace.SpanKindProducer)
	err := c.emit(event, data)
	endSpan(span, err)
	return err
}

func (c *Client) emit(event Event, data interface{}) error {
	if !c.IsConnected() {
		return &OpError{Op: "emit", Event: event, Err: ErrNotConnected}
	}

	payload, err := EncodeEnvelope(event, data)
	if err != nil {
		return &OpError{Op: "emit", Event: event, Err: err}
	}

	if err := c.transport.Send(payload); err != nil {
		if errors.Is(err, transport.ErrNotConnected) {
			return &OpError{Op: "emit", Event: event, Err: ErrNotConnected}
		}
		return &OpError{Op: "emit", Event: event, Err: fmt.Errorf("%w: %w", ErrSendFailed, err)}
	}

	c.metrics.sent()
	c.log.Trace().Str("event", string(event)).RawJSON("payload", payload).Msg("sent")
	return nil
}

// JoinRoom asks the server to add this session to room and records the room
// locally without waiting for an acknowledgement.
func (c *Client) JoinRoom(room string) error {
	if room == "" {
		return &OpError{Op: "join_room", Event: EventJoinRoom, Err: ErrInvalidRoom}
	}
	if err := c.Emit(EventJoinRoom, roomRequest{Room: room, Namespace: c.cfg.Namespace}); err != nil {
		return err
	}

	c.mu.Lock()
	if c.state == StateConnected {
		c.rooms[room] = struct{}{}
	}
	c.mu.Unlock()
	return nil
}

func (c *Client) LeaveRoom(room string) error {
	if room == "" {
		return &OpError{Op: "leave_room", Event: EventLeaveRoom, Err: ErrInvalidRoom}
	}
	if err := c.Emit(EventLeaveRoom, roomRequest{Room: room, Namespace: c.cfg.Namespace}); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
	return nil
}

func (c *Client) Rooms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedKeys(c.rooms)
}

func (c *Client) InRoom(room string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.rooms[room]
	return ok
}

func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

func (c *Client) ConnectionInfo() ConnectionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info := ConnectionInfo{
		State:             c.state,
		URL:               c.cfg.URL,
		Namespace:         c.cfg.Namespace,
		ReconnectAttempts: c.attempts,
		IsReconnecting:    c.state == StateReconnecting || (c.state == StateConnecting && c.attempts > 0),
	}
	if !c.connectedAt.IsZero() {
		at := c.connectedAt
		info.ConnectedAt = &at
	}
	return info
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.cfg
}
