package socket

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors a Client reports to. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	connects          prometheus.Counter
	disconnects       *prometheus.CounterVec
	reconnectAttempts prometheus.Counter
	reconnectFailures prometheus.Counter
	heartbeatTimeouts prometheus.Counter
	messagesReceived  prometheus.Counter
	messagesSent      prometheus.Counter
	messagesRejected  *prometheus.CounterVec
	handlerPanics     prometheus.Counter
	state             *prometheus.GaugeVec
}

type MetricsConfig struct {
	Namespace   string
	Subsystem   string
	ConstLabels prometheus.Labels
}

type MetricsOption func(*MetricsConfig)

func WithMetricsNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

func WithMetricsSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// NewMetrics registers the client collectors with reg. Collectors that are
// already registered are reused, so several clients can share a registry;
// counters are aggregated across them and connection_state is labelled by
// client ID.
func NewMetrics(reg prometheus.Registerer, opts ...MetricsOption) *Metrics {
	cfg := MetricsConfig{Namespace: "socketclient"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	counter := func(name, help string) prometheus.Counter {
		return register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: cfg.ConstLabels,
		}))
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: cfg.ConstLabels,
		}, labels))
	}

	return &Metrics{
		connects:          counter("connects_total", "Successful connections."),
		disconnects:       counterVec("disconnects_total", "Closed connections by close code.", "code"),
		reconnectAttempts: counter("reconnect_attempts_total", "Scheduled reconnect attempts."),
		reconnectFailures: counter("reconnect_failures_total", "Reconnect sequences that exhausted max attempts."),
		heartbeatTimeouts: counter("heartbeat_timeouts_total", "Connections closed because the peer stopped responding."),
		messagesReceived:  counter("messages_received_total", "Valid inbound envelopes."),
		messagesSent:      counter("messages_sent_total", "Envelopes handed to the transport."),
		messagesRejected:  counterVec("messages_rejected_total", "Inbound frames dropped by validation.", "reason"),
		handlerPanics:     counter("handler_panics_total", "Recovered panics in event handlers."),
		state: register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "connection_state",
			Help:        "1 for the client's current connection state, 0 otherwise.",
			ConstLabels: cfg.ConstLabels,
		}, []string{"client", "state"})),
	}
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *Metrics) connected() {
	if m == nil {
		return
	}
	m.connects.Inc()
}

func (m *Metrics) disconnected(code int) {
	if m == nil {
		return
	}
	m.disconnects.WithLabelValues(strconv.Itoa(code)).Inc()
}

func (m *Metrics) reconnectScheduled() {
	if m == nil {
		return
	}
	m.reconnectAttempts.Inc()
}

func (m *Metrics) reconnectExhausted() {
	if m == nil {
		return
	}
	m.reconnectFailures.Inc()
}

func (m *Metrics) heartbeatTimedOut() {
	if m == nil {
		return
	}
	m.heartbeatTimeouts.Inc()
}

func (m *Metrics) received() {
	if m == nil {
		return
	}
	m.messagesReceived.Inc()
}

func (m *Metrics) sent() {
	if m == nil {
		return
	}
	m.messagesSent.Inc()
}

func (m *Metrics) rejected(err error) {
	if m == nil {
		return
	}
	reason := "invalid_message_shape"
	if errors.Is(err, ErrInvalidPayload) {
		reason = "invalid_payload"
	}
	m.messagesRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) handlerPanicked() {
	if m == nil {
		return
	}
	m.handlerPanics.Inc()
}

func (m *Metrics) setState(client string, s State) {
	if m == nil {
		return
	}
	for _, candidate := range []State{StateDisconnected, StateConnecting, StateConnected, StateReconnecting, StateClosing} {
		v := 0.0
		if candidate == s {
			v = 1
		}
		m.state.WithLabelValues(client, candidate.String()).Set(v)
	}
}

// forget drops the state series of a closed client.
func (m *Metrics) forget(client string) {
	if m == nil {
		return
	}
	m.state.DeletePartialMatch(prometheus.Labels{"client": client})
}
