package socket

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

type ClientOption func(*Client)

// WithConfig replaces the whole configuration. The URL passed to NewClient
// still wins when cfg.URL is empty.
func WithConfig(cfg Config) ClientOption {
	return func(c *Client) {
		url := c.cfg.URL
		c.cfg = cfg
		if c.cfg.URL == "" {
			c.cfg.URL = url
		}
	}
}

func WithNamespace(namespace string) ClientOption {
	return func(c *Client) {
		c.cfg.Namespace = namespace
	}
}

// WithToken authenticates the connection with a key=<token> query parameter.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.cfg.Token = token
	}
}

func WithQuery(key, value string) ClientOption {
	return func(c *Client) {
		if c.cfg.Query == nil {
			c.cfg.Query = map[string]string{}
		}
		c.cfg.Query[key] = value
	}
}

func WithProtocols(protocols ...string) ClientOption {
	return func(c *Client) {
		c.cfg.Protocols = append([]string(nil), protocols...)
	}
}

func WithReconnect(rc ReconnectConfig) ClientOption {
	return func(c *Client) {
		c.cfg.Reconnect = rc
	}
}

func WithoutReconnect() ClientOption {
	return func(c *Client) {
		c.cfg.Reconnect.Enabled = false
	}
}

func WithReconnectDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.cfg.Reconnect.Delay = d
	}
}

func WithMaxReconnectDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.cfg.Reconnect.MaxDelay = d
	}
}

func WithReconnectAttempts(attempts int) ClientOption {
	return func(c *Client) {
		c.cfg.Reconnect.MaxAttempts = attempts
	}
}

func WithReconnectFactor(factor float64) ClientOption {
	return func(c *Client) {
		c.cfg.Reconnect.Factor = factor
	}
}

// WithShouldReconnect decides, per unexpected close, whether the reconnect
// policy applies. Returning false leaves the client disconnected.
func WithShouldReconnect(fn func(code int, reason string) bool) ClientOption {
	return func(c *Client) {
		c.shouldReconnect = fn
	}
}

func WithHeartbeat(hb HeartbeatConfig) ClientOption {
	return func(c *Client) {
		c.cfg.Heartbeat = hb
	}
}

func WithoutHeartbeat() ClientOption {
	return func(c *Client) {
		c.cfg.Heartbeat.Enabled = false
	}
}

func WithHeartbeatInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		c.cfg.Heartbeat.Interval = d
	}
}

func WithHeartbeatTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.cfg.Heartbeat.Timeout = d
	}
}

func WithDebug(enabled bool) ClientOption {
	return func(c *Client) {
		c.cfg.Debug = enabled
	}
}

func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
		c.logSet = true
	}
}

func WithTransport(t Transport) ClientOption {
	return func(c *Client) {
		c.transport = t
	}
}

// WithMetrics reports client metrics to reg.
func WithMetrics(reg prometheus.Registerer, opts ...MetricsOption) ClientOption {
	return func(c *Client) {
		c.metrics = NewMetrics(reg, opts...)
	}
}

func WithTracer(tracer trace.Tracer) ClientOption {
	return func(c *Client) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

func withClock(clk clock) ClientOption {
	return func(c *Client) {
		c.clock = clk
	}
}
