package socket

import (
	"net/url"
	"time"
)

const DefaultNamespace = "/"

type ReconnectConfig struct {
	Enabled bool
	// MaxAttempts bounds consecutive reconnect attempts; 0 means unlimited.
	MaxAttempts int
	Delay       time.Duration
	MaxDelay    time.Duration
	Factor      float64
}

type HeartbeatConfig struct {
	Enabled  bool
	Interval time.Duration
	Timeout  time.Duration
}

// Config holds everything a Client recognizes.
type Config struct {
	URL       string
	Namespace string
	Token     string
	Reconnect ReconnectConfig
	Heartbeat HeartbeatConfig
	Query     map[string]string
	Protocols []string
	Debug     bool
}

func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		Enabled:     true,
		MaxAttempts: 5,
		Delay:       time.Second,
		MaxDelay:    30 * time.Second,
		Factor:      1.5,
	}
}

func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Enabled:  true,
		Interval: 30 * time.Second,
		Timeout:  5 * time.Second,
	}
}

func DefaultConfig() Config {
	return Config{
		Namespace: DefaultNamespace,
		Reconnect: DefaultReconnectConfig(),
		Heartbeat: DefaultHeartbeatConfig(),
		Query:     map[string]string{},
	}
}

func (c Config) normalized() Config {
	if c.Namespace == "" {
		c.Namespace = DefaultNamespace
	}
	if c.Reconnect.Factor < 1 {
		c.Reconnect.Factor = 1
	}
	if c.Reconnect.MaxAttempts < 0 {
		c.Reconnect.MaxAttempts = 0
	}
	if c.Reconnect.MaxDelay <= 0 {
		c.Reconnect.MaxDelay = DefaultReconnectConfig().MaxDelay
	}
	if c.Reconnect.MaxDelay < c.Reconnect.Delay {
		c.Reconnect.MaxDelay = c.Reconnect.Delay
	}
	return c
}

// Endpoint returns the URL to dial: the configured URL plus key=<token> when
// a token is set and every extra query parameter. An unparsable URL is
// returned untouched so the transport reports it.
func (c Config) Endpoint() string {
	if c.Token == "" && len(c.Query) == 0 {
		return c.URL
	}

	u, err := url.Parse(c.URL)
	if err != nil {
		return c.URL
	}

	q := u.Query()
	for k, v := range c.Query {
		q.Set(k, v)
	}
	if c.Token != "" {
		q.Set("key", c.Token)
	}
	u.RawQuery = q.Encode()

	return u.String()
}
