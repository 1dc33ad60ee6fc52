package socket

import (
	"time"

	"github.com/kleeedolinux/socketclient/socket/transport"
)

// Pinger is implemented by transports that can send a keepalive probe whose
// answer arrives as a liveness signal.
type Pinger interface {
	Ping() error
}

type heartbeat struct {
	lastLiveness time.Time
	probeAt      time.Time
	timer        timer
	gen          uint64
}

// stale reports whether the peer should be considered gone. With probes the
// peer is stale when the last probe went unanswered for longer than timeout;
// without them any silence longer than timeout counts.
func (h *heartbeat) stale(now time.Time, timeout time.Duration, probing bool) bool {
	if !probing {
		return now.Sub(h.lastLiveness) > timeout
	}
	if h.probeAt.IsZero() || !h.lastLiveness.Before(h.probeAt) {
		return false
	}
	return now.Sub(h.probeAt) > timeout
}

// The *Locked helpers expect c.mu held.

func (c *Client) startHeartbeatLocked(now time.Time) {
	c.hb.lastLiveness = now
	c.hb.probeAt = time.Time{}
	if !c.cfg.Heartbeat.Enabled || c.cfg.Heartbeat.Interval <= 0 {
		return
	}
	c.armHeartbeatLocked()
}

func (c *Client) armHeartbeatLocked() {
	gen := c.hb.gen
	c.hb.timer = c.clock.AfterFunc(c.cfg.Heartbeat.Interval, func() {
		c.queue.push(func() { c.heartbeatTick(gen) })
	})
}

func (c *Client) stopHeartbeatLocked() {
	if c.hb.timer != nil {
		c.hb.timer.Stop()
		c.hb.timer = nil
	}
	c.hb.gen++
}

func (c *Client) heartbeatTick(gen uint64) {
	c.mu.Lock()
	if gen != c.hb.gen || c.state != StateConnected {
		c.mu.Unlock()
		return
	}

	now := c.clock.Now()
	pinger, probing := c.transport.(Pinger)
	if c.hb.stale(now, c.cfg.Heartbeat.Timeout, probing) {
		silence := now.Sub(c.hb.lastLiveness)
		c.stopHeartbeatLocked()
		c.mu.Unlock()

		c.log.Warn().Err(ErrHeartbeatTimeout).Dur("silence", silence).Msg("peer unresponsive, closing")
		c.metrics.heartbeatTimedOut()
		c.transport.Close(transport.CloseNormal, "heartbeat timeout")
		return
	}

	if probing {
		c.hb.probeAt = now
	}
	c.armHeartbeatLocked()
	c.mu.Unlock()

	if probing {
		if err := pinger.Ping(); err != nil {
			c.log.Debug().Err(err).Msg("heartbeat probe failed")
		}
	}
}

// touch records inbound activity.
func (c *Client) touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateConnected {
		c.hb.lastLiveness = c.clock.Now()
	}
}
