package socket

import (
	"math"
	"time"
)

// DelayFor returns the wait before the next reconnect attempt, given how many
// attempts have already been made since the last successful connection:
// min(Delay * Factor^attempts, MaxDelay).
func (r ReconnectConfig) DelayFor(attempts int) time.Duration {
	if r.Delay <= 0 {
		return 0
	}
	if attempts < 0 {
		attempts = 0
	}
	factor := r.Factor
	if factor < 1 {
		factor = 1
	}

	limit := time.Duration(math.MaxInt64)
	if r.MaxDelay > 0 {
		limit = r.MaxDelay
	}

	delay := float64(r.Delay) * math.Pow(factor, float64(attempts))
	if math.IsNaN(delay) || delay >= float64(limit) {
		return limit
	}
	return time.Duration(delay)
}
