// Package relay forwards validated order events to the matcher with bounded
// retries.
package relay

import "time"

// Policy is an exponential backoff schedule for relay retries.
type Policy struct {
	// MaxRetries is the total number of submission attempts.
	MaxRetries int
	// BaseDelay is the wait after the first failed attempt.
	BaseDelay time.Duration
	// Factor multiplies the delay after each failure. Zero means 2.
	Factor float64
}

// DefaultPolicy matches the deployed retry schedule: 3 attempts, 5s base
// delay, doubling.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 3, BaseDelay: 5 * time.Second, Factor: 2}
}

// Delay returns how long to wait after the given zero-based failed attempt.
func (p Policy) Delay(attempt int) time.Duration {
	factor := p.Factor
	if factor <= 0 {
		factor = 2
	}
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * factor)
	}
	return d
}
