package streamclient

import "time"

const (
	// DefaultBackoffBase is the wait before the first reconnect attempt.
	DefaultBackoffBase = 1 * time.Second

	// DefaultBackoffCap is the ceiling on reconnect waits.
	DefaultBackoffCap = 30 * time.Second
)

// Backoff computes exponential reconnect delays with a ceiling.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

// Delay returns the wait before reconnect attempt n (counting from 0):
// min(Base * 2^n, Cap). Delays are non-decreasing and never exceed Cap.
func (b Backoff) Delay(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = DefaultBackoffBase
	}
	cap := b.Cap
	if cap <= 0 {
		cap = DefaultBackoffCap
	}
	if attempt < 0 {
		attempt = 0
	}

	// Shifting past 62 bits would overflow; the cap applies long before.
	if attempt > 62 {
		return cap
	}

	delay := base << uint(attempt)
	if delay <= 0 || delay > cap {
		return cap
	}
	return delay
}
