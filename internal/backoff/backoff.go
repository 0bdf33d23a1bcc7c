// Package backoff computes retry delays for reconnect attempts.
package backoff

import "time"

const (
	// DefaultBase is the delay before the first retry.
	DefaultBase = 1 * time.Second

	// DefaultCap bounds the delay growth.
	DefaultCap = 30 * time.Second
)

// Policy is an exponential backoff schedule: Base, 2*Base, 4*Base, ...
// capped at Cap. Delays are monotonically non-decreasing in the attempt
// number, and the caller resets the attempt counter on success.
type Policy struct {
	Base time.Duration
	Cap  time.Duration
}

// Default returns the standard reconnect schedule (1s doubling to 30s).
func Default() Policy {
	return Policy{Base: DefaultBase, Cap: DefaultCap}
}

// Delay returns the wait before retry number attempt, counted from zero.
// Zero-valued fields fall back to the defaults.
func (p Policy) Delay(attempt int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = DefaultBase
	}
	cap := p.Cap
	if cap <= 0 {
		cap = DefaultCap
	}
	if cap < base {
		cap = base
	}

	if attempt < 0 {
		attempt = 0
	}

	// Guard the shift: past 62 doublings any duration overflows int64,
	// and the cap is hit long before that anyway.
	if attempt >= 62 {
		return cap
	}

	delay := base << uint(attempt)
	if delay <= 0 || delay > cap {
		return cap
	}
	return delay
}
