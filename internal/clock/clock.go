// Package clock abstracts timer scheduling so connection-lifecycle code can
// be tested deterministically. Production code injects Real(); tests inject
// Fake() and advance time manually.
package clock

import "time"

// Clock schedules deferred work. It covers only what the sync layer needs:
// reading the current time and one-shot timers.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc waits for duration d, then calls f in its own goroutine.
	// If d <= 0, f runs immediately. The returned Timer cancels the
	// pending call via Stop.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a handle to a scheduled call. A Timer must have exactly one
// owner, which is responsible for stopping it when the work it guards is
// torn down.
type Timer struct {
	stopFunc func() bool
}

// Stop prevents the timer from firing. It returns true if the call was
// stopped, false if it already fired or was already stopped. Safe to call
// multiple times.
func (t *Timer) Stop() bool { return t.stopFunc() }
