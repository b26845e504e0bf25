// Package clock abstracts wall-clock timers so sequencer pacing can be driven
// deterministically in tests.
package clock

import "time"

// Clock schedules callbacks after a delay.
//
// Implementations must invoke f on a goroutine that is allowed to block
// briefly; callers only ever enqueue work from inside f.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending callback returned by AfterFunc.
type Timer interface {
	// Stop prevents the callback from firing. Returns false if the callback
	// already fired or the timer was already stopped.
	Stop() bool
}

// Real is the production Clock backed by package time.
type Real struct{}

// Now returns time.Now().
func (Real) Now() time.Time { return time.Now() }

// AfterFunc wraps time.AfterFunc.
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
