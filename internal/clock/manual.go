package clock

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Clock whose time only moves when Advance is called.
//
// Callbacks fire synchronously inside Advance, on the caller's goroutine, in
// deadline order (ties fire in scheduling order). Callbacks scheduled while
// Advance is running fire in the same call if their deadline is reached.
//
// Thread-safety: all methods are safe for concurrent use. Callbacks run
// without the internal lock held.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	seq     int64
	pending []*manualTimer
}

type manualTimer struct {
	clock    *Manual
	deadline time.Time
	seq      int64
	f        func()
	stopped  bool
	fired    bool
}

// Epoch is where a Manual clock starts unless told otherwise. A fixed
// instant keeps traces that include timestamps reproducible.
var Epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// NewManual creates a clock starting at start, or at Epoch if start is zero.
func NewManual(start time.Time) *Manual {
	if start.IsZero() {
		start = Epoch
	}
	return &Manual{now: start}
}

var _ Clock = (*Manual)(nil)

// Now returns the current virtual time.
func (c *Manual) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc schedules f to run once virtual time reaches now+d.
func (c *Manual) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	t := &manualTimer{
		clock:    c,
		deadline: c.now.Add(d),
		seq:      c.seq,
		f:        f,
	}
	c.pending = append(c.pending, t)
	return t
}

// Advance moves virtual time forward by d, firing due callbacks.
func (c *Manual) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		t := c.popDue(target)
		if t == nil {
			break
		}
		t.f()
	}

	c.mu.Lock()
	c.now = target
	c.mu.Unlock()
}

// Pending returns the number of timers that have neither fired nor stopped.
func (c *Manual) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// NextDeadline returns the delay until the earliest pending timer.
// Returns false if nothing is pending.
func (c *Manual) NextDeadline() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return 0, false
	}
	c.sortLocked()
	return c.pending[0].deadline.Sub(c.now), true
}

func (c *Manual) popDue(target time.Time) *manualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pending) == 0 {
		return nil
	}
	c.sortLocked()

	t := c.pending[0]
	if t.deadline.After(target) {
		return nil
	}
	c.pending = c.pending[1:]
	t.fired = true
	// Time observed by the callback is the timer's own deadline.
	c.now = t.deadline
	return t
}

func (c *Manual) sortLocked() {
	sort.SliceStable(c.pending, func(i, j int) bool {
		a, b := c.pending[i], c.pending[j]
		if a.deadline.Equal(b.deadline) {
			return a.seq < b.seq
		}
		return a.deadline.Before(b.deadline)
	})
}

func (t *manualTimer) Stop() bool {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	for i, p := range c.pending {
		if p == t {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			break
		}
	}
	return true
}
