package script

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/narrator/internal/clock"
)

// ErrStalled is returned by a virtual driver asked to wait for something
// that can no longer happen: nothing is queued and no timer is pending.
var ErrStalled = errors.New("script stalled: nothing left to wait for")

// Loop is an event loop the driver keeps running. *sequencer.Sequencer
// satisfies it.
type Loop interface {
	Run(ctx context.Context) error
	Drain() int
	Close()
}

// Driver decides how time passes while a script plays: on the wall clock, or
// on a virtual clock that jumps straight to the next timer.
type Driver interface {
	// Clock is the clock every sequencer and narration gate must use.
	Clock() clock.Clock

	// Attach starts running l. Attached loops are stopped by Close.
	Attach(l Loop)

	// Sleep lets d pass.
	Sleep(ctx context.Context, d time.Duration) error

	// Until lets time pass until done is closed.
	Until(ctx context.Context, done <-chan struct{}) error

	// Close closes every attached loop and waits for them to stop.
	Close() error
}

// RealDriver runs each loop on its own goroutine against the wall clock.
type RealDriver struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu    sync.Mutex
	loops []Loop
}

// NewRealDriver creates a driver whose loops stop when ctx is done.
func NewRealDriver(ctx context.Context) *RealDriver {
	ctx, cancel := context.WithCancel(ctx)
	group, ctx := errgroup.WithContext(ctx)
	return &RealDriver{ctx: ctx, cancel: cancel, group: group}
}

func (d *RealDriver) Clock() clock.Clock { return clock.Real{} }

func (d *RealDriver) Attach(l Loop) {
	d.mu.Lock()
	d.loops = append(d.loops, l)
	d.mu.Unlock()

	d.group.Go(func() error {
		if err := l.Run(d.ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
}

func (d *RealDriver) Sleep(ctx context.Context, dur time.Duration) error {
	if dur <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (d *RealDriver) Until(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (d *RealDriver) Close() error {
	d.mu.Lock()
	loops := d.loops
	d.loops = nil
	d.mu.Unlock()

	for _, l := range loops {
		l.Close()
	}
	err := d.group.Wait()
	d.cancel()
	return err
}

// maxSteps bounds a virtual wait so a loop that keeps rescheduling itself
// surfaces as an error instead of spinning forever.
const maxSteps = 100000

// VirtualDriver pumps loops on the caller's goroutine and advances a manual
// clock from one timer to the next. Playing a script takes as long as the
// work, not as long as the waits, and the same script always produces the
// same trace.
//
// Capabilities used with it must resolve on the driver's clock (see
// narration.Simulated); one that waits on the wall clock stalls the script.
type VirtualDriver struct {
	clock *clock.Manual

	mu    sync.Mutex
	loops []Loop
}

// NewVirtualDriver creates a driver on c, or on a fresh manual clock at
// clock.Epoch if c is nil.
func NewVirtualDriver(c *clock.Manual) *VirtualDriver {
	if c == nil {
		c = clock.NewManual(time.Time{})
	}
	return &VirtualDriver{clock: c}
}

func (d *VirtualDriver) Clock() clock.Clock { return d.clock }

// Manual returns the underlying clock.
func (d *VirtualDriver) Manual() *clock.Manual { return d.clock }

func (d *VirtualDriver) Attach(l Loop) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loops = append(d.loops, l)
}

// pump drains every attached loop until none has work.
func (d *VirtualDriver) pump() {
	d.mu.Lock()
	loops := append([]Loop(nil), d.loops...)
	d.mu.Unlock()

	for {
		n := 0
		for _, l := range loops {
			n += l.Drain()
		}
		if n == 0 {
			return
		}
	}
}

func (d *VirtualDriver) Sleep(ctx context.Context, dur time.Duration) error {
	target := d.clock.Now().Add(dur)
	for step := 0; step < maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		d.pump()

		remaining := target.Sub(d.clock.Now())
		next, ok := d.clock.NextDeadline()
		if !ok || next > remaining {
			if remaining > 0 {
				d.clock.Advance(remaining)
			}
			d.pump()
			return nil
		}
		d.clock.Advance(next)
	}
	return fmt.Errorf("sleeping %s: still busy after %d steps", dur, maxSteps)
}

func (d *VirtualDriver) Until(ctx context.Context, done <-chan struct{}) error {
	for step := 0; step < maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		d.pump()

		select {
		case <-done:
			return nil
		default:
		}

		next, ok := d.clock.NextDeadline()
		if !ok {
			return ErrStalled
		}
		d.clock.Advance(next)
	}
	return fmt.Errorf("waiting: still busy after %d steps", maxSteps)
}

func (d *VirtualDriver) Close() error {
	d.pump()

	d.mu.Lock()
	loops := d.loops
	d.loops = nil
	d.mu.Unlock()

	for _, l := range loops {
		l.Close()
	}
	return nil
}
