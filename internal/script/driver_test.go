package script

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/narrator/internal/clock"
)

// countingLoop records how it was driven.
type countingLoop struct {
	pending atomic.Int32
	drained atomic.Int32
	closed  atomic.Bool
	ran     chan struct{}
}

func (l *countingLoop) Run(ctx context.Context) error {
	if l.ran != nil {
		close(l.ran)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (l *countingLoop) Drain() int {
	n := int(l.pending.Swap(0))
	l.drained.Add(int32(n))
	return n
}

func (l *countingLoop) Close() { l.closed.Store(true) }

func TestVirtualDriver_SleepAdvancesExactly(t *testing.T) {
	d := NewVirtualDriver(nil)
	start := d.Clock().Now()

	var fired []time.Duration
	d.Clock().AfterFunc(300*time.Millisecond, func() { fired = append(fired, d.Clock().Now().Sub(start)) })
	d.Clock().AfterFunc(3*time.Second, func() { fired = append(fired, d.Clock().Now().Sub(start)) })

	require.NoError(t, d.Sleep(context.Background(), time.Second))
	assert.Equal(t, time.Second, d.Clock().Now().Sub(start))
	assert.Equal(t, []time.Duration{300 * time.Millisecond}, fired)
	assert.Equal(t, 1, d.Manual().Pending())
}

func TestVirtualDriver_SleepPumpsLoops(t *testing.T) {
	d := NewVirtualDriver(nil)
	l := &countingLoop{}
	d.Attach(l)

	d.Clock().AfterFunc(100*time.Millisecond, func() { l.pending.Add(2) })
	require.NoError(t, d.Sleep(context.Background(), 200*time.Millisecond))
	assert.EqualValues(t, 2, l.drained.Load())

	require.NoError(t, d.Close())
	assert.True(t, l.closed.Load())
}

func TestVirtualDriver_Until(t *testing.T) {
	d := NewVirtualDriver(clock.NewManual(time.Time{}))
	start := d.Clock().Now()
	done := make(chan struct{})
	d.Clock().AfterFunc(90*time.Second, func() { close(done) })

	require.NoError(t, d.Until(context.Background(), done))
	assert.Equal(t, 90*time.Second, d.Clock().Now().Sub(start))
}

func TestVirtualDriver_UntilStalls(t *testing.T) {
	d := NewVirtualDriver(nil)
	err := d.Until(context.Background(), make(chan struct{}))
	assert.True(t, errors.Is(err, ErrStalled))
}

func TestVirtualDriver_Cancelled(t *testing.T) {
	d := NewVirtualDriver(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, d.Sleep(ctx, time.Second), context.Canceled)
	assert.ErrorIs(t, d.Until(ctx, make(chan struct{})), context.Canceled)
}

func TestRealDriver(t *testing.T) {
	d := NewRealDriver(context.Background())
	l := &countingLoop{ran: make(chan struct{})}
	d.Attach(l)

	select {
	case <-l.ran:
	case <-time.After(5 * time.Second):
		t.Fatal("loop never started")
	}

	require.NoError(t, d.Sleep(context.Background(), time.Millisecond))

	done := make(chan struct{})
	close(done)
	require.NoError(t, d.Until(context.Background(), done))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Sleep(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, d.Until(ctx, make(chan struct{})), context.Canceled)
}
