package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFO_PushPop(t *testing.T) {
	q := New[string]()

	require.True(t, q.Push("a"))

	got, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, "a", got)
}

func TestFIFO_Order(t *testing.T) {
	q := New[int]()
	for i := 1; i <= 3; i++ {
		q.Push(i)
	}

	for want := 1; want <= 3; want++ {
		got, ok := q.TryPop()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}

	_, ok := q.TryPop()
	assert.False(t, ok, "queue should be empty")
}

func TestFIFO_TryPopEmpty(t *testing.T) {
	q := New[int]()
	v, ok := q.TryPop()
	assert.False(t, ok)
	assert.Zero(t, v)
}

func TestFIFO_WaitSignalsAfterPush(t *testing.T) {
	q := New[int]()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Push(7)
	}()

	select {
	case <-q.Wait():
		v, ok := q.TryPop()
		require.True(t, ok)
		assert.Equal(t, 7, v)
	case <-time.After(time.Second):
		t.Fatal("wait did not fire")
	}
}

func TestFIFO_SignalsCoalesce(t *testing.T) {
	q := New[int]()
	q.Push(1)
	q.Push(2)
	q.Push(3)

	<-q.Wait()
	assert.Equal(t, 3, q.Len())

	select {
	case <-q.Wait():
		t.Fatal("second wait should not fire without a new push")
	default:
	}
}

func TestFIFO_CloseRejectsPush(t *testing.T) {
	q := New[int]()
	q.Push(1)
	q.Close()

	assert.True(t, q.Closed())
	assert.False(t, q.Push(2))

	// Elements queued before Close remain poppable.
	v, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestFIFO_CloseWakesWaiters(t *testing.T) {
	q := New[int]()
	done := make(chan struct{})

	go func() {
		<-q.Wait()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()
	q.Close() // idempotent

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("close did not wake waiter")
	}
}

func TestFIFO_ConcurrentPush(t *testing.T) {
	q := New[int]()
	const producers = 20
	const perProducer = 50

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(i)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, producers*perProducer, q.Len())
}
