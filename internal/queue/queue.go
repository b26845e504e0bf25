// Package queue provides the FIFO used by single-writer event loops.
package queue

import "sync"

// FIFO is a thread-safe unbounded first-in first-out queue.
//
// The queue is unbounded so that timer and narration callbacks never block
// while the owning loop is busy. Producers call Push from any goroutine; a
// single consumer drains with TryPop and waits on Wait.
//
// The signal channel has a buffer of 1, so multiple pushes between two waits
// coalesce into one wake-up. Consumers must therefore drain with TryPop until
// it reports empty before waiting again.
type FIFO[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	signal chan struct{}
}

// New creates an empty queue.
func New[T any]() *FIFO[T] {
	return &FIFO[T]{
		items:  make([]T, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Push appends v to the back of the queue.
// Returns false if the queue is closed.
func (q *FIFO[T]) Push(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, v)

	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryPop removes and returns the front element without blocking.
// Returns false if the queue is empty.
func (q *FIFO[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	v := q.items[0]
	// Clear the slot so the backing array does not pin popped values.
	q.items[0] = zero

	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}

	return v, true
}

// Wait returns a channel that fires when elements may be available.
// The channel is closed when the queue is closed.
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-q.Wait():
//	    // drain with TryPop
//	}
func (q *FIFO[T]) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued elements.
func (q *FIFO[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether Close has been called.
func (q *FIFO[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close rejects further pushes and wakes every waiter.
// Elements already queued stay available to TryPop.
func (q *FIFO[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
