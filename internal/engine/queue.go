package engine

import "sync"

// fifo is an unbounded, thread-safe FIFO queue.
//
// It backs both the command queue and every subscriber mailbox. Push never
// blocks, which is what keeps Dispatch and event publication non-blocking.
//
// Waiters use Wait with select for context-aware blocking. The signal channel
// is buffered with size 1 so that many pushes coalesce into one wakeup.
type fifo[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	signal chan struct{}
}

func newFIFO[T any]() *fifo[T] {
	return &fifo[T]{
		items:  make([]T, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Push appends v. Returns false if the queue is closed.
func (q *fifo[T]) Push(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, v)
	q.signalLocked()
	return true
}

// TryPop removes and returns the head without blocking.
func (q *fifo[T]) TryPop() (T, bool) {
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

// Snapshot returns a copy of the queued values, head first.
func (q *fifo[T]) Snapshot() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]T, len(q.items))
	copy(out, q.items)
	return out
}

// Clear drops every queued value and returns them, head first.
func (q *fifo[T]) Clear() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := q.items
	q.items = make([]T, 0, 16)
	return dropped
}

// PushFront puts v back at the head. Returns false if the queue is closed.
func (q *fifo[T]) PushFront(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append([]T{v}, q.items...)
	q.signalLocked()
	return true
}

// Signal wakes one waiter without queueing a value.
func (q *fifo[T]) Signal() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.signalLocked()
	}
}

func (q *fifo[T]) signalLocked() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Len returns the number of queued values.
func (q *fifo[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Wait returns a channel that receives when values may be available.
// The channel is closed once the queue is closed.
func (q *fifo[T]) Wait() <-chan struct{} {
	return q.signal
}

// Close rejects further pushes and wakes all waiters. Queued values can
// still be popped.
func (q *fifo[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Closed reports whether Close has been called.
func (q *fifo[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
