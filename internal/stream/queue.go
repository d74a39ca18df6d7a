package stream

import (
	"context"
	"io"
	"sync"
)

// Queue is a thread-safe FIFO connecting a push-style producer to a
// single pull-style consumer. The producer side may be driven from a
// goroutine the consumer neither owns nor controls; delivery order always
// matches push order.
//
// Two modes:
//   - bounded: Push blocks while the queue is full. This is the default;
//     it puts backpressure on the producer instead of growing without
//     limit under a stalled consumer.
//   - growable: the ring doubles when it reaches 70% capacity and Push
//     never blocks.
type Queue[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	buf      []T
	head     int
	tail     int
	count    int
	capacity int
	bounded  bool

	closed bool
	err    error // terminal producer error, delivered once
	errSet bool

	// Stats
	totalPushed int64
	totalPopped int64
	resizeCount int
}

// QueueStats is a snapshot of queue counters.
type QueueStats struct {
	Count       int
	Capacity    int
	TotalPushed int64
	TotalPopped int64
	ResizeCount int
}

// NewBounded creates a bounded blocking queue.
func NewBounded[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	q := &Queue[T]{
		buf:      make([]T, capacity),
		capacity: capacity,
		bounded:  true,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// NewGrowable creates an unbounded queue that doubles its capacity when
// it reaches 70% full.
func NewGrowable[T any](initialCapacity int) *Queue[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	q := &Queue[T]{
		buf:      make([]T, initialCapacity),
		capacity: initialCapacity,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Push appends an item. In bounded mode it blocks while the queue is
// full; a Close from either side unblocks it. Returns false once the
// queue is closed, which the producer must treat as a stop signal.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.bounded {
		for q.count == q.capacity && !q.closed {
			q.notFull.Wait()
		}
	}
	if q.closed {
		return false
	}

	if !q.bounded {
		threshold := (q.capacity * 70) / 100
		if threshold < 1 {
			threshold = 1
		}
		if q.count+1 >= threshold {
			q.grow()
		}
	}

	q.buf[q.tail] = item
	q.tail = (q.tail + 1) % q.capacity
	q.count++
	q.totalPushed++

	q.notEmpty.Signal()
	return true
}

// Pop removes the oldest item without blocking. Returns false when the
// queue is empty.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.popLocked(), true
}

// Next blocks until an item is available, the queue is closed, or ctx is
// cancelled. After close, remaining items drain in order; then a terminal
// producer error is returned exactly once, and io.EOF thereafter.
func (q *Queue[T]) Next(ctx context.Context) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.notEmpty.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		q.notEmpty.Wait()
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if q.count == 0 {
		if q.errSet {
			q.errSet = false
			return zero, q.err
		}
		return zero, io.EOF
	}
	return q.popLocked(), nil
}

// Close ends the queue normally. Remaining items stay readable; blocked
// producers and consumers wake. Safe to call more than once.
func (q *Queue[T]) Close() {
	q.closeWith(nil)
}

// CloseWithError ends the queue with a terminal producer error. The
// consumer sees the error exactly once, after draining buffered items.
// Only the first close wins.
func (q *Queue[T]) CloseWithError(err error) {
	q.closeWith(err)
}

func (q *Queue[T]) closeWith(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	if err != nil {
		q.err = err
		q.errSet = true
	}
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// Closed reports whether the queue has been closed.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of buffered items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the current capacity.
func (q *Queue[T]) Cap() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.capacity
}

// Stats returns a snapshot of queue counters.
func (q *Queue[T]) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Count:       q.count,
		Capacity:    q.capacity,
		TotalPushed: q.totalPushed,
		TotalPopped: q.totalPopped,
		ResizeCount: q.resizeCount,
	}
}

// popLocked removes the head item. Caller holds q.mu.
func (q *Queue[T]) popLocked() T {
	item := q.buf[q.head]
	var zero T
	q.buf[q.head] = zero
	q.head = (q.head + 1) % q.capacity
	q.count--
	q.totalPopped++
	q.notFull.Signal()
	return item
}

// grow doubles the capacity. Caller holds q.mu.
func (q *Queue[T]) grow() {
	newCapacity := q.capacity * 2
	newBuf := make([]T, newCapacity)

	if q.count > 0 {
		if q.head < q.tail {
			copy(newBuf, q.buf[q.head:q.tail])
		} else {
			n := copy(newBuf, q.buf[q.head:])
			copy(newBuf[n:], q.buf[:q.tail])
		}
	}

	q.buf = newBuf
	q.head = 0
	q.tail = q.count
	q.capacity = newCapacity
	q.resizeCount++
}
