package stream

import (
	"context"

	"github.com/Alparse/databento-client-sub000/internal/dbn"
)

// Bridge converts a callback-driven record producer into a pull-based,
// strictly ordered record sequence. The producer side (Deliver, Fail,
// Complete) may be invoked from a foreign goroutine; the consumer side
// (Next) is drained by exactly one logical consumer.
type Bridge struct {
	q *Queue[dbn.Record]
}

// NewBridge creates a bridge over a bounded blocking queue. The producer
// blocks when the consumer falls more than capacity records behind.
func NewBridge(capacity int) *Bridge {
	return &Bridge{q: NewBounded[dbn.Record](capacity)}
}

// NewGrowableBridge creates a bridge that never blocks the producer.
// Unbounded growth under a stalled consumer is the caller's risk.
func NewGrowableBridge(initialCapacity int) *Bridge {
	return &Bridge{q: NewGrowable[dbn.Record](initialCapacity)}
}

// Deliver hands one record to the consumer side. Returns false once the
// bridge is closed; the producer must stop on false.
func (b *Bridge) Deliver(rec dbn.Record) bool {
	return b.q.Push(rec)
}

// Complete ends the sequence normally. The consumer drains buffered
// records, then Next returns io.EOF.
func (b *Bridge) Complete() {
	b.q.Close()
}

// Fail ends the sequence with a terminal error, raised by Next exactly
// once after buffered records drain.
func (b *Bridge) Fail(err error) {
	b.q.CloseWithError(err)
}

// Next returns the next record in producer order. It blocks until a
// record arrives, the sequence ends (io.EOF), a terminal error is due, or
// ctx is cancelled.
func (b *Bridge) Next(ctx context.Context) (dbn.Record, error) {
	return b.q.Next(ctx)
}

// Closed reports whether the sequence has ended.
func (b *Bridge) Closed() bool {
	return b.q.Closed()
}

// Stats returns queue counters for observability.
func (b *Bridge) Stats() QueueStats {
	return b.q.Stats()
}
