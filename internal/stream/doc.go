// Package stream bridges push-based record producers to pull-based
// consumers. The producer callback typically runs on a transport-owned
// goroutine; the queue preserves push order, applies backpressure in its
// bounded mode, and guarantees a terminal error surfaces to the consumer
// exactly once.
package stream
