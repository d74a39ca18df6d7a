package writer

import (
	"time"
)

// WriterConfig contains configuration for batch writers.
type WriterConfig struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     1000,
		FlushInterval: 5 * time.Second,
	}
}

// tradeRow represents a row to be inserted into the trades table.
type tradeRow struct {
	TsEvent      int64 // Nanoseconds
	TsRecv       int64 // Nanoseconds
	PublisherID  int32
	InstrumentID int64
	Price        int64 // Fixed-point, scale 1e-9; NULL when undefined
	PriceDefined bool
	Size         int64
	Action       string
	Side         string
	Sequence     int64
}

// ohlcvRow represents a row to be inserted into the ohlcv table.
type ohlcvRow struct {
	TsEvent      int64
	PublisherID  int32
	InstrumentID int64
	Schema       string // bar interval ("ohlcv-1s", "ohlcv-1m", ...)
	Open         int64
	High         int64
	Low          int64
	Close        int64
	Volume       int64
}

// WriterMetrics holds metrics for a writer.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}
