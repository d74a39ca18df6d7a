package writer

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Alparse/databento-client-sub000/internal/dbn"
	"github.com/Alparse/databento-client-sub000/internal/stream"
)

// OhlcvWriter consumes bar records from a queue and writes to the
// ohlcv hypertable.
type OhlcvWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	input *stream.Queue[dbn.OhlcvMsg]
	db    *pgxpool.Pool

	batch       []ohlcvRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics WriterMetrics
}

// NewOhlcvWriter creates a new OhlcvWriter.
func NewOhlcvWriter(
	cfg WriterConfig,
	input *stream.Queue[dbn.OhlcvMsg],
	db *pgxpool.Pool,
	logger *slog.Logger,
) *OhlcvWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &OhlcvWriter{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger,
		batch:  make([]ohlcvRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming records and writing to the database.
func (w *OhlcvWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("ohlcv writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer.
func (w *OhlcvWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping ohlcv writer")

	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("ohlcv writer stopped")
	case <-ctx.Done():
		w.logger.Warn("ohlcv writer stop timed out")
	}

	w.flush()
	return nil
}

// Stats returns current metrics.
func (w *OhlcvWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

func (w *OhlcvWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		msg, err := w.input.Next(w.ctx)
		if err != nil {
			if err != io.EOF && w.ctx.Err() == nil {
				w.logger.Error("ohlcv input closed", "error", err)
			}
			return
		}
		w.handleRecord(msg)
	}
}

func (w *OhlcvWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush()
		}
	}
}

func (w *OhlcvWriter) handleRecord(msg dbn.OhlcvMsg) {
	row := w.transform(msg)

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

func (w *OhlcvWriter) transform(msg dbn.OhlcvMsg) ohlcvRow {
	h := msg.Head()
	return ohlcvRow{
		TsEvent:      int64(h.TsEvent),
		PublisherID:  int32(h.PublisherID),
		InstrumentID: int64(h.InstrumentID),
		Schema:       h.RType.String(),
		Open:         int64(msg.Open),
		High:         int64(msg.High),
		Low:          int64(msg.Low),
		Close:        int64(msg.Close),
		Volume:       int64(msg.Volume),
	}
}

func (w *OhlcvWriter) flush() {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	batch := w.batch
	w.batch = make([]ohlcvRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed bars",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

func (w *OhlcvWriter) batchInsert(rows []ohlcvRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO ohlcv (ts_event, publisher_id, instrument_id, schema, open, high, low, close, volume)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (ts_event, instrument_id, schema) DO NOTHING
		`, r.TsEvent, r.PublisherID, r.InstrumentID, r.Schema, r.Open, r.High, r.Low, r.Close, r.Volume)
	}

	results := w.db.SendBatch(w.ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
