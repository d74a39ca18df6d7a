package live

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Alparse/databento-client-sub000/internal/dbn"
	"github.com/Alparse/databento-client-sub000/internal/stream"
)

// Lifecycle phases checked by every transport callback. Distinct from
// the connection State: the lifecycle answers "may a callback still
// touch controller state", the State answers "where is the connection".
const (
	lcIdle int32 = iota
	lcActive
	lcStopping
	lcStopped
)

// Controller owns a live session: the recorded subscription set, the
// connection state machine, and the bridge between the transport's read
// goroutine and the consumer. One controller drives one transport.
type Controller struct {
	cfg    Config
	tr     Transport
	logger *slog.Logger
	id     uuid.UUID

	bridge *stream.Bridge

	// lifecycle gates every callback; cbMu is held for the full
	// duration of each callback so Stop can wait for quiescence by
	// acquiring it.
	lifecycle atomic.Int32
	cbMu      sync.Mutex

	started atomic.Bool

	mu    sync.Mutex
	state State
	subs  []Subscription
	meta  *dbn.Metadata
}

// NewController creates a controller over tr. A nil logger falls back
// to slog.Default().
func NewController(cfg Config, tr Transport, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	id := uuid.New()

	return &Controller{
		cfg:    cfg,
		tr:     tr,
		logger: logger.With("session_id", id.String()),
		id:     id,
		bridge: stream.NewBridge(cfg.BufferSize),
		state:  StateDisconnected,
	}
}

// ID returns the session id.
func (c *Controller) ID() uuid.UUID { return c.id }

// State returns the current connection state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	if prev != s {
		c.logger.Debug("session state", "from", prev.String(), "to", s.String())
	}
}

// Metadata returns the stream metadata received on Start, or nil if
// none has arrived yet.
func (c *Controller) Metadata() *dbn.Metadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meta
}

// Subscribe records a subscription request. Valid before Start; when
// the session is already connected the request is also issued against
// the current connection immediately.
func (c *Controller) Subscribe(ctx context.Context, dataset, schema string, symbols ...string) error {
	return c.subscribe(ctx, Subscription{Dataset: dataset, Schema: schema, Symbols: symbols})
}

// SubscribeWithSnapshot is Subscribe plus a request for an initial
// snapshot before live deltas.
func (c *Controller) SubscribeWithSnapshot(ctx context.Context, dataset, schema string, symbols ...string) error {
	return c.subscribe(ctx, Subscription{Dataset: dataset, Schema: schema, Symbols: symbols, Snapshot: true})
}

func (c *Controller) subscribe(ctx context.Context, sub Subscription) error {
	if c.lifecycle.Load() >= lcStopping {
		return ErrStopped
	}
	if err := sub.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	connected := c.state == StateConnected || c.state == StateStreaming
	c.mu.Unlock()

	if connected {
		if err := c.tr.Subscribe(ctx, sub); err != nil {
			return fmt.Errorf("subscribe %s/%s: %w", sub.Dataset, sub.Schema, err)
		}
	}

	c.logger.Debug("subscription recorded",
		"dataset", sub.Dataset,
		"schema", sub.Schema,
		"symbols", len(sub.Symbols),
		"snapshot", sub.Snapshot,
	)
	return nil
}

// Start connects, issues the recorded subscriptions, and begins
// streaming into the bridge. Only one Start per session may be in
// flight; a second call before Stop is a usage error.
func (c *Controller) Start(ctx context.Context) error {
	if c.lifecycle.Load() >= lcStopping {
		return ErrStopped
	}
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	c.mu.Lock()
	subs := make([]Subscription, len(c.subs))
	copy(subs, c.subs)
	alreadyConnected := c.state == StateConnected
	c.mu.Unlock()

	if len(subs) == 0 {
		c.started.Store(false)
		return ErrNoSubscriptions
	}

	if !alreadyConnected {
		c.setState(StateConnecting)
		if err := c.tr.Connect(ctx); err != nil {
			c.setState(StateDisconnected)
			c.started.Store(false)
			return fmt.Errorf("connect: %w", err)
		}
		c.setState(StateConnected)

		for _, sub := range subs {
			if err := c.tr.Subscribe(ctx, sub); err != nil {
				c.started.Store(false)
				return fmt.Errorf("subscribe %s/%s: %w", sub.Dataset, sub.Schema, err)
			}
		}
	}

	c.lifecycle.Store(lcActive)

	h := Handler{
		OnMetadata: c.onMetadata,
		OnRecord:   c.onRecord,
		OnError:    c.onError,
	}
	if err := c.tr.Start(ctx, h); err != nil {
		c.lifecycle.Store(lcIdle)
		c.started.Store(false)
		return fmt.Errorf("start session: %w", err)
	}

	c.setState(StateStreaming)
	c.logger.Info("session streaming", "subscriptions", len(subs))
	return nil
}

// Next returns the next decoded record in arrival order. It blocks
// until a record arrives, the stream ends (io.EOF), the terminal error
// is due, or ctx is cancelled.
func (c *Controller) Next(ctx context.Context) (dbn.Record, error) {
	return c.bridge.Next(ctx)
}

// Stats returns counters for the record queue.
func (c *Controller) Stats() stream.QueueStats {
	return c.bridge.Stats()
}

// Stop shuts the session down. Idempotent. Teardown order: flip the
// lifecycle to stopping so every in-flight callback bails out, wait a
// bounded interval for the running callback (if any) to drain, then
// release the transport.
func (c *Controller) Stop(ctx context.Context) error {
	for {
		cur := c.lifecycle.Load()
		if cur >= lcStopping {
			return nil
		}
		if c.lifecycle.CompareAndSwap(cur, lcStopping) {
			break
		}
	}

	if err := c.tr.Stop(ctx); err != nil {
		c.logger.Warn("transport stop", "error", err)
	}

	// End the sequence before waiting: a callback blocked inside a full
	// queue must observe the close and bail, or the wait below can
	// never succeed.
	c.bridge.Complete()

	// Quiescence wait: the callback holds cbMu for its full duration,
	// so acquiring it here means no callback is mid-flight. Exceeding
	// the bound is reported, not fatal.
	acquired := make(chan struct{})
	go func() {
		c.cbMu.Lock()
		c.cbMu.Unlock()
		close(acquired)
	}()

	timer := time.NewTimer(c.cfg.QuiesceTimeout)
	defer timer.Stop()
	select {
	case <-acquired:
	case <-timer.C:
		c.logger.Warn("quiescence timeout, callback may still be running",
			"timeout", c.cfg.QuiesceTimeout,
		)
	case <-ctx.Done():
		c.logger.Warn("stop cancelled before quiescence", "error", ctx.Err())
	}

	err := c.tr.Close()
	c.lifecycle.Store(lcStopped)
	c.setState(StateStopped)
	if err != nil {
		c.logger.Warn("transport close", "error", err)
	}
	c.logger.Info("session stopped")
	return nil
}

// Reconnect stops the current stream and establishes a fresh
// connection. The session returns to Connected; it does not resume
// streaming or re-issue subscriptions. Call Resubscribe and Start for
// that.
func (c *Controller) Reconnect(ctx context.Context) error {
	if c.lifecycle.Load() >= lcStopping {
		return ErrStopped
	}

	c.setState(StateReconnecting)
	c.lifecycle.Store(lcIdle)
	c.started.Store(false)

	if err := c.tr.Reconnect(ctx); err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("reconnect: %w", err)
	}

	c.setState(StateConnected)
	c.logger.Info("session reconnected")
	return nil
}

// Resubscribe re-issues every recorded subscription, in original
// order, against the current connection.
func (c *Controller) Resubscribe(ctx context.Context) error {
	if c.lifecycle.Load() >= lcStopping {
		return ErrStopped
	}

	c.mu.Lock()
	connected := c.state == StateConnected || c.state == StateStreaming
	subs := make([]Subscription, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	if !connected {
		return ErrNotConnected
	}

	for _, sub := range subs {
		if err := c.tr.Subscribe(ctx, sub); err != nil {
			return fmt.Errorf("resubscribe %s/%s: %w", sub.Dataset, sub.Schema, err)
		}
	}

	c.logger.Info("resubscribed", "subscriptions", len(subs))
	return nil
}

// Subscriptions returns a copy of the recorded subscription set.
func (c *Controller) Subscriptions() []Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Subscription, len(c.subs))
	copy(out, c.subs)
	return out
}

func (c *Controller) onMetadata(meta *dbn.Metadata) {
	if c.lifecycle.Load() != lcActive {
		return
	}
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	if c.lifecycle.Load() != lcActive {
		return
	}

	c.mu.Lock()
	c.meta = meta
	c.mu.Unlock()
	c.logger.Debug("metadata received", "dataset", meta.Dataset, "mappings", len(meta.Mappings))
}

// onRecord runs on the transport's read goroutine. Returning false
// tells the transport to cease delivery.
func (c *Controller) onRecord(raw RawRecord) bool {
	if c.lifecycle.Load() != lcActive {
		return false
	}
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	if c.lifecycle.Load() != lcActive {
		return false
	}

	// The transport may reuse raw.Data after we return.
	rec, err := dbn.Decode(bytes.Clone(raw.Data), dbn.RType(raw.RType))
	if err != nil {
		if c.cfg.Strict {
			c.bridge.Fail(err)
			return false
		}
		c.logger.Warn("skipping undecodable record", "rtype", raw.RType, "error", err)
		return true
	}

	return c.bridge.Deliver(rec)
}

func (c *Controller) onError(err error) {
	if c.lifecycle.Load() != lcActive {
		return
	}
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	if c.lifecycle.Load() != lcActive {
		return
	}

	c.logger.Error("transport error", "error", err)
	c.bridge.Fail(err)
}
