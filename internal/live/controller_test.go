package live

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/Alparse/databento-client-sub000/internal/dbn"
)

// fakeTransport records calls and lets tests drive the handler
// callbacks directly, standing in for the gateway's read goroutine.
type fakeTransport struct {
	mu         sync.Mutex
	connects   int
	reconnects int
	stops      int
	closes     int
	subs       []Subscription
	handler    Handler
	started    bool

	connectErr   error
	subscribeErr error
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connects++
	return nil
}

func (f *fakeTransport) Subscribe(ctx context.Context, sub Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.subs = append(f.subs, sub)
	return nil
}

func (f *fakeTransport) Start(ctx context.Context, h Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
	f.started = true
	return nil
}

func (f *fakeTransport) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.started = false
	return nil
}

func (f *fakeTransport) Reconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconnects++
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

// push delivers one encoded record through the handler the way the
// transport's read loop would.
func (f *fakeTransport) push(t *testing.T, rec dbn.Record) bool {
	t.Helper()
	data, err := dbn.Encode(rec)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h.OnRecord == nil {
		t.Fatal("transport never started")
	}
	return h.OnRecord(RawRecord{Data: data, RType: data[1]})
}

func newTestController(t *testing.T, tr Transport) *Controller {
	t.Helper()
	cfg := DefaultConfig()
	cfg.QuiesceTimeout = time.Second
	return NewController(cfg, tr, nil)
}

func TestController_StateMachine(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestController(t, tr)
	ctx := context.Background()

	if got := c.State(); got != StateDisconnected {
		t.Fatalf("initial state = %v, want disconnected", got)
	}

	if err := c.Subscribe(ctx, "XNAS.ITCH", "trades", "NVDA"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := c.State(); got != StateStreaming {
		t.Errorf("state after Start = %v, want streaming", got)
	}
	if len(tr.subs) != 1 || tr.subs[0].Schema != "trades" {
		t.Errorf("transport subs = %+v, want one trades subscription", tr.subs)
	}

	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := c.State(); got != StateStopped {
		t.Errorf("state after Stop = %v, want stopped", got)
	}
	if tr.closes != 1 {
		t.Errorf("transport closes = %d, want 1", tr.closes)
	}
}

func TestController_SubscriptionValidation(t *testing.T) {
	tests := []struct {
		name    string
		dataset string
		schema  string
		symbols []string
	}{
		{"empty dataset", "", "trades", []string{"NVDA"}},
		{"empty schema", "XNAS.ITCH", "", []string{"NVDA"}},
		{"no symbols", "XNAS.ITCH", "trades", nil},
		{"empty symbol", "XNAS.ITCH", "trades", []string{""}},
		{"padded symbol", "XNAS.ITCH", "trades", []string{" NVDA"}},
	}

	c := newTestController(t, &fakeTransport{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Subscribe(context.Background(), tt.dataset, tt.schema, tt.symbols...); err == nil {
				t.Error("expected validation error")
			}
		})
	}
	if len(c.Subscriptions()) != 0 {
		t.Errorf("recorded %d subscriptions, want 0", len(c.Subscriptions()))
	}
}

func TestController_DoubleStart(t *testing.T) {
	c := newTestController(t, &fakeTransport{})
	ctx := context.Background()

	if err := c.Start(ctx); !errors.Is(err, ErrNoSubscriptions) {
		t.Fatalf("Start with no subscriptions = %v, want ErrNoSubscriptions", err)
	}

	if err := c.Subscribe(ctx, "XNAS.ITCH", "trades", "NVDA"); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Start(ctx); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}
}

func TestController_StopIdempotent(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestController(t, tr)
	ctx := context.Background()

	c.Subscribe(ctx, "XNAS.ITCH", "trades", "NVDA")
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := c.Stop(ctx); err != nil {
			t.Fatalf("Stop #%d: %v", i+1, err)
		}
	}
	if tr.closes != 1 {
		t.Errorf("transport closes = %d, want 1", tr.closes)
	}

	if err := c.Start(ctx); !errors.Is(err, ErrStopped) {
		t.Errorf("Start after Stop = %v, want ErrStopped", err)
	}
	if err := c.Subscribe(ctx, "XNAS.ITCH", "trades", "NVDA"); !errors.Is(err, ErrStopped) {
		t.Errorf("Subscribe after Stop = %v, want ErrStopped", err)
	}
}

func TestController_RecordFlow(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestController(t, tr)
	ctx := context.Background()

	c.Subscribe(ctx, "XNAS.ITCH", "trades", "NVDA")
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}

	want := dbn.TradeMsg{
		Header: dbn.Header{
			RType:        dbn.RTypeMbp0,
			PublisherID:  1,
			InstrumentID: 11667,
			TsEvent:      1704222000000000000,
		},
		Price: 490050000000,
		Size:  100,
	}
	if !tr.push(t, want) {
		t.Fatal("push rejected while streaming")
	}

	rec, err := c.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	trade, ok := rec.(dbn.TradeMsg)
	if !ok {
		t.Fatalf("Next returned %T, want TradeMsg", rec)
	}
	if trade.Price != want.Price || trade.Head().InstrumentID != 11667 {
		t.Errorf("trade = %+v, want price %d iid 11667", trade, want.Price)
	}
}

func TestController_NoCallbacksAfterStop(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestController(t, tr)
	ctx := context.Background()

	c.Subscribe(ctx, "XNAS.ITCH", "trades", "NVDA")
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.Stop(ctx); err != nil {
		t.Fatal(err)
	}

	rec := dbn.TradeMsg{Header: dbn.Header{RType: dbn.RTypeMbp0, InstrumentID: 1}}
	if tr.push(t, rec) {
		t.Error("push accepted after Stop; callback must signal stop")
	}

	// The stream ended at Stop; nothing pushed afterwards may surface.
	if _, err := c.Next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("Next after Stop = %v, want io.EOF", err)
	}
}

func TestController_TransportErrorTerminal(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestController(t, tr)
	ctx := context.Background()

	c.Subscribe(ctx, "XNAS.ITCH", "trades", "NVDA")
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}

	wantErr := errors.New("gateway reset")
	tr.handler.OnError(wantErr)

	if _, err := c.Next(ctx); !errors.Is(err, wantErr) {
		t.Fatalf("Next = %v, want the transport error", err)
	}
	// Exactly once, then exhaustion.
	if _, err := c.Next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("second Next = %v, want io.EOF", err)
	}
}

func TestController_ReconnectResubscribe(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestController(t, tr)
	ctx := context.Background()

	c.Subscribe(ctx, "XNAS.ITCH", "trades", "NVDA")
	c.Subscribe(ctx, "XNAS.ITCH", "mbp-1", "NVDA", "AMD")
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}

	if err := c.Reconnect(ctx); err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	if got := c.State(); got != StateConnected {
		t.Errorf("state after Reconnect = %v, want connected", got)
	}
	if tr.reconnects != 1 {
		t.Errorf("transport reconnects = %d, want 1", tr.reconnects)
	}

	// Reconnect does not resubscribe on its own.
	before := len(tr.subs)
	if err := c.Resubscribe(ctx); err != nil {
		t.Fatalf("Resubscribe: %v", err)
	}
	replayed := tr.subs[before:]
	if len(replayed) != 2 {
		t.Fatalf("replayed %d subscriptions, want 2", len(replayed))
	}
	if replayed[0].Schema != "trades" || replayed[1].Schema != "mbp-1" {
		t.Errorf("replay order = %q,%q, want trades,mbp-1", replayed[0].Schema, replayed[1].Schema)
	}

	// Start may run again after an explicit reconnect.
	if err := c.Start(ctx); err != nil {
		t.Errorf("Start after Reconnect: %v", err)
	}
}

func TestController_StrictDecodeError(t *testing.T) {
	tr := &fakeTransport{}
	cfg := DefaultConfig()
	cfg.Strict = true
	c := NewController(cfg, tr, nil)
	ctx := context.Background()

	c.Subscribe(ctx, "XNAS.ITCH", "trades", "NVDA")
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}

	// Truncated trade frame: header only.
	short := make([]byte, dbn.HeaderSize)
	short[0] = dbn.HeaderSize / 4
	short[1] = byte(dbn.RTypeMbp0)
	if tr.handler.OnRecord(RawRecord{Data: short, RType: short[1]}) {
		t.Error("strict mode must stop the producer on a decode failure")
	}

	var de *dbn.DecodeError
	if _, err := c.Next(ctx); !errors.As(err, &de) {
		t.Errorf("Next = %v, want DecodeError", err)
	}
}

func TestController_LenientDecodeError(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestController(t, tr)
	ctx := context.Background()

	c.Subscribe(ctx, "XNAS.ITCH", "trades", "NVDA")
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}

	short := make([]byte, dbn.HeaderSize)
	short[0] = dbn.HeaderSize / 4
	short[1] = byte(dbn.RTypeMbp0)
	if !tr.handler.OnRecord(RawRecord{Data: short, RType: short[1]}) {
		t.Error("lenient mode must keep the producer running")
	}

	good := dbn.TradeMsg{Header: dbn.Header{RType: dbn.RTypeMbp0, InstrumentID: 7}, Price: 1}
	tr.push(t, good)

	rec, err := c.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if rec.Head().InstrumentID != 7 {
		t.Errorf("got record %+v, want the record after the skipped one", rec)
	}
}

func TestController_TeardownRace(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestController(t, tr)
	ctx := context.Background()

	c.Subscribe(ctx, "XNAS.ITCH", "trades", "NVDA")
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}

	// Hammer the callback from a producer goroutine while Stop runs.
	done := make(chan struct{})
	go func() {
		defer close(done)
		rec := dbn.TradeMsg{Header: dbn.Header{RType: dbn.RTypeMbp0, InstrumentID: 1}}
		data, _ := dbn.Encode(rec)
		for i := 0; i < 10000; i++ {
			if !tr.handler.OnRecord(RawRecord{Data: data, RType: data[1]}) {
				return
			}
		}
	}()

	// Drain so the bounded queue never wedges the producer.
	go func() {
		for {
			if _, err := c.Next(context.Background()); err != nil {
				return
			}
		}
	}()

	time.Sleep(5 * time.Millisecond)
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("producer still running after Stop returned")
	}
}

func TestController_MetadataOnStart(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestController(t, tr)
	ctx := context.Background()

	c.Subscribe(ctx, "XNAS.ITCH", "trades", "NVDA")
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}

	if c.Metadata() != nil {
		t.Fatal("metadata before any frame should be nil")
	}
	tr.handler.OnMetadata(&dbn.Metadata{Dataset: "XNAS.ITCH", Schema: 0})
	meta := c.Metadata()
	if meta == nil || meta.Dataset != "XNAS.ITCH" {
		t.Errorf("Metadata() = %+v, want dataset XNAS.ITCH", meta)
	}
}
