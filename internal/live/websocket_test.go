package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Alparse/databento-client-sub000/internal/dbn"
)

// mockGateway runs a test WebSocket server speaking the gateway frame
// protocol: it acks every command and, after "start", replays frames.
func mockGateway(t *testing.T, frames [][]byte) (*httptest.Server, *gatewayState) {
	t.Helper()
	state := &gatewayState{}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state.mu.Lock()
		state.authHeader = r.Header.Get("Authorization")
		state.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var cmd wsCommand
			if err := json.Unmarshal(data, &cmd); err != nil {
				continue
			}

			state.mu.Lock()
			state.commands = append(state.commands, cmd.Cmd)
			state.mu.Unlock()

			ack, _ := json.Marshal(wsResponse{ID: cmd.ID, Type: "ok"})
			conn.WriteMessage(websocket.TextMessage, ack)

			if cmd.Cmd == "start" {
				for _, frame := range frames {
					conn.WriteMessage(websocket.BinaryMessage, frame)
				}
			}
		}
	}))
	return server, state
}

type gatewayState struct {
	mu         sync.Mutex
	commands   []string
	authHeader string
}

func (g *gatewayState) sawCommand(cmd string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range g.commands {
		if c == cmd {
			return true
		}
	}
	return false
}

func gwURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func metadataFrame(t *testing.T, meta *dbn.Metadata) []byte {
	t.Helper()
	payload, err := dbn.EncodeMetadata(meta)
	if err != nil {
		t.Fatalf("EncodeMetadata: %v", err)
	}
	frame := append([]byte(dbn.Magic), 3)
	return append(frame, payload...)
}

func recordFrame(t *testing.T, rec dbn.Record) []byte {
	t.Helper()
	data, err := dbn.Encode(rec)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return data
}

func TestWSTransport_StreamRoundTrip(t *testing.T) {
	meta := &dbn.Metadata{
		Dataset:       "XNAS.ITCH",
		Schema:        dbn.SchemaNone,
		SymbolCstrLen: dbn.DefaultSymbolCstrLen,
	}
	trade := dbn.TradeMsg{
		Header: dbn.Header{RType: dbn.RTypeMbp0, InstrumentID: 11667, TsEvent: 42},
		Price:  490050000000,
		Size:   100,
	}

	frames := [][]byte{
		metadataFrame(t, meta),
		recordFrame(t, trade),
	}
	server, state := mockGateway(t, frames)
	defer server.Close()

	cfg := DefaultWSConfig()
	cfg.URL = gwURL(server)
	cfg.APIKey = "test-key"
	tr := NewWSTransport(cfg, nil)

	ctx := context.Background()
	if err := tr.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Close()

	if err := tr.Subscribe(ctx, Subscription{Dataset: "XNAS.ITCH", Schema: "trades", Symbols: []string{"NVDA"}}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	var (
		mu      sync.Mutex
		gotMeta *dbn.Metadata
		gotRecs []RawRecord
	)
	h := Handler{
		OnMetadata: func(m *dbn.Metadata) {
			mu.Lock()
			gotMeta = m
			mu.Unlock()
		},
		OnRecord: func(raw RawRecord) bool {
			mu.Lock()
			cp := RawRecord{Data: append([]byte(nil), raw.Data...), RType: raw.RType}
			gotRecs = append(gotRecs, cp)
			mu.Unlock()
			return true
		},
	}
	if err := tr.Start(ctx, h); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		done := gotMeta != nil && len(gotRecs) == 1
		mu.Unlock()
		if done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for metadata and record")
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotMeta.Dataset != "XNAS.ITCH" {
		t.Errorf("metadata dataset = %q, want XNAS.ITCH", gotMeta.Dataset)
	}
	if gotRecs[0].RType != byte(dbn.RTypeMbp0) {
		t.Errorf("record rtype = %#x, want trade", gotRecs[0].RType)
	}
	rec, err := dbn.Decode(gotRecs[0].Data, dbn.RType(gotRecs[0].RType))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := rec.(dbn.TradeMsg); got.Price != trade.Price {
		t.Errorf("price = %d, want %d", got.Price, trade.Price)
	}

	if state.authHeader != "Bearer test-key" {
		t.Errorf("auth header = %q, want bearer token", state.authHeader)
	}
	if !state.sawCommand("subscribe") || !state.sawCommand("start") {
		t.Errorf("gateway commands = %v, want subscribe and start", state.commands)
	}
}

func TestWSTransport_StartBeforeConnect(t *testing.T) {
	tr := NewWSTransport(DefaultWSConfig(), nil)
	err := tr.Start(context.Background(), Handler{OnRecord: func(RawRecord) bool { return true }})
	if err == nil {
		t.Fatal("Start before Connect should fail")
	}
}

func TestWSTransport_StopEndsDelivery(t *testing.T) {
	trade := dbn.TradeMsg{Header: dbn.Header{RType: dbn.RTypeMbp0, InstrumentID: 1}}
	frames := [][]byte{
		metadataFrame(t, &dbn.Metadata{Dataset: "TEST", Schema: dbn.SchemaNone, SymbolCstrLen: dbn.DefaultSymbolCstrLen}),
		recordFrame(t, trade),
	}
	server, _ := mockGateway(t, frames)
	defer server.Close()

	cfg := DefaultWSConfig()
	cfg.URL = gwURL(server)
	tr := NewWSTransport(cfg, nil)

	ctx := context.Background()
	if err := tr.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Close()

	seen := make(chan struct{}, 16)
	h := Handler{
		OnRecord: func(RawRecord) bool {
			seen <- struct{}{}
			return true
		},
	}
	if err := tr.Start(ctx, h); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-seen:
	case <-time.After(2 * time.Second):
		t.Fatal("no record delivered")
	}

	if err := tr.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	// Idempotent.
	if err := tr.Stop(ctx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}
