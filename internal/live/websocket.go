package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Alparse/databento-client-sub000/internal/dbn"
)

// WSConfig configures a WebSocket gateway transport.
type WSConfig struct {
	URL               string        // Gateway URL (e.g. wss://gateway.example.com/v0/live)
	APIKey            string        // Bearer token for the Authorization header
	HandshakeTimeout  time.Duration // Dial timeout
	WriteTimeout      time.Duration // Write deadline for sends
	HeartbeatInterval time.Duration // Keepalive ping cadence
	PingTimeout       time.Duration // Max time without ping before the connection is stale
	CommandTimeout    time.Duration // Timeout for subscribe/start command responses
	TsOut             bool          // Ask the gateway to append send timestamps to records
}

// DefaultWSConfig returns sensible defaults.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      5 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		PingTimeout:       60 * time.Second,
		CommandTimeout:    10 * time.Second,
	}
}

// gateway wire frames. Text frames carry commands and their responses;
// binary frames carry DBN: the first after start is metadata, the rest
// are records with the rtype at byte 1.
type wsCommand struct {
	ID     int64           `json:"id"`
	Cmd    string          `json:"cmd"`
	Params json.RawMessage `json:"params,omitempty"`
}

type wsSubscribeParams struct {
	Dataset  string   `json:"dataset"`
	Schema   string   `json:"schema"`
	Symbols  []string `json:"symbols"`
	Snapshot bool     `json:"snapshot,omitempty"`
}

type wsStartParams struct {
	TsOut bool `json:"ts_out,omitempty"`
}

type wsResponse struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"` // "ok" or "error"
	Msg  json.RawMessage `json:"msg"`
}

type wsErrorMsg struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WSTransport is a Transport over a gorilla WebSocket connection.
type WSTransport struct {
	cfg    WSConfig
	logger *slog.Logger

	writeMu sync.Mutex
	cmdID   atomic.Int64

	mu         sync.RWMutex
	conn       *websocket.Conn
	connected  bool
	closed     bool
	lastPingAt time.Time
	done       chan struct{}

	pendingMu sync.Mutex
	pending   map[int64]chan wsResponse

	streamMu  sync.Mutex
	streaming bool
	handler   Handler
}

// NewWSTransport creates a WebSocket transport. A nil logger falls
// back to slog.Default().
func NewWSTransport(cfg WSConfig, logger *slog.Logger) *WSTransport {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 60 * time.Second
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 10 * time.Second
	}

	return &WSTransport{
		cfg:     cfg,
		logger:  logger,
		pending: make(map[int64]chan wsResponse),
	}
}

// Connect dials the gateway.
func (t *WSTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrStopped
	}
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	header := http.Header{}
	if t.cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+t.cfg.APIKey)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: t.cfg.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, t.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", t.cfg.URL, err)
	}

	t.mu.Lock()
	t.conn = conn
	t.connected = true
	t.lastPingAt = time.Now()
	t.done = make(chan struct{})
	done := t.done
	t.mu.Unlock()

	conn.SetPingHandler(func(data string) error {
		t.mu.Lock()
		t.lastPingAt = time.Now()
		t.mu.Unlock()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})
	conn.SetPongHandler(func(string) error {
		t.mu.Lock()
		t.lastPingAt = time.Now()
		t.mu.Unlock()
		return nil
	})

	go t.readLoop(conn, done)
	go t.heartbeatLoop(conn, done)

	t.logger.Debug("gateway connected", "url", t.cfg.URL)
	return nil
}

// Subscribe sends a subscribe command and waits for the response.
func (t *WSTransport) Subscribe(ctx context.Context, sub Subscription) error {
	params, err := json.Marshal(wsSubscribeParams{
		Dataset:  sub.Dataset,
		Schema:   sub.Schema,
		Symbols:  sub.Symbols,
		Snapshot: sub.Snapshot,
	})
	if err != nil {
		return err
	}

	resp, err := t.command(ctx, "subscribe", params)
	if err != nil {
		return err
	}
	if resp.Type == "error" {
		var em wsErrorMsg
		json.Unmarshal(resp.Msg, &em)
		return fmt.Errorf("subscribe rejected: %s: %s", em.Code, em.Message)
	}

	t.logger.Debug("subscribed",
		"dataset", sub.Dataset,
		"schema", sub.Schema,
		"symbols", len(sub.Symbols),
	)
	return nil
}

// Start attaches h and sends the start command. Record frames arriving
// before Start are dropped; command responses are routed from Connect
// onward.
func (t *WSTransport) Start(ctx context.Context, h Handler) error {
	t.mu.RLock()
	connected := t.connected
	t.mu.RUnlock()
	if !connected {
		return ErrNotConnected
	}

	t.streamMu.Lock()
	if t.streaming {
		t.streamMu.Unlock()
		return ErrAlreadyStarted
	}
	t.handler = h
	t.streaming = true
	t.streamMu.Unlock()

	params, err := json.Marshal(wsStartParams{TsOut: t.cfg.TsOut})
	if err != nil {
		t.streamMu.Lock()
		t.streaming = false
		t.handler = Handler{}
		t.streamMu.Unlock()
		return err
	}

	resp, err := t.command(ctx, "start", params)
	if err != nil {
		t.streamMu.Lock()
		t.streaming = false
		t.handler = Handler{}
		t.streamMu.Unlock()
		return err
	}
	if resp.Type == "error" {
		t.streamMu.Lock()
		t.streaming = false
		t.handler = Handler{}
		t.streamMu.Unlock()
		var em wsErrorMsg
		json.Unmarshal(resp.Msg, &em)
		return fmt.Errorf("start rejected: %s: %s", em.Code, em.Message)
	}
	return nil
}

func (t *WSTransport) currentHandler() (Handler, bool) {
	t.streamMu.Lock()
	defer t.streamMu.Unlock()
	return t.handler, t.streaming
}

// Stop signals the read loop to exit and tells the gateway to cease.
// The stop frame is fire-and-forget: the read loop that would route
// its response is already on the way out.
func (t *WSTransport) Stop(ctx context.Context) error {
	t.streamMu.Lock()
	streaming := t.streaming
	t.streaming = false
	t.streamMu.Unlock()

	t.mu.Lock()
	conn := t.conn
	connected := t.connected
	if t.done != nil {
		select {
		case <-t.done:
		default:
			close(t.done)
		}
	}
	t.mu.Unlock()

	if !streaming || !connected || conn == nil {
		return nil
	}

	data, err := json.Marshal(wsCommand{ID: t.cmdID.Add(1), Cmd: "stop"})
	if err != nil {
		return err
	}
	t.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	err = conn.WriteMessage(websocket.TextMessage, data)
	t.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("send stop: %w", err)
	}
	return nil
}

// Reconnect tears down the current connection and dials again.
// Delivery is detached first so the deliberate close never surfaces as
// a stream error.
func (t *WSTransport) Reconnect(ctx context.Context) error {
	t.streamMu.Lock()
	t.streaming = false
	t.handler = Handler{}
	t.streamMu.Unlock()

	t.mu.Lock()
	t.connected = false
	if t.done != nil {
		select {
		case <-t.done:
		default:
			close(t.done)
		}
	}
	t.mu.Unlock()

	t.closeConn()

	t.pendingMu.Lock()
	t.pending = make(map[int64]chan wsResponse)
	t.pendingMu.Unlock()

	return t.Connect(ctx)
}

// Close releases the connection permanently.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.connected = false
	if t.done != nil {
		select {
		case <-t.done:
		default:
			close(t.done)
		}
	}
	t.mu.Unlock()

	return t.closeConn()
}

func (t *WSTransport) closeConn() error {
	t.mu.RLock()
	conn := t.conn
	t.mu.RUnlock()
	if conn == nil {
		return nil
	}

	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return conn.Close()
}

// command sends one command frame and waits for its correlated
// response.
func (t *WSTransport) command(ctx context.Context, cmd string, params json.RawMessage) (wsResponse, error) {
	t.mu.RLock()
	connected := t.connected
	conn := t.conn
	t.mu.RUnlock()
	if !connected {
		return wsResponse{}, ErrNotConnected
	}

	id := t.cmdID.Add(1)
	respCh := make(chan wsResponse, 1)

	t.pendingMu.Lock()
	t.pending[id] = respCh
	t.pendingMu.Unlock()
	defer func() {
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
	}()

	data, err := json.Marshal(wsCommand{ID: id, Cmd: cmd, Params: params})
	if err != nil {
		return wsResponse{}, err
	}

	t.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	err = conn.WriteMessage(websocket.TextMessage, data)
	t.writeMu.Unlock()
	if err != nil {
		return wsResponse{}, fmt.Errorf("send %s: %w", cmd, err)
	}

	select {
	case <-ctx.Done():
		return wsResponse{}, ctx.Err()
	case <-time.After(t.cfg.CommandTimeout):
		return wsResponse{}, fmt.Errorf("%s: %w", cmd, ErrTimeout)
	case resp := <-respCh:
		return resp, nil
	}
}

func (t *WSTransport) routeResponse(resp wsResponse) {
	t.pendingMu.Lock()
	ch, ok := t.pending[resp.ID]
	if ok {
		delete(t.pending, resp.ID)
	}
	t.pendingMu.Unlock()

	if ok {
		select {
		case ch <- resp:
		default:
		}
	}
}

// readLoop reads gateway frames from Connect until the connection
// drops. Text frames are command responses; binary frames go to the
// attached handler, whose callbacks are the foreign-thread boundary
// the controller guards against. It runs on its own goroutine.
func (t *WSTransport) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer func() {
		t.mu.Lock()
		t.connected = false
		t.mu.Unlock()
	}()

	sawMetadata := false
	for {
		select {
		case <-done:
			return
		default:
		}

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
			default:
				if h, ok := t.currentHandler(); ok && h.OnError != nil {
					h.OnError(err)
				}
			}
			return
		}

		switch msgType {
		case websocket.TextMessage:
			var resp wsResponse
			if json.Unmarshal(data, &resp) == nil && resp.ID != 0 {
				t.routeResponse(resp)
			}

		case websocket.BinaryMessage:
			h, streaming := t.currentHandler()
			if !streaming {
				t.logger.Debug("dropping binary frame before start", "len", len(data))
				continue
			}

			if !sawMetadata {
				sawMetadata = true
				meta, err := decodeMetadataFrame(data)
				if err != nil {
					if h.OnError != nil {
						h.OnError(fmt.Errorf("stream metadata: %w", err))
					}
					return
				}
				if h.OnMetadata != nil {
					h.OnMetadata(meta)
				}
				continue
			}

			if len(data) < dbn.HeaderSize {
				t.logger.Warn("short record frame", "len", len(data))
				continue
			}
			if !h.OnRecord(RawRecord{Data: data, RType: data[1]}) {
				t.streamMu.Lock()
				t.streaming = false
				t.streamMu.Unlock()
			}
		}
	}
}

// decodeMetadataFrame parses the "DBN" + version prelude in front of
// the metadata payload.
func decodeMetadataFrame(data []byte) (*dbn.Metadata, error) {
	if len(data) < len(dbn.Magic)+1 || string(data[:len(dbn.Magic)]) != dbn.Magic {
		return nil, fmt.Errorf("missing %s prelude", dbn.Magic)
	}
	version := data[len(dbn.Magic)]
	return dbn.DecodeMetadata(data[len(dbn.Magic)+1:], version)
}

// heartbeatLoop sends keepalive pings and closes the stream when the
// gateway goes quiet.
func (t *WSTransport) heartbeatLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(t.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(t.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				t.logger.Debug("failed to send ping", "error", err)
			}

			t.mu.RLock()
			lastPing := t.lastPingAt
			t.mu.RUnlock()

			if time.Since(lastPing) > t.cfg.PingTimeout {
				t.logger.Warn("gateway quiet past ping timeout",
					"last_ping", lastPing,
					"timeout", t.cfg.PingTimeout,
				)
				conn.Close()
				return
			}
		}
	}
}
