package live

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Errors
var (
	ErrAlreadyStarted  = errors.New("session already started")
	ErrStopped         = errors.New("session stopped")
	ErrNotConnected    = errors.New("not connected")
	ErrNoSubscriptions = errors.New("no subscriptions recorded")
	ErrTimeout         = errors.New("operation timeout")
	ErrStaleConnection = errors.New("connection stale (no ping)")
)

// State is the connection state of a live session.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateStreaming
	StateReconnecting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Subscription is one recorded subscription request. The controller
// replays these verbatim, in order, on Resubscribe.
type Subscription struct {
	Dataset  string
	Schema   string
	Symbols  []string
	Snapshot bool
}

// Validate rejects subscriptions the gateway would refuse anyway.
func (s Subscription) Validate() error {
	if s.Dataset == "" {
		return errors.New("subscription: empty dataset")
	}
	if s.Schema == "" {
		return errors.New("subscription: empty schema")
	}
	if len(s.Symbols) == 0 {
		return errors.New("subscription: no symbols")
	}
	for _, sym := range s.Symbols {
		if sym == "" || strings.TrimSpace(sym) != sym {
			return fmt.Errorf("subscription: malformed symbol %q", sym)
		}
	}
	return nil
}

// RawRecord is an undecoded record handed up by the transport. Data is
// only valid for the duration of the callback; anything that outlives
// the callback must copy it.
type RawRecord struct {
	Data  []byte
	RType byte
}

// Config configures a live session controller.
type Config struct {
	// BufferSize bounds the record queue between the transport thread
	// and the consumer. Zero means DefaultBufferSize. The producer
	// blocks when the queue is full.
	BufferSize int

	// Strict makes a record-level decode failure terminal to the
	// stream. When false the record is logged and skipped.
	Strict bool

	// QuiesceTimeout bounds how long Stop waits for an in-flight
	// callback to finish before releasing the transport.
	QuiesceTimeout time.Duration
}

const DefaultBufferSize = 4096

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize:     DefaultBufferSize,
		Strict:         false,
		QuiesceTimeout: 5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.QuiesceTimeout <= 0 {
		c.QuiesceTimeout = 5 * time.Second
	}
	return c
}
