package live

import (
	"context"

	"github.com/Alparse/databento-client-sub000/internal/dbn"
)

// Handler carries the callbacks a transport invokes while streaming.
// Callbacks run on the transport's own read goroutine; OnRecord
// returning false tells the transport to stop delivering.
type Handler struct {
	OnMetadata func(meta *dbn.Metadata)
	OnRecord   func(raw RawRecord) bool
	OnError    func(err error)
}

// Transport is the session-layer gateway connection the controller
// drives. Implementations own the wire protocol; the controller owns
// subscription state and the teardown ordering.
type Transport interface {
	// Connect establishes the gateway connection.
	Connect(ctx context.Context) error

	// Subscribe issues one subscription against the current connection.
	Subscribe(ctx context.Context, sub Subscription) error

	// Start begins the record flow and invokes h until the stream ends,
	// h.OnRecord returns false, or Stop is called.
	Start(ctx context.Context, h Handler) error

	// Stop signals the transport to cease delivering records.
	Stop(ctx context.Context) error

	// Reconnect tears down the current connection and establishes a
	// fresh one. It does not re-issue subscriptions.
	Reconnect(ctx context.Context) error

	// Close releases the connection. No callback may fire after Close
	// returns.
	Close() error
}
