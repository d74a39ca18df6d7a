// Package live drives a live market-data session: subscription state,
// the connection state machine, and the bridge from the transport's
// read goroutine into a pull-based record stream. Teardown is guarded
// so that no transport callback runs against released state.
package live
