// Package dbnfile reads and writes persisted DBN stores: a metadata
// header followed by length-prefixed binary records. Reads are
// pull-based with reset for idempotent replay.
package dbnfile
