// Package dbn decodes and encodes DBN, the fixed-layout binary record
// encoding used by the feed. Every record starts with a common 16-byte
// header (length, rtype, publisher, instrument, event timestamp) followed
// by fields specific to the record type identified by the one-byte rtype
// tag. Decoding is pure and stateless; it is safe to call from any number
// of goroutines on independent inputs.
package dbn
