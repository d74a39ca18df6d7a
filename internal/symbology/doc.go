// Package symbology resolves instrument ids back to the symbols they
// were requested under. A TsSymbolMap is built once from file or query
// metadata and answers date-aware lookups; a PitSymbolMap tracks the
// current session's mappings incrementally from SymbolMapping records on
// a live stream.
package symbology
