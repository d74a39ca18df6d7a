// Package writer implements batch writers persisting decoded records
// to TimescaleDB.
//
// Writers:
//   - Trade writer (trades hypertable)
//   - OHLCV writer (ohlcv hypertable)
//
// All writers use append-only semantics (never update, only insert).
// Prices are stored as the wire's fixed-point integers, scale 1e-9.
package writer
