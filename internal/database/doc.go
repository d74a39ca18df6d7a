// Package database provides connection pool management for TimescaleDB.
//
// Decoded market-data records (trades, bars) are persisted to
// TimescaleDB hypertables, one table per record schema.
package database
