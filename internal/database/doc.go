// Package database provides the TimescaleDB connection pool for the
// historical feed. The backtester reads the trades hypertable and
// markets table the data platform's gatherers write.
package database
