// Package feed supplies market metadata and historical trades to the
// engine.
//
// A feed exposes its markets once at startup and a single lazy,
// timestamp-sorted pass over its trades. Implementations:
//
//   - MemoryFeed: in-memory slices, used by tests and synthetic runs
//   - TimescaleFeed: streams the data platform's trades and markets
//     tables through a pgx row cursor
//   - PolymarketFeed: live CLOB WebSocket trades for paper runs
package feed
