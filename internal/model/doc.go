// Package model defines shared value types used across the backtest engine.
//
// Conventions:
//   - Prices: float64 dollars for one contract, open interval (0, 1)
//   - Quantities: float64 contract counts, strictly positive
//   - Timestamps: int64 integer units since epoch (milliseconds unless the
//     run config declares otherwise); nondecreasing within a feed
//   - IDs: string for market ids, uint64 for order ids, uuid.UUID for
//     trade ids originating from the data platform
package model
