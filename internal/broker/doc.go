// Package broker manages resting limit orders and matches them against
// the historical tape.
//
// Each market carries two price-ordered ladders keyed by YES-equivalent
// price: bids (BuyYes, SellNo) and asks (SellYes, BuyNo). Within a price
// level orders are FIFO by acceptance id.
//
// Matching is taker-side aware: a resting order fills only when the
// trade's aggressor is on the opposite side. A YES-taker print can only
// fill resting asks; a NO-taker print can only fill resting bids.
// Ignoring this double-counts liquidity and inflates backtest returns.
package broker
