// Package slippage adjusts fill prices for spread and market impact.
//
// The adjustment has two multiplicative factors on a base slippage:
//
//   - a spread factor that widens at extreme prices, reflecting the thin
//     books prediction markets carry near 0 and 1
//   - a square-root impact factor comparing executed size to the market's
//     typical trade size, tracked as an exponential moving average
//
// The EMA is updated before matching so the incoming trade influences its
// own slippage.
package slippage
