// Package portfolio tracks cash, positions, and P&L for a backtest run.
//
// Positions carry separate YES and NO legs, each with its own average
// cost. Resolution pays 1.0 per contract on the winning leg and clears
// the position.
//
// Accounting identity, checked after every snapshot:
//
//	cash + sum(mark value) = initial_cash + realized_pnl + unrealized_pnl
package portfolio
