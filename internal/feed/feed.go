package feed

import (
	"context"

	"github.com/rickgao/prediction-backtest/internal/model"
)

// Feed is the engine's data source for one run.
type Feed interface {
	// Markets returns all market metadata. Read once at startup.
	Markets(ctx context.Context) ([]model.Market, error)

	// Trades returns a single-use cursor over the timestamp-sorted tape.
	Trades(ctx context.Context) (TradeCursor, error)

	// TradeCount returns the (possibly approximate) number of trades,
	// for progress reporting.
	TradeCount(ctx context.Context) (int64, error)
}

// TradeCursor is a lazy, forward-only pass over trade events.
// The pattern follows pgx rows: Next advances, Trade reads the current
// event, Err reports any iteration failure after Next returns false.
type TradeCursor interface {
	Next() bool
	Trade() model.TradeEvent
	Err() error
	Close()
}
