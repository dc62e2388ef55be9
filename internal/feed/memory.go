package feed

import (
	"context"
	"errors"
	"sort"

	"github.com/rickgao/prediction-backtest/internal/model"
)

// ErrStreamConsumed is returned when a feed's single-use trade stream is
// requested twice.
var ErrStreamConsumed = errors.New("trade stream already consumed")

// MemoryFeed serves markets and trades from memory. Trades are sorted by
// timestamp at construction; the stream honors the single-pass contract.
type MemoryFeed struct {
	markets  []model.Market
	trades   []model.TradeEvent
	consumed bool
}

// NewMemoryFeed creates a feed over the given data. The trade slice is
// copied and stably sorted by timestamp, preserving input order within
// equal timestamps.
func NewMemoryFeed(markets []model.Market, trades []model.TradeEvent) *MemoryFeed {
	sorted := make([]model.TradeEvent, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TS < sorted[j].TS })
	return &MemoryFeed{markets: markets, trades: sorted}
}

func (f *MemoryFeed) Markets(context.Context) ([]model.Market, error) {
	out := make([]model.Market, len(f.markets))
	copy(out, f.markets)
	return out, nil
}

func (f *MemoryFeed) Trades(context.Context) (TradeCursor, error) {
	if f.consumed {
		return nil, ErrStreamConsumed
	}
	f.consumed = true
	return &memoryCursor{trades: f.trades, idx: -1}, nil
}

func (f *MemoryFeed) TradeCount(context.Context) (int64, error) {
	return int64(len(f.trades)), nil
}

type memoryCursor struct {
	trades []model.TradeEvent
	idx    int
}

func (c *memoryCursor) Next() bool {
	if c.idx+1 >= len(c.trades) {
		return false
	}
	c.idx++
	return true
}

func (c *memoryCursor) Trade() model.TradeEvent { return c.trades[c.idx] }
func (c *memoryCursor) Err() error              { return nil }
func (c *memoryCursor) Close()                  {}
