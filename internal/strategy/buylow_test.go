package strategy

import (
	"testing"

	"github.com/rickgao/prediction-backtest/internal/model"
)

// fakeContext records order placements.
type fakeContext struct {
	Context

	placed  []placement
	nextID  uint64
	failAll bool
}

type placement struct {
	marketID string
	price    float64
	quantity float64
}

func (c *fakeContext) BuyYes(marketID string, price, quantity float64) (uint64, error) {
	if c.failAll {
		return 0, errRejected
	}
	c.nextID++
	c.placed = append(c.placed, placement{marketID, price, quantity})
	return c.nextID, nil
}

var errRejected = &rejectedError{}

type rejectedError struct{}

func (*rejectedError) Error() string { return "rejected" }

func trade(marketID string, price float64) model.TradeEvent {
	return model.TradeEvent{MarketID: marketID, TS: 1, YesPrice: price, Size: 1, TakerSide: model.TakerBoughtYes}
}

func TestBuyLowPlacesBelowThreshold(t *testing.T) {
	s := NewBuyLow(0.20, 10, nil)
	ctx := &fakeContext{}
	s.Initialize(ctx)

	s.OnTrade(ctx, trade("MKT-A", 0.15))
	if len(ctx.placed) != 1 {
		t.Fatalf("placements = %d, want 1", len(ctx.placed))
	}
	p := ctx.placed[0]
	if p.marketID != "MKT-A" || p.price != 0.20 || p.quantity != 10 {
		t.Errorf("placement = %+v", p)
	}
}

func TestBuyLowIgnoresAboveThreshold(t *testing.T) {
	s := NewBuyLow(0.20, 10, nil)
	ctx := &fakeContext{}
	s.Initialize(ctx)

	s.OnTrade(ctx, trade("MKT-A", 0.20))
	s.OnTrade(ctx, trade("MKT-A", 0.55))
	if len(ctx.placed) != 0 {
		t.Errorf("placements = %d, want 0", len(ctx.placed))
	}
}

func TestBuyLowOneOrderPerMarket(t *testing.T) {
	s := NewBuyLow(0.20, 10, nil)
	ctx := &fakeContext{}
	s.Initialize(ctx)

	s.OnTrade(ctx, trade("MKT-A", 0.10))
	s.OnTrade(ctx, trade("MKT-A", 0.05))
	s.OnTrade(ctx, trade("MKT-B", 0.10))
	if len(ctx.placed) != 2 {
		t.Errorf("placements = %d, want one per market", len(ctx.placed))
	}
}

func TestBuyLowRetriesAfterRejection(t *testing.T) {
	s := NewBuyLow(0.20, 10, nil)
	ctx := &fakeContext{failAll: true}
	s.Initialize(ctx)

	s.OnTrade(ctx, trade("MKT-A", 0.10))
	ctx.failAll = false
	s.OnTrade(ctx, trade("MKT-A", 0.12))
	if len(ctx.placed) != 1 {
		t.Errorf("placements = %d, want retry to succeed once", len(ctx.placed))
	}
}
