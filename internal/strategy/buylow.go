package strategy

import (
	"log/slog"

	"github.com/rickgao/prediction-backtest/internal/model"
)

// BuyLow buys YES contracts when the price drops below a threshold and
// holds them to resolution. One order per market.
type BuyLow struct {
	Base

	Threshold float64
	Quantity  float64

	ordered map[string]struct{}
	logger  *slog.Logger
}

// NewBuyLow creates a BuyLow strategy.
func NewBuyLow(threshold, quantity float64, logger *slog.Logger) *BuyLow {
	if logger == nil {
		logger = slog.Default()
	}
	return &BuyLow{
		Threshold: threshold,
		Quantity:  quantity,
		ordered:   make(map[string]struct{}),
		logger:    logger,
	}
}

func (s *BuyLow) Name() string { return "buy_low" }

func (s *BuyLow) Initialize(Context) {
	s.ordered = make(map[string]struct{})
}

func (s *BuyLow) OnTrade(ctx Context, t model.TradeEvent) {
	if _, done := s.ordered[t.MarketID]; done {
		return
	}
	if t.YesPrice >= s.Threshold {
		return
	}

	id, err := ctx.BuyYes(t.MarketID, s.Threshold, s.Quantity)
	if err != nil {
		s.logger.Debug("buy rejected", "market", t.MarketID, "error", err)
		return
	}
	s.ordered[t.MarketID] = struct{}{}
	s.logger.Debug("bid placed",
		"market", t.MarketID,
		"order_id", id,
		"limit", s.Threshold,
		"quantity", s.Quantity,
	)
}
