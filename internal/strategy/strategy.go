package strategy

import "github.com/rickgao/prediction-backtest/internal/model"

// Context is the surface a strategy trades and observes through.
// All returned values are copies; mutating them has no effect on the run.
type Context interface {
	// Order placement. Returns the accepted order id.
	BuyYes(marketID string, price, quantity float64) (uint64, error)
	SellYes(marketID string, price, quantity float64) (uint64, error)
	BuyNo(marketID string, price, quantity float64) (uint64, error)
	SellNo(marketID string, price, quantity float64) (uint64, error)

	// CancelOrder cancels a resting order.
	CancelOrder(orderID uint64) error

	// CancelAll cancels every resting order; marketID "" means all markets.
	CancelAll(marketID string) int

	// Portfolio returns a snapshot of current cash, equity, and positions.
	Portfolio() model.Snapshot

	// OpenOrders returns resting orders; marketID "" means all markets.
	OpenOrders(marketID string) []model.Order

	// Market returns metadata for a registered market.
	Market(marketID string) (model.Market, bool)

	// LastPrice returns the last traded YES price for a market.
	LastPrice(marketID string) (float64, bool)

	// Now returns the timestamp of the event being processed.
	Now() int64
}

// Strategy receives simulation events. Firing order within one event:
//
//	Initialize            once, before the first event
//	OnMarketOpen          at each market's open timestamp
//	OnFill                immediately after each fill is applied
//	OnTrade               after matching and fills, for every trade
//	OnMarketClose         at close; open orders are auto-canceled first
//	OnMarketResolve       after the resolution payout is applied
//	Finalize              once, after the last event
type Strategy interface {
	Name() string
	Initialize(ctx Context)
	OnMarketOpen(ctx Context, m model.Market)
	OnTrade(ctx Context, t model.TradeEvent)
	OnFill(ctx Context, f model.Fill)
	OnMarketClose(ctx Context, m model.Market)
	OnMarketResolve(ctx Context, m model.Market, outcome model.Resolution)
	Finalize(ctx Context)
}

// Base is a no-op Strategy for embedding.
type Base struct{}

func (Base) Name() string                                            { return "base" }
func (Base) Initialize(Context)                                      {}
func (Base) OnMarketOpen(Context, model.Market)                      {}
func (Base) OnTrade(Context, model.TradeEvent)                       {}
func (Base) OnFill(Context, model.Fill)                              {}
func (Base) OnMarketClose(Context, model.Market)                     {}
func (Base) OnMarketResolve(Context, model.Market, model.Resolution) {}
func (Base) Finalize(Context)                                        {}
