package broker

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/rickgao/prediction-backtest/internal/market"
	"github.com/rickgao/prediction-backtest/internal/model"
	"github.com/rickgao/prediction-backtest/internal/portfolio"
	"github.com/rickgao/prediction-backtest/internal/slippage"
)

// Error kinds surfaced to the strategy caller. None of these abort a run.
var (
	ErrInvalidPrice      = errors.New("invalid price")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrUnknownMarket     = errors.New("unknown market")
	ErrMarketNotTradable = errors.New("market not tradable")
	ErrOrderNotActive    = errors.New("order not active")
)

// gridTolerance bounds floating error in the tick-grid check.
const gridTolerance = 1e-6

// qtyEpsilon collapses remaining quantities within floating noise of zero.
const qtyEpsilon = 1e-10

// Config holds broker parameters.
type Config struct {
	AllowShort     bool
	CommissionRate float64
}

// Broker maintains per-market order ladders and emits fills.
type Broker struct {
	cfg      Config
	registry *market.Registry
	slip     *slippage.Model
	pf       *portfolio.Portfolio
	logger   *slog.Logger

	nextID uint64
	orders map[uint64]*model.Order
	books  map[string]*book

	// Resting sell quantity per market and leg, used to gate short sales
	// at acceptance when shorting is disabled.
	restingSells map[legKey]float64
}

type legKey struct {
	marketID string
	yesLeg   bool
}

// entry is one resting order keyed by its YES-equivalent price.
// BuyYes at p and SellNo at (1-p) share a key; so do SellYes and BuyNo.
type entry struct {
	order  *model.Order
	yesKey float64
}

// book holds both ladders for one market.
// bids are sorted by yesKey descending, asks ascending; ties FIFO by id.
type book struct {
	bids []entry
	asks []entry
}

// New creates a broker over the given registry, slippage model, and
// portfolio.
func New(cfg Config, reg *market.Registry, slip *slippage.Model, pf *portfolio.Portfolio, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		cfg:          cfg,
		registry:     reg,
		slip:         slip,
		pf:           pf,
		logger:       logger,
		nextID:       1,
		orders:       make(map[uint64]*model.Order),
		books:        make(map[string]*book),
		restingSells: make(map[legKey]float64),
	}
}

// yesEquivalent maps a limit price into YES-price space.
func yesEquivalent(side model.OrderSide, price float64) float64 {
	if side.IsYes() {
		return price
	}
	return 1.0 - price
}

// Place validates and accepts a limit order, returning its id.
func (b *Broker) Place(marketID string, side model.OrderSide, price, quantity float64, ts int64) (uint64, error) {
	m, ok := b.registry.Get(marketID)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownMarket, marketID)
	}
	if !b.registry.Tradable(marketID) {
		return 0, fmt.Errorf("%w: %s", ErrMarketNotTradable, marketID)
	}
	if !(quantity > 0) || math.IsInf(quantity, 0) || math.IsNaN(quantity) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidQuantity, quantity)
	}
	tick := m.TickSize()
	if err := validatePrice(price, tick); err != nil {
		return 0, err
	}

	if !b.cfg.AllowShort && !side.IsBuy() {
		key := legKey{marketID, side.IsYes()}
		available := b.pf.LegQuantity(marketID, side) - b.restingSells[key]
		if quantity > available+qtyEpsilon {
			return 0, fmt.Errorf("%w: market %s side %s available %.4f",
				portfolio.ErrShortDisallowed, marketID, side, available)
		}
	}

	order := &model.Order{
		ID:        b.nextID,
		MarketID:  marketID,
		Side:      side,
		Price:     price,
		Quantity:  quantity,
		Remaining: quantity,
		PlacedTS:  ts,
		Status:    model.OrderOpen,
	}
	b.nextID++
	b.orders[order.ID] = order
	b.insert(order)
	if !side.IsBuy() {
		b.restingSells[legKey{marketID, side.IsYes()}] += quantity
	}

	b.logger.Debug("order accepted",
		"order_id", order.ID,
		"market", marketID,
		"side", side.String(),
		"price", price,
		"quantity", quantity,
	)
	return order.ID, nil
}

// validatePrice checks the open-interval bound and the tick grid.
func validatePrice(price, tick float64) error {
	if math.IsNaN(price) || price < tick || price > 1.0-tick {
		return fmt.Errorf("%w: %v outside [%v, %v]", ErrInvalidPrice, price, tick, 1.0-tick)
	}
	steps := price / tick
	if math.Abs(steps-math.Round(steps)) > gridTolerance {
		return fmt.Errorf("%w: %v off tick grid %v", ErrInvalidPrice, price, tick)
	}
	return nil
}

// insert places an order into its ladder, keeping price priority with
// FIFO ties by acceptance id.
func (b *Broker) insert(o *model.Order) {
	bk, ok := b.books[o.MarketID]
	if !ok {
		bk = &book{}
		b.books[o.MarketID] = bk
	}
	e := entry{order: o, yesKey: yesEquivalent(o.Side, o.Price)}

	if o.Side.IsBid() {
		// Highest key first; equal keys keep insertion (id) order.
		i := sort.Search(len(bk.bids), func(i int) bool { return bk.bids[i].yesKey < e.yesKey })
		bk.bids = append(bk.bids, entry{})
		copy(bk.bids[i+1:], bk.bids[i:])
		bk.bids[i] = e
	} else {
		// Lowest key first.
		i := sort.Search(len(bk.asks), func(i int) bool { return bk.asks[i].yesKey > e.yesKey })
		bk.asks = append(bk.asks, entry{})
		copy(bk.asks[i+1:], bk.asks[i:])
		bk.asks[i] = e
	}
}

// remove drops an order from its ladder if resting.
func (b *Broker) remove(o *model.Order) {
	bk, ok := b.books[o.MarketID]
	if !ok {
		return
	}
	ladder := &bk.asks
	if o.Side.IsBid() {
		ladder = &bk.bids
	}
	for i, e := range *ladder {
		if e.order.ID == o.ID {
			*ladder = append((*ladder)[:i], (*ladder)[i+1:]...)
			return
		}
	}
}

// releaseResting returns reserved sell quantity when an order stops resting.
func (b *Broker) releaseResting(o *model.Order, quantity float64) {
	if o.Side.IsBuy() {
		return
	}
	key := legKey{o.MarketID, o.Side.IsYes()}
	b.restingSells[key] -= quantity
	if b.restingSells[key] < qtyEpsilon {
		b.restingSells[key] = 0
	}
}

// Cancel marks an order canceled and removes it from its ladder.
// Canceling a filled, canceled, or unknown order returns ErrOrderNotActive
// and leaves state untouched.
func (b *Broker) Cancel(orderID uint64) error {
	o, ok := b.orders[orderID]
	if !ok || o.Status != model.OrderOpen {
		return fmt.Errorf("%w: %d", ErrOrderNotActive, orderID)
	}
	o.Status = model.OrderCanceled
	b.remove(o)
	b.releaseResting(o, o.Remaining)
	b.logger.Debug("order canceled", "order_id", orderID, "market", o.MarketID)
	return nil
}

// CancelAll cancels every open order, optionally limited to one market.
// Walks only resting orders; returns the number canceled.
func (b *Broker) CancelAll(marketID string) int {
	var resting []*model.Order
	collect := func(bk *book) {
		for _, e := range bk.bids {
			resting = append(resting, e.order)
		}
		for _, e := range bk.asks {
			resting = append(resting, e.order)
		}
	}

	if marketID != "" {
		if bk, ok := b.books[marketID]; ok {
			collect(bk)
		}
	} else {
		for _, bk := range b.books {
			collect(bk)
		}
	}

	sort.Slice(resting, func(i, j int) bool { return resting[i].ID < resting[j].ID })
	for _, o := range resting {
		o.Status = model.OrderCanceled
		b.remove(o)
		b.releaseResting(o, o.Remaining)
	}
	return len(resting)
}

// Order returns a copy of an order by id.
func (b *Broker) Order(orderID uint64) (model.Order, bool) {
	o, ok := b.orders[orderID]
	if !ok {
		return model.Order{}, false
	}
	return *o, true
}

// OpenOrders returns copies of all resting orders sorted by id,
// optionally limited to one market.
func (b *Broker) OpenOrders(marketID string) []model.Order {
	var result []model.Order
	collect := func(bk *book) {
		for _, e := range bk.bids {
			result = append(result, *e.order)
		}
		for _, e := range bk.asks {
			result = append(result, *e.order)
		}
	}

	if marketID != "" {
		if bk, ok := b.books[marketID]; ok {
			collect(bk)
		}
	} else {
		for _, bk := range b.books {
			collect(bk)
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// MatchTrade attempts to fill resting orders against an incoming print.
//
// The ladder opposite the taker is walked in price priority; each
// eligible order fills min(remaining, trade remaining) at its
// slippage-adjusted limit price. Leftover trade size is discarded — the
// historical tape already consumed it. Orders placed during strategy
// callbacks for this same event are not eligible.
func (b *Broker) MatchTrade(trade model.TradeEvent) ([]model.Fill, error) {
	m, ok := b.registry.Get(trade.MarketID)
	if !ok {
		return nil, fmt.Errorf("%w: trade in %s", ErrUnknownMarket, trade.MarketID)
	}
	bk, ok := b.books[trade.MarketID]
	if !ok {
		return nil, nil
	}

	// TakerBoughtYes lifted asks: it can fill our resting sell side.
	// TakerBoughtNo hit bids: it can fill our resting buy side.
	var candidates []entry
	matchAsks := trade.TakerSide == model.TakerBoughtYes
	if matchAsks {
		candidates = append(candidates, bk.asks...)
	} else {
		candidates = append(candidates, bk.bids...)
	}

	tick := m.TickSize()
	remaining := trade.Size
	var fills []model.Fill

	// Leg deltas from fills within this trade, so short gating sees a
	// consistent position before the portfolio applies them.
	legDeltas := make(map[legKey]float64)

	for _, e := range candidates {
		if remaining <= qtyEpsilon {
			break
		}
		// Eligibility in YES-price space. Ladders are priority-sorted, so
		// the first ineligible entry ends the walk.
		if matchAsks {
			if trade.YesPrice < e.yesKey-gridTolerance {
				break
			}
		} else {
			if trade.YesPrice > e.yesKey+gridTolerance {
				break
			}
		}

		o := e.order
		if o.Status != model.OrderOpen || o.Remaining <= qtyEpsilon {
			continue
		}

		fillQty := math.Min(o.Remaining, remaining)
		key := legKey{o.MarketID, o.Side.IsYes()}

		if !o.Side.IsBuy() && !b.cfg.AllowShort {
			held := b.pf.LegQuantity(o.MarketID, o.Side) + legDeltas[key]
			if fillQty > held {
				fillQty = held
			}
			if fillQty <= qtyEpsilon {
				continue
			}
		}

		price := b.slip.Adjust(o.MarketID, o.Side, o.Price, fillQty, tick)

		for _, part := range b.splitAtZero(o, key, legDeltas, fillQty) {
			fills = append(fills, model.Fill{
				OrderID:    o.ID,
				MarketID:   o.MarketID,
				Side:       o.Side,
				Quantity:   part,
				Price:      price,
				Commission: b.cfg.CommissionRate * price * part,
				TS:         trade.TS,
			})
		}

		o.Remaining -= fillQty
		remaining -= fillQty
		b.releaseResting(o, fillQty)

		if o.Remaining <= qtyEpsilon {
			o.Remaining = 0
			o.Status = model.OrderFilled
			b.remove(o)
		}

		delta := fillQty
		if !o.Side.IsBuy() {
			delta = -fillQty
		}
		legDeltas[key] += delta
	}

	return fills, nil
}

// splitAtZero breaks a fill quantity in two when it would cross the leg
// through zero (a sell through a long, or a buy through a short), so
// average-cost accounting closes the old position before opening the new
// one. With shorting disabled the caller has already capped sell
// quantities and the split never triggers.
func (b *Broker) splitAtZero(o *model.Order, key legKey, legDeltas map[legKey]float64, fillQty float64) []float64 {
	held := b.pf.LegQuantity(o.MarketID, o.Side) + legDeltas[key]
	if o.Side.IsBuy() {
		if held < -qtyEpsilon && fillQty > -held+qtyEpsilon {
			return []float64{-held, fillQty + held}
		}
		return []float64{fillQty}
	}
	if held > qtyEpsilon && fillQty > held+qtyEpsilon {
		return []float64{held, fillQty - held}
	}
	return []float64{fillQty}
}
