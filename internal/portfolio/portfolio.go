package portfolio

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/rickgao/prediction-backtest/internal/model"
)

// ErrShortDisallowed is returned when a fill would take a leg negative
// and shorting is disabled.
var ErrShortDisallowed = errors.New("short position disallowed")

// ErrAccountingViolation indicates the cash/position/P&L identity broke.
// This is fatal: it means an engine bug, not a strategy mistake.
var ErrAccountingViolation = errors.New("accounting identity violated")

// identityTolerance bounds floating-point drift in the accounting check.
const identityTolerance = 1e-6

// zeroQty collapses leg quantities within floating noise of zero.
const zeroQty = 1e-10

// Portfolio tracks cash, per-market positions, and realized P&L.
type Portfolio struct {
	cash        float64
	initialCash float64
	realized    float64
	allowShort  bool

	positions  map[string]*model.Position
	lastPrices map[string]float64
	resolved   map[string]struct{}
	fills      []model.Fill

	logger *slog.Logger
}

// New creates a portfolio with the given starting cash.
func New(initialCash float64, allowShort bool, logger *slog.Logger) *Portfolio {
	if logger == nil {
		logger = slog.Default()
	}
	return &Portfolio{
		cash:        initialCash,
		initialCash: initialCash,
		allowShort:  allowShort,
		positions:   make(map[string]*model.Position),
		lastPrices:  make(map[string]float64),
		resolved:    make(map[string]struct{}),
		logger:      logger,
	}
}

// Cash returns the current cash balance.
func (p *Portfolio) Cash() float64 { return p.cash }

// InitialCash returns the starting balance.
func (p *Portfolio) InitialCash() float64 { return p.initialCash }

// RealizedPnL returns cumulative realized P&L including resolution
// payouts and commission.
func (p *Portfolio) RealizedPnL() float64 { return p.realized }

// Fills returns the ordered log of applied fills.
func (p *Portfolio) Fills() []model.Fill { return p.fills }

// Position returns a copy of the position for a market.
func (p *Portfolio) Position(marketID string) (model.Position, bool) {
	pos, ok := p.positions[marketID]
	if !ok {
		return model.Position{}, false
	}
	return *pos, true
}

// LegQuantity returns the held quantity on the leg an order side trades.
// The broker uses this to gate short sales.
func (p *Portfolio) LegQuantity(marketID string, side model.OrderSide) float64 {
	pos, ok := p.positions[marketID]
	if !ok {
		return 0
	}
	if side.IsYes() {
		return pos.YesQuantity
	}
	return pos.NoQuantity
}

// UpdatePrice records the last-seen YES price for mark-to-market.
func (p *Portfolio) UpdatePrice(marketID string, yesPrice float64) {
	p.lastPrices[marketID] = yesPrice
}

// MarketPnLs returns realized P&L per market, resolution payouts
// included.
func (p *Portfolio) MarketPnLs() map[string]float64 {
	out := make(map[string]float64, len(p.positions))
	for id, pos := range p.positions {
		out[id] = pos.RealizedPnL
	}
	return out
}

// LastPrice returns the last-seen YES price for a market.
func (p *Portfolio) LastPrice(marketID string) (float64, bool) {
	price, ok := p.lastPrices[marketID]
	return price, ok
}

// ApplyFill mutates cash and the relevant position leg.
// A fill that reduces an existing leg produces a realized P&L delta;
// the broker guarantees a single fill never crosses zero.
func (p *Portfolio) ApplyFill(f model.Fill) error {
	pos, ok := p.positions[f.MarketID]
	if !ok {
		pos = &model.Position{MarketID: f.MarketID}
		p.positions[f.MarketID] = pos
	}

	qty, avg := &pos.YesQuantity, &pos.YesAvgCost
	if !f.Side.IsYes() {
		qty, avg = &pos.NoQuantity, &pos.NoAvgCost
	}

	delta := f.Quantity
	if !f.Side.IsBuy() {
		delta = -f.Quantity
	}

	if !p.allowShort && *qty+delta < -zeroQty {
		return fmt.Errorf("%w: market %s side %s held %.4f sell %.4f",
			ErrShortDisallowed, f.MarketID, f.Side, *qty, f.Quantity)
	}

	realized := applyLeg(qty, avg, delta, f.Price)

	if f.Side.IsBuy() {
		p.cash -= f.Price * f.Quantity
	} else {
		p.cash += f.Price * f.Quantity
	}
	p.cash -= f.Commission

	realized -= f.Commission
	pos.RealizedPnL += realized
	p.realized += realized

	p.fills = append(p.fills, f)
	return nil
}

// applyLeg adds delta contracts at price to one leg and returns the
// realized P&L from any reduction. Caller guarantees the delta does not
// cross zero.
func applyLeg(qty, avg *float64, delta, price float64) float64 {
	if *qty == 0 || (*qty > 0) == (delta > 0) {
		// Opening or adding in the same direction: weighted average cost.
		totalCost := math.Abs(*qty)*(*avg) + math.Abs(delta)*price
		*qty += delta
		if *qty != 0 {
			*avg = totalCost / math.Abs(*qty)
		}
		return 0
	}

	// Reducing: realized against the average cost, average unchanged.
	closing := math.Min(math.Abs(delta), math.Abs(*qty))
	var realized float64
	if *qty > 0 {
		realized = closing * (price - *avg)
	} else {
		realized = closing * (*avg - price)
	}
	remaining := math.Abs(delta) - closing
	*qty += delta
	if math.Abs(*qty) < zeroQty {
		*qty = 0
		*avg = 0
	} else if remaining > 0 {
		// Flipped direction: the leftover opens a fresh position at price.
		*avg = price
	}
	return realized
}

// ResolveMarket settles every nonzero leg in the market.
// The YES leg pays 1.0 per contract on ResolvedYes, the NO leg on
// ResolvedNo. Idempotent: a second resolution is a no-op returning 0.
func (p *Portfolio) ResolveMarket(marketID string, outcome model.Resolution) float64 {
	if _, done := p.resolved[marketID]; done {
		return 0
	}
	p.resolved[marketID] = struct{}{}

	pos, ok := p.positions[marketID]
	if !ok || pos.Flat() {
		return 0
	}

	yesPays, noPays := 0.0, 0.0
	if outcome == model.ResolvedYes {
		yesPays = 1.0
	} else {
		noPays = 1.0
	}

	payout := pos.YesQuantity*yesPays + pos.NoQuantity*noPays
	costBasis := pos.YesQuantity*pos.YesAvgCost + pos.NoQuantity*pos.NoAvgCost
	pnl := payout - costBasis

	p.cash += payout
	pos.RealizedPnL += pnl
	p.realized += pnl

	pos.YesQuantity, pos.YesAvgCost = 0, 0
	pos.NoQuantity, pos.NoAvgCost = 0, 0

	p.logger.Debug("market resolved",
		"market", marketID,
		"outcome", outcome.String(),
		"payout", payout,
		"pnl", pnl,
	)
	return pnl
}

// Resolved reports whether a market has settled.
func (p *Portfolio) Resolved(marketID string) bool {
	_, ok := p.resolved[marketID]
	return ok
}

// markValue values a position at the last-seen YES price, falling back
// to cost when no price has been observed.
func (p *Portfolio) markValue(pos *model.Position) float64 {
	last, ok := p.lastPrices[pos.MarketID]
	if !ok {
		return pos.YesQuantity*pos.YesAvgCost + pos.NoQuantity*pos.NoAvgCost
	}
	return pos.MarkValue(last)
}

// UnrealizedPnL marks every open position against its last-seen price.
func (p *Portfolio) UnrealizedPnL() float64 {
	total := 0.0
	for id, pos := range p.positions {
		if pos.Flat() || p.Resolved(id) {
			continue
		}
		cost := pos.YesQuantity*pos.YesAvgCost + pos.NoQuantity*pos.NoAvgCost
		total += p.markValue(pos) - cost
	}
	return total
}

// Snapshot computes a point-in-time record of cash, equity, and open
// positions. Read-only.
func (p *Portfolio) Snapshot(ts int64) model.Snapshot {
	equity := p.cash
	var open []model.Position
	for id, pos := range p.positions {
		if pos.Flat() || p.Resolved(id) {
			continue
		}
		equity += p.markValue(pos)
		open = append(open, *pos)
	}
	sort.Slice(open, func(i, j int) bool { return open[i].MarketID < open[j].MarketID })

	return model.Snapshot{
		TS:            ts,
		Cash:          p.cash,
		Equity:        equity,
		RealizedPnL:   p.realized,
		UnrealizedPnL: p.UnrealizedPnL(),
		Positions:     open,
	}
}

// CheckIdentity verifies the accounting identity within tolerance.
func (p *Portfolio) CheckIdentity() error {
	lhs := p.cash
	for id, pos := range p.positions {
		if pos.Flat() || p.Resolved(id) {
			continue
		}
		lhs += p.markValue(pos)
	}
	rhs := p.initialCash + p.realized + p.UnrealizedPnL()
	if diff := math.Abs(lhs - rhs); diff > identityTolerance {
		return fmt.Errorf("%w: cash+mark %.8f != initial+realized+unrealized %.8f (diff %.2e)",
			ErrAccountingViolation, lhs, rhs, diff)
	}
	return nil
}
