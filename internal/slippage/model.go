package slippage

import (
	"math"

	"github.com/rickgao/prediction-backtest/internal/model"
)

// DefaultBase is the default base slippage in price units.
const DefaultBase = 0.005

// DefaultAlpha is the default EMA smoothing factor for trade size.
const DefaultAlpha = 0.05

// maxSpreadFactor caps the spread multiplier at extreme prices.
const maxSpreadFactor = 6.0

// epsilon floors the EMA denominator in the impact factor.
const epsilon = 1e-6

// Model computes slippage-adjusted execution prices.
type Model struct {
	base  float64
	alpha float64

	// EMA of absolute trade size per market, initialized lazily
	// from the first observed trade.
	emaSize map[string]float64
}

// New creates a slippage model. base is the base slippage in price units,
// scaled by the spread and impact factors;
// alpha is the EMA smoothing factor in (0, 1].
func New(base, alpha float64) *Model {
	return &Model{
		base:    base,
		alpha:   alpha,
		emaSize: make(map[string]float64),
	}
}

// Observe updates the trade-size EMA for a market.
// Called once per trade, before any matching attempt.
func (m *Model) Observe(marketID string, size float64) {
	prev, ok := m.emaSize[marketID]
	if !ok {
		m.emaSize[marketID] = size
		return
	}
	m.emaSize[marketID] = (1.0-m.alpha)*prev + m.alpha*size
}

// EMASize returns the current trade-size EMA for a market.
// Falls back to the given size when no trade has been observed yet.
func (m *Model) EMASize(marketID string, fallback float64) float64 {
	if s, ok := m.emaSize[marketID]; ok {
		return s
	}
	return fallback
}

// SetEMA overrides the EMA for a market. Used by tests.
func (m *Model) SetEMA(marketID string, size float64) {
	m.emaSize[marketID] = size
}

// SpreadFactor is the price-dependent spread multiplier.
// Inverse-variance curve: 1x at p=0.50, ~2x at 0.15/0.85, ~5x at 0.05/0.95,
// capped at 6x.
func SpreadFactor(yesPrice float64) float64 {
	variance := yesPrice * (1.0 - yesPrice)
	if variance <= 0 {
		return maxSpreadFactor
	}
	f := 0.25 / variance
	if f < 1.0 {
		return 1.0
	}
	if f > maxSpreadFactor {
		return maxSpreadFactor
	}
	return f
}

// ImpactFactor is the square-root size multiplier: an order 4x typical
// size pays 2x base impact.
func ImpactFactor(quantity, emaSize float64) float64 {
	return math.Sqrt(quantity / math.Max(emaSize, epsilon))
}

// Delta returns the total slippage in price units for an execution of
// quantity contracts anchored at yesPrice.
func (m *Model) Delta(marketID string, yesPrice, quantity float64) float64 {
	ema := m.EMASize(marketID, quantity)
	return m.base * SpreadFactor(yesPrice) * ImpactFactor(quantity, ema)
}

// Adjust applies slippage against the trader to a quoted price.
// quoted is the resting order's limit in its own leg's price space;
// the spread curve is always anchored at the YES-leg price. The result
// is clipped to (tick, 1-tick).
func (m *Model) Adjust(marketID string, side model.OrderSide, quoted, quantity, tick float64) float64 {
	yesAnchor := quoted
	if !side.IsYes() {
		yesAnchor = 1.0 - quoted
	}
	delta := m.Delta(marketID, yesAnchor, quantity)

	adjusted := quoted
	if side.IsBuy() {
		adjusted += delta
	} else {
		adjusted -= delta
	}

	if adjusted < tick {
		adjusted = tick
	}
	if adjusted > 1.0-tick {
		adjusted = 1.0 - tick
	}
	return adjusted
}
