package model

import "github.com/google/uuid"

// -----------------------------------------------------------------------------
// Enums
// -----------------------------------------------------------------------------

// Platform identifies the exchange a market trades on.
type Platform int

const (
	PlatformKalshi Platform = iota
	PlatformPolymarket
)

// TickSize returns the minimum price increment for the platform.
// Kalshi quotes in whole cents; Polymarket CLOB quotes in tenths of a cent.
func (p Platform) TickSize() float64 {
	switch p {
	case PlatformPolymarket:
		return 0.001
	default:
		return 0.01
	}
}

func (p Platform) String() string {
	switch p {
	case PlatformKalshi:
		return "kalshi"
	case PlatformPolymarket:
		return "polymarket"
	default:
		return "unknown"
	}
}

// Resolution is the terminal outcome of a market.
type Resolution int

const (
	Unresolved Resolution = iota
	ResolvedYes
	ResolvedNo
)

func (r Resolution) String() string {
	switch r {
	case ResolvedYes:
		return "yes"
	case ResolvedNo:
		return "no"
	default:
		return "unresolved"
	}
}

// TakerSide is the aggressor side of a historical print.
type TakerSide int

const (
	// TakerBoughtYes means a YES buyer lifted an ask.
	TakerBoughtYes TakerSide = iota
	// TakerBoughtNo means a NO buyer (equivalently a YES seller) hit a bid.
	TakerBoughtNo
)

func (s TakerSide) String() string {
	if s == TakerBoughtYes {
		return "yes"
	}
	return "no"
}

// OrderSide combines action and contract leg for a limit order.
type OrderSide int

const (
	BuyYes OrderSide = iota
	SellYes
	BuyNo
	SellNo
)

// IsBuy reports whether the order adds contracts to its leg.
func (s OrderSide) IsBuy() bool {
	return s == BuyYes || s == BuyNo
}

// IsYes reports whether the order trades the YES leg.
func (s OrderSide) IsYes() bool {
	return s == BuyYes || s == SellYes
}

// IsBid reports whether the order rests on the bid ladder.
// BuyYes at p and SellNo at (1-p) are economically equivalent bids.
func (s OrderSide) IsBid() bool {
	return s == BuyYes || s == SellNo
}

func (s OrderSide) String() string {
	switch s {
	case BuyYes:
		return "buy_yes"
	case SellYes:
		return "sell_yes"
	case BuyNo:
		return "buy_no"
	case SellNo:
		return "sell_no"
	default:
		return "unknown"
	}
}

// OrderStatus is the lifecycle state of a limit order.
type OrderStatus int

const (
	OrderOpen OrderStatus = iota
	OrderFilled
	OrderCanceled
)

func (s OrderStatus) String() string {
	switch s {
	case OrderOpen:
		return "open"
	case OrderFilled:
		return "filled"
	case OrderCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Value Types
// -----------------------------------------------------------------------------

// Market is the static metadata for a tradeable binary market.
type Market struct {
	ID         string     // Opaque market identifier (ticker or condition id)
	Platform   Platform   // Exchange the market trades on
	Title      string     // Display title
	OpenTS     int64      // Open timestamp
	CloseTS    int64      // Close timestamp
	ResolveTS  int64      // Resolution timestamp; 0 means at CloseTS
	Resolution Resolution // Terminal outcome, Unresolved while live
}

// TickSize returns the market's minimum price increment.
func (m Market) TickSize() float64 {
	return m.Platform.TickSize()
}

// TradeEvent is one print from the historical tape.
type TradeEvent struct {
	TradeID   uuid.UUID // Platform-assigned trade id (zero for synthetic feeds)
	MarketID  string    // Market the trade occurred in
	TS        int64     // Event timestamp
	YesPrice  float64   // YES-leg price in (0, 1)
	Size      float64   // Contracts exchanged, positive
	TakerSide TakerSide // Aggressor side of the print
}

// NoPrice returns the NO-leg price implied by the no-arbitrage identity.
func (t TradeEvent) NoPrice() float64 {
	return 1.0 - t.YesPrice
}

// Order is a good-till-canceled limit order managed by the broker.
type Order struct {
	ID        uint64      // Monotone id assigned at acceptance
	MarketID  string      // Market the order rests in
	Side      OrderSide   // Action and leg
	Price     float64     // Limit price in the leg's own price space
	Quantity  float64     // Original quantity
	Remaining float64     // Unfilled quantity; resting iff Status == OrderOpen and Remaining > 0
	PlacedTS  int64       // Engine time at acceptance
	Status    OrderStatus // Lifecycle state
}

// Fill records an execution against a resting order.
type Fill struct {
	OrderID    uint64    // Order that filled
	MarketID   string    // Market of the fill
	Side       OrderSide // Side of the resting order
	Quantity   float64   // Executed quantity
	Price      float64   // Execution price after slippage, in the leg's price space
	Commission float64   // Proportional commission charged
	TS         int64     // Timestamp of the triggering trade
}

// Position holds both legs of a market position.
// Quantities are signed; shorts only occur when explicitly enabled.
type Position struct {
	MarketID    string
	YesQuantity float64 // Signed YES contracts held
	YesAvgCost  float64 // Average cost per YES contract
	NoQuantity  float64 // Signed NO contracts held
	NoAvgCost   float64 // Average cost per NO contract
	RealizedPnL float64 // Cumulative realized P&L for this market
}

// Flat reports whether both legs are zero.
func (p Position) Flat() bool {
	return p.YesQuantity == 0 && p.NoQuantity == 0
}

// MarkValue values the position at the given YES price.
func (p Position) MarkValue(yesPrice float64) float64 {
	return p.YesQuantity*yesPrice + p.NoQuantity*(1.0-yesPrice)
}

// Snapshot is a point-in-time record of portfolio state.
type Snapshot struct {
	TS            int64
	Cash          float64
	Equity        float64
	RealizedPnL   float64
	UnrealizedPnL float64
	Positions     []Position // Sorted by market id; nonzero legs only
}
