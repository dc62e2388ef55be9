package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/rickgao/prediction-backtest/internal/broker"
	"github.com/rickgao/prediction-backtest/internal/eventlog"
	"github.com/rickgao/prediction-backtest/internal/feed"
	"github.com/rickgao/prediction-backtest/internal/market"
	"github.com/rickgao/prediction-backtest/internal/model"
	"github.com/rickgao/prediction-backtest/internal/portfolio"
	"github.com/rickgao/prediction-backtest/internal/slippage"
	"github.com/rickgao/prediction-backtest/internal/strategy"
)

// ErrFeedOrderViolation indicates the feed emitted an event earlier than
// one already processed. Fatal: the run stops immediately.
var ErrFeedOrderViolation = errors.New("feed order violation")

// progressLogEvery is how many trades pass between progress lines.
const progressLogEvery = 250_000

// Config holds the parameters of one run.
type Config struct {
	InitialCash    float64
	BaseSlippage   float64 // Zero disables slippage
	EMAAlpha       float64 // EMA smoothing in (0, 1]; zero means 0.05
	CommissionRate float64
	AllowShort     bool

	// Snapshot sampling. Zero disables that trigger; with both zero only
	// the final snapshot is recorded.
	SnapshotEvents   int   // Snapshot every N processed events
	SnapshotInterval int64 // Snapshot every T timestamp units
}

// Result is the output of a completed run.
type Result struct {
	Strategy        string
	Final           model.Snapshot
	Fills           []model.Fill
	Snapshots       []model.Snapshot
	MarketPnLs      map[string]float64
	EventsProcessed int64
	TradesProcessed int64
	Elapsed         time.Duration
}

// Engine owns all mutable state for one backtest run.
type Engine struct {
	cfg    Config
	feed   feed.Feed
	strat  strategy.Strategy
	events *eventlog.Writer // optional
	logger *slog.Logger

	registry *market.Registry
	slip     *slippage.Model
	pf       *portfolio.Portfolio
	brk      *broker.Broker

	now             int64
	lastTS          int64
	eventCount      int64
	tradeCount      int64
	snapshots       []model.Snapshot
	eventsSinceSnap int
	lastSnapTS      int64
	haveSnapTS      bool
}

// New creates an engine. The event writer may be nil; the caller owns its
// Start/Stop lifecycle.
func New(cfg Config, f feed.Feed, strat strategy.Strategy, events *eventlog.Writer, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.EMAAlpha == 0 {
		cfg.EMAAlpha = slippage.DefaultAlpha
	}

	reg := market.NewRegistry()
	slip := slippage.New(cfg.BaseSlippage, cfg.EMAAlpha)
	pf := portfolio.New(cfg.InitialCash, cfg.AllowShort, logger)
	brk := broker.New(broker.Config{
		AllowShort:     cfg.AllowShort,
		CommissionRate: cfg.CommissionRate,
	}, reg, slip, pf, logger)

	return &Engine{
		cfg:      cfg,
		feed:     f,
		strat:    strat,
		events:   events,
		logger:   logger,
		registry: reg,
		slip:     slip,
		pf:       pf,
		brk:      brk,
		lastTS:   math.MinInt64,
	}
}

// Run replays the feed to completion or until ctx is canceled. Stops are
// honored at event granularity, never mid-event.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	markets, err := e.feed.Markets(ctx)
	if err != nil {
		return nil, fmt.Errorf("load markets: %w", err)
	}
	for _, m := range markets {
		e.registry.Register(m)
	}

	total, err := e.feed.TradeCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("trade count: %w", err)
	}
	e.logger.Info("backtest starting",
		"strategy", e.strat.Name(),
		"markets", len(markets),
		"trades", total,
		"initial_cash", e.cfg.InitialCash,
	)

	lifecycle := deriveLifecycle(markets)
	consumed := make([]bool, len(lifecycle))

	cursor, err := e.feed.Trades(ctx)
	if err != nil {
		return nil, fmt.Errorf("open trade stream: %w", err)
	}
	defer cursor.Close()

	sctx := &stratContext{e: e}
	e.strat.Initialize(sctx)

	li := 0
	havePending := false
	var pending model.TradeEvent

	for {
		if err := ctx.Err(); err != nil {
			e.logger.Warn("run stopped", "reason", err, "events", e.eventCount)
			break
		}

		for li < len(lifecycle) && consumed[li] {
			li++
		}

		if !havePending {
			if cursor.Next() {
				pending = cursor.Trade()
				havePending = true
			}
		}

		haveLC := li < len(lifecycle)
		if !haveLC && !havePending {
			break
		}

		// Lifecycle first when strictly earlier, or at an equal timestamp
		// only for opens (open < trade < close < resolve).
		runLC := haveLC && (!havePending ||
			lifecycle[li].ts < pending.TS ||
			(lifecycle[li].ts == pending.TS && lifecycle[li].kind.rank() < rankTrade))

		if runLC {
			if err := e.processLifecycle(sctx, lifecycle, consumed, li); err != nil {
				return nil, err
			}
			li++
			continue
		}

		if err := e.processTrade(sctx, pending); err != nil {
			return nil, err
		}
		havePending = false
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("trade stream: %w", err)
	}

	e.strat.Finalize(sctx)

	final := e.pf.Snapshot(e.now)
	e.snapshots = append(e.snapshots, final)
	e.appendRecord(e.now, eventlog.KindSnapshot, eventlog.SnapshotRecord(final))
	if err := e.pf.CheckIdentity(); err != nil {
		return nil, e.fatal(err)
	}

	elapsed := time.Since(start)
	e.logger.Info("backtest complete",
		"events", e.eventCount,
		"trades", e.tradeCount,
		"fills", len(e.pf.Fills()),
		"final_cash", final.Cash,
		"final_equity", final.Equity,
		"elapsed", elapsed,
	)

	return &Result{
		Strategy:        e.strat.Name(),
		Final:           final,
		Fills:           e.pf.Fills(),
		Snapshots:       e.snapshots,
		MarketPnLs:      e.pf.MarketPnLs(),
		EventsProcessed: e.eventCount,
		TradesProcessed: e.tradeCount,
		Elapsed:         elapsed,
	}, nil
}

// processLifecycle handles one derived event. A resolve sharing the close
// timestamp of the same market is coalesced so cancellation and payout
// both precede the strategy hooks.
func (e *Engine) processLifecycle(sctx *stratContext, lifecycle []lifecycleEvent, consumed []bool, idx int) error {
	ev := lifecycle[idx]
	if err := e.advanceClock(ev.ts, "lifecycle "+ev.marketID); err != nil {
		return err
	}
	e.eventCount++

	m, ok := e.registry.Get(ev.marketID)
	if !ok {
		return fmt.Errorf("lifecycle event for unknown market %s", ev.marketID)
	}

	switch ev.kind {
	case lifecycleOpen:
		if err := e.registry.Open(ev.marketID); err != nil {
			e.logger.Warn("market open skipped", "market", ev.marketID, "error", err)
			return nil
		}
		e.appendRecord(ev.ts, eventlog.KindOpen, eventlog.LifecyclePayload{MarketID: ev.marketID})
		e.logger.Debug("market open", "market", ev.marketID, "title", m.Title)
		e.strat.OnMarketOpen(sctx, m)

	case lifecycleClose:
		canceled := e.brk.CancelAll(ev.marketID)
		if err := e.registry.Close(ev.marketID); err != nil {
			e.logger.Warn("market close skipped", "market", ev.marketID, "error", err)
			return nil
		}
		e.appendRecord(ev.ts, eventlog.KindClose, eventlog.LifecyclePayload{MarketID: ev.marketID})
		e.logger.Debug("market close", "market", ev.marketID, "orders_canceled", canceled)

		// Coalesce a same-timestamp resolve so the payout lands before
		// either hook fires.
		if ri := findCoalescedResolve(lifecycle, consumed, idx); ri >= 0 {
			consumed[ri] = true
			res := lifecycle[ri]
			e.eventCount++
			pnl := e.resolve(res)
			e.strat.OnMarketClose(sctx, m)
			resolvedMarket, _ := e.registry.Get(ev.marketID)
			e.strat.OnMarketResolve(sctx, resolvedMarket, res.outcome)
			e.logger.Debug("market resolved at close",
				"market", ev.marketID,
				"outcome", res.outcome.String(),
				"pnl", pnl,
			)
			return e.maybeSnapshot()
		}

		e.strat.OnMarketClose(sctx, m)

	case lifecycleResolve:
		pnl := e.resolve(ev)
		resolvedMarket, _ := e.registry.Get(ev.marketID)
		e.strat.OnMarketResolve(sctx, resolvedMarket, ev.outcome)
		e.logger.Debug("market resolve",
			"market", ev.marketID,
			"outcome", ev.outcome.String(),
			"pnl", pnl,
		)
	}

	return e.maybeSnapshot()
}

// resolve applies a resolution to registry and portfolio and logs it.
func (e *Engine) resolve(ev lifecycleEvent) float64 {
	if err := e.registry.Resolve(ev.marketID, ev.outcome); err != nil {
		e.logger.Warn("market resolve transition", "market", ev.marketID, "error", err)
	}
	pnl := e.pf.ResolveMarket(ev.marketID, ev.outcome)
	e.appendRecord(ev.ts, eventlog.KindResolve, eventlog.LifecyclePayload{
		MarketID: ev.marketID,
		Outcome:  ev.outcome.String(),
	})
	return pnl
}

// findCoalescedResolve scans same-timestamp events after a close for the
// matching market's resolve. Returns -1 when none applies.
func findCoalescedResolve(lifecycle []lifecycleEvent, consumed []bool, closeIdx int) int {
	ts := lifecycle[closeIdx].ts
	for i := closeIdx + 1; i < len(lifecycle) && lifecycle[i].ts == ts; i++ {
		if consumed[i] {
			continue
		}
		if lifecycle[i].kind == lifecycleResolve && lifecycle[i].marketID == lifecycle[closeIdx].marketID {
			return i
		}
	}
	return -1
}

// processTrade runs the hot path for one print.
func (e *Engine) processTrade(sctx *stratContext, t model.TradeEvent) error {
	if err := e.advanceClock(t.TS, "trade "+t.MarketID); err != nil {
		return err
	}
	e.eventCount++
	e.tradeCount++

	if t.YesPrice <= 0 || t.YesPrice >= 1 || t.Size <= 0 {
		e.logger.Warn("malformed trade skipped",
			"market", t.MarketID,
			"price", t.YesPrice,
			"size", t.Size,
		)
		return e.maybeSnapshot()
	}

	// EMA first: the incoming trade influences its own slippage.
	e.slip.Observe(t.MarketID, t.Size)
	e.pf.UpdatePrice(t.MarketID, t.YesPrice)
	e.appendRecord(t.TS, eventlog.KindTrade, eventlog.TradeRecord(t))

	fills, err := e.brk.MatchTrade(t)
	if err != nil {
		if errors.Is(err, broker.ErrUnknownMarket) {
			e.logger.Warn("trade in unregistered market skipped", "market", t.MarketID)
			return e.maybeSnapshot()
		}
		return e.fatal(err)
	}

	for _, fill := range fills {
		if err := e.pf.ApplyFill(fill); err != nil {
			return e.fatal(fmt.Errorf("apply fill %d: %w", fill.OrderID, err))
		}
		e.appendRecord(fill.TS, eventlog.KindFill, eventlog.FillRecord(fill))
		e.logger.Debug("order filled",
			"order_id", fill.OrderID,
			"market", fill.MarketID,
			"side", fill.Side.String(),
			"quantity", fill.Quantity,
			"price", fill.Price,
			"cash", e.pf.Cash(),
		)
		e.strat.OnFill(sctx, fill)
	}

	if err := e.maybeSnapshot(); err != nil {
		return err
	}

	e.strat.OnTrade(sctx, t)

	if e.tradeCount%progressLogEvery == 0 {
		e.logger.Info("progress",
			"trades", e.tradeCount,
			"fills", len(e.pf.Fills()),
			"equity", e.pf.Snapshot(e.now).Equity,
		)
	}
	return nil
}

// advanceClock enforces nondecreasing event time.
func (e *Engine) advanceClock(ts int64, what string) error {
	if ts < e.lastTS {
		snap := e.pf.Snapshot(e.lastTS)
		e.logger.Error("feed order violation",
			"event", what,
			"event_ts", ts,
			"last_ts", e.lastTS,
			"cash", snap.Cash,
			"equity", snap.Equity,
		)
		return fmt.Errorf("%w: %s at %d after %d", ErrFeedOrderViolation, what, ts, e.lastTS)
	}
	e.lastTS = ts
	e.now = ts
	return nil
}

// maybeSnapshot samples the portfolio when an event-count or time
// boundary is crossed, and verifies the accounting identity.
func (e *Engine) maybeSnapshot() error {
	e.eventsSinceSnap++

	due := false
	if e.cfg.SnapshotEvents > 0 && e.eventsSinceSnap >= e.cfg.SnapshotEvents {
		due = true
	}
	if e.cfg.SnapshotInterval > 0 {
		if !e.haveSnapTS {
			e.lastSnapTS = e.now
			e.haveSnapTS = true
		} else if e.now-e.lastSnapTS >= e.cfg.SnapshotInterval {
			due = true
		}
	}
	if !due {
		return nil
	}

	e.eventsSinceSnap = 0
	e.lastSnapTS = e.now

	snap := e.pf.Snapshot(e.now)
	e.snapshots = append(e.snapshots, snap)
	e.appendRecord(e.now, eventlog.KindSnapshot, eventlog.SnapshotRecord(snap))

	if err := e.pf.CheckIdentity(); err != nil {
		return e.fatal(err)
	}
	return nil
}

// fatal logs terminal diagnostics with the last-known portfolio state.
func (e *Engine) fatal(err error) error {
	snap := e.pf.Snapshot(e.now)
	e.logger.Error("run aborted",
		"error", err,
		"ts", e.now,
		"events", e.eventCount,
		"cash", snap.Cash,
		"equity", snap.Equity,
		"realized", snap.RealizedPnL,
	)
	return err
}

func (e *Engine) appendRecord(ts int64, kind string, payload any) {
	if e.events == nil {
		return
	}
	e.events.Append(ts, kind, payload)
}

// -----------------------------------------------------------------------------
// Strategy context
// -----------------------------------------------------------------------------

// stratContext exposes the engine to strategy callbacks. Placements and
// cancels take effect immediately in broker state; they become eligible
// for matching on the next event.
type stratContext struct {
	e *Engine
}

func (c *stratContext) BuyYes(marketID string, price, quantity float64) (uint64, error) {
	return c.e.brk.Place(marketID, model.BuyYes, price, quantity, c.e.now)
}

func (c *stratContext) SellYes(marketID string, price, quantity float64) (uint64, error) {
	return c.e.brk.Place(marketID, model.SellYes, price, quantity, c.e.now)
}

func (c *stratContext) BuyNo(marketID string, price, quantity float64) (uint64, error) {
	return c.e.brk.Place(marketID, model.BuyNo, price, quantity, c.e.now)
}

func (c *stratContext) SellNo(marketID string, price, quantity float64) (uint64, error) {
	return c.e.brk.Place(marketID, model.SellNo, price, quantity, c.e.now)
}

func (c *stratContext) CancelOrder(orderID uint64) error {
	return c.e.brk.Cancel(orderID)
}

func (c *stratContext) CancelAll(marketID string) int {
	return c.e.brk.CancelAll(marketID)
}

func (c *stratContext) Portfolio() model.Snapshot {
	return c.e.pf.Snapshot(c.e.now)
}

func (c *stratContext) OpenOrders(marketID string) []model.Order {
	return c.e.brk.OpenOrders(marketID)
}

func (c *stratContext) Market(marketID string) (model.Market, bool) {
	return c.e.registry.Get(marketID)
}

func (c *stratContext) LastPrice(marketID string) (float64, bool) {
	return c.e.pf.LastPrice(marketID)
}

func (c *stratContext) Now() int64 {
	return c.e.now
}
