package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/prediction-backtest/internal/model"
)

// PolymarketConfig holds live feed settings.
type PolymarketConfig struct {
	WSURL      string
	GammaURL   string
	NumMarkets int

	HTTPTimeout    time.Duration // Default 15s
	ReconnectDelay time.Duration // Default 2s
	BufferSize     int           // Trade channel depth, default 1024
}

// PolymarketFeed streams live trades from the Polymarket CLOB market
// channel (public, no auth). It lets strategies run unchanged against
// real-time data as a paper run; there is no historical tape, so
// TradeCount is always zero and markets never resolve.
type PolymarketFeed struct {
	cfg    PolymarketConfig
	logger *slog.Logger
	http   *http.Client

	markets  []model.Market
	assetIDs []string
	// Maps CLOB token id to (condition id, YES leg or not).
	tokens map[string]tokenInfo

	consumed bool
}

type tokenInfo struct {
	conditionID string
	yesLeg      bool
}

// gammaMarket is the subset of the Gamma API market object the feed uses.
type gammaMarket struct {
	ConditionID  string `json:"conditionId"`
	Question     string `json:"question"`
	EndDate      string `json:"endDate"`
	ClobTokenIDs string `json:"clobTokenIds"` // JSON-encoded list of token id strings
}

// NewPolymarketFeed creates a live feed.
func NewPolymarketFeed(cfg PolymarketConfig, logger *slog.Logger) *PolymarketFeed {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 15 * time.Second
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 1024
	}
	return &PolymarketFeed{
		cfg:    cfg,
		logger: logger,
		http:   &http.Client{Timeout: cfg.HTTPTimeout},
		tokens: make(map[string]tokenInfo),
	}
}

// Markets discovers active markets from the Gamma API, sorted by 24h
// volume.
func (f *PolymarketFeed) Markets(ctx context.Context) ([]model.Market, error) {
	if f.markets != nil {
		return f.markets, nil
	}

	url := fmt.Sprintf(
		"%s/markets?active=true&closed=false&limit=%d&order=volume24hr&ascending=false",
		f.cfg.GammaURL, f.cfg.NumMarkets,
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build gamma request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch gamma markets: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gamma markets: status %d", resp.StatusCode)
	}

	var raw []gammaMarket
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode gamma markets: %w", err)
	}

	now := time.Now().UnixMilli()
	for _, gm := range raw {
		if gm.ConditionID == "" || gm.ClobTokenIDs == "" {
			continue
		}
		var tokenIDs []string
		if err := json.Unmarshal([]byte(gm.ClobTokenIDs), &tokenIDs); err != nil || len(tokenIDs) < 2 {
			continue
		}
		// Token order is [YES, NO].
		f.tokens[tokenIDs[0]] = tokenInfo{conditionID: gm.ConditionID, yesLeg: true}
		f.tokens[tokenIDs[1]] = tokenInfo{conditionID: gm.ConditionID, yesLeg: false}
		f.assetIDs = append(f.assetIDs, tokenIDs[0], tokenIDs[1])

		closeTS := now + int64(365*24*time.Hour/time.Millisecond)
		if t, err := time.Parse(time.RFC3339, gm.EndDate); err == nil {
			closeTS = t.UnixMilli()
		}
		f.markets = append(f.markets, model.Market{
			ID:       gm.ConditionID,
			Platform: model.PlatformPolymarket,
			Title:    gm.Question,
			OpenTS:   now,
			CloseTS:  closeTS,
		})
	}

	f.logger.Info("polymarket markets discovered",
		"markets", len(f.markets),
		"assets", len(f.assetIDs),
	)
	return f.markets, nil
}

// TradeCount is unknown for a live stream.
func (f *PolymarketFeed) TradeCount(context.Context) (int64, error) { return 0, nil }

// Trades connects to the market channel and streams prints until ctx is
// canceled. Single use.
func (f *PolymarketFeed) Trades(ctx context.Context) (TradeCursor, error) {
	if f.consumed {
		return nil, ErrStreamConsumed
	}
	f.consumed = true

	if f.markets == nil {
		if _, err := f.Markets(ctx); err != nil {
			return nil, err
		}
	}
	if len(f.assetIDs) == 0 {
		return nil, fmt.Errorf("no CLOB tokens for the discovered markets")
	}

	streamCtx, cancel := context.WithCancel(ctx)
	cur := &liveCursor{
		trades: make(chan model.TradeEvent, f.cfg.BufferSize),
		cancel: cancel,
	}

	g, gctx := errgroup.WithContext(streamCtx)
	g.Go(func() error { return f.streamLoop(gctx, cur.trades) })
	go func() {
		cur.setErr(g.Wait())
		close(cur.trades)
	}()

	return cur, nil
}

// streamLoop dials, subscribes, and pumps prints; reconnects on drops.
func (f *PolymarketFeed) streamLoop(ctx context.Context, out chan<- model.TradeEvent) error {
	var lastTS int64
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		err := f.streamOnce(ctx, out, &lastTS)
		if err != nil && ctx.Err() == nil {
			f.logger.Warn("polymarket stream dropped", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(f.cfg.ReconnectDelay):
		}
	}
}

func (f *PolymarketFeed) streamOnce(ctx context.Context, out chan<- model.TradeEvent, lastTS *int64) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.cfg.WSURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	sub := map[string]any{"type": "subscribe", "assets_ids": f.assetIDs}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	f.logger.Info("polymarket stream connected", "assets", len(f.assetIDs))

	// Unblock ReadMessage when the run stops.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		for _, trade := range f.parseMessage(raw, lastTS) {
			select {
			case out <- trade:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// wsMessage is the subset of market-channel messages the feed parses.
type wsMessage struct {
	EventType      string `json:"event_type"`
	AssetID        string `json:"asset_id"`
	Price          string `json:"price"`
	LastTradePrice string `json:"last_trade_price"`
	Size           string `json:"size"`
	Timestamp      string `json:"timestamp"`
}

// parseMessage extracts prints from a raw frame, which may carry one
// message or a batch. Book snapshots are ignored.
func (f *PolymarketFeed) parseMessage(raw []byte, lastTS *int64) []model.TradeEvent {
	var batch []wsMessage
	if err := json.Unmarshal(raw, &batch); err != nil {
		var single wsMessage
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil
		}
		batch = []wsMessage{single}
	}

	var trades []model.TradeEvent
	for _, msg := range batch {
		if msg.EventType != "last_trade_price" &&
			!(msg.EventType == "price_change" && msg.LastTradePrice != "") {
			continue
		}
		tok, ok := f.tokens[msg.AssetID]
		if !ok {
			continue
		}

		priceRaw := msg.Price
		if priceRaw == "" {
			priceRaw = msg.LastTradePrice
		}
		price, err := strconv.ParseFloat(priceRaw, 64)
		if err != nil || price <= 0 || price >= 1 {
			continue
		}

		size := 1.0
		if s, err := strconv.ParseFloat(msg.Size, 64); err == nil && s > 0 {
			size = s
		}

		// A print on the NO token is a NO-taker trade at (1 - yes price).
		yesPrice := price
		taker := model.TakerBoughtYes
		if !tok.yesLeg {
			yesPrice = 1.0 - price
			taker = model.TakerBoughtNo
		}

		ts := time.Now().UnixMilli()
		if v, err := strconv.ParseInt(msg.Timestamp, 10, 64); err == nil && v > 0 {
			ts = v
		}
		// The engine requires nondecreasing time; clamp clock skew.
		if ts < *lastTS {
			ts = *lastTS
		}
		*lastTS = ts

		trades = append(trades, model.TradeEvent{
			MarketID:  tok.conditionID,
			TS:        ts,
			YesPrice:  yesPrice,
			Size:      size,
			TakerSide: taker,
		})
	}
	return trades
}

// liveCursor adapts the stream channel to the TradeCursor contract.
type liveCursor struct {
	trades  chan model.TradeEvent
	current model.TradeEvent
	cancel  context.CancelFunc

	errOnce bool
	err     error
}

func (c *liveCursor) Next() bool {
	t, ok := <-c.trades
	if !ok {
		return false
	}
	c.current = t
	return true
}

func (c *liveCursor) Trade() model.TradeEvent { return c.current }

func (c *liveCursor) setErr(err error) {
	if !c.errOnce {
		c.errOnce = true
		c.err = err
	}
}

func (c *liveCursor) Err() error { return c.err }

func (c *liveCursor) Close() { c.cancel() }
