package feed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/prediction-backtest/internal/model"
)

// priceScale converts stored integer prices (hundred-thousandths of a
// dollar) to float dollars.
const priceScale = 100_000.0

// microsPerMilli converts stored microsecond timestamps to the engine's
// millisecond clock.
const microsPerMilli = 1000

// TimescaleConfig selects what the feed replays.
type TimescaleConfig struct {
	Platform model.Platform
	Tickers  []string // Empty means every market with trades in range
	StartTS  int64    // Milliseconds; 0 means unbounded
	EndTS    int64    // Milliseconds; 0 means unbounded
}

// TimescaleFeed streams historical trades from the data platform's
// trades hypertable and markets table.
type TimescaleFeed struct {
	cfg    TimescaleConfig
	db     *pgxpool.Pool
	logger *slog.Logger

	consumed bool
}

// NewTimescaleFeed creates a feed over an existing connection pool.
func NewTimescaleFeed(cfg TimescaleConfig, db *pgxpool.Pool, logger *slog.Logger) *TimescaleFeed {
	if logger == nil {
		logger = slog.Default()
	}
	return &TimescaleFeed{cfg: cfg, db: db, logger: logger}
}

// Markets loads market metadata for the configured tickers.
func (f *TimescaleFeed) Markets(ctx context.Context) ([]model.Market, error) {
	query := `
		SELECT ticker, title, market_status, result, open_ts, close_ts
		FROM markets
		WHERE ($1::text[] IS NULL OR ticker = ANY($1))
		ORDER BY ticker
	`
	rows, err := f.db.Query(ctx, query, tickerFilter(f.cfg.Tickers))
	if err != nil {
		return nil, fmt.Errorf("query markets: %w", err)
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		var (
			ticker, title, status, result string
			openTS, closeTS               int64
		)
		if err := rows.Scan(&ticker, &title, &status, &result, &openTS, &closeTS); err != nil {
			return nil, fmt.Errorf("scan market: %w", err)
		}
		markets = append(markets, model.Market{
			ID:         ticker,
			Platform:   f.cfg.Platform,
			Title:      title,
			OpenTS:     openTS / microsPerMilli,
			CloseTS:    closeTS / microsPerMilli,
			Resolution: parseResult(result),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate markets: %w", err)
	}

	f.logger.Info("markets loaded", "count", len(markets))
	return markets, nil
}

// Trades opens a lazy cursor over the tape, ordered by exchange
// timestamp. Single use.
func (f *TimescaleFeed) Trades(ctx context.Context) (TradeCursor, error) {
	if f.consumed {
		return nil, ErrStreamConsumed
	}
	f.consumed = true

	query := `
		SELECT trade_id, exchange_ts, ticker, price, size, taker_side
		FROM trades
		WHERE ($1::text[] IS NULL OR ticker = ANY($1))
		  AND ($2::bigint = 0 OR exchange_ts >= $2)
		  AND ($3::bigint = 0 OR exchange_ts < $3)
		ORDER BY exchange_ts, trade_id
	`
	rows, err := f.db.Query(ctx, query,
		tickerFilter(f.cfg.Tickers),
		f.cfg.StartTS*microsPerMilli,
		f.cfg.EndTS*microsPerMilli,
	)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	return &timescaleCursor{rows: rows}, nil
}

// TradeCount returns the number of trades in range.
func (f *TimescaleFeed) TradeCount(ctx context.Context) (int64, error) {
	query := `
		SELECT count(*)
		FROM trades
		WHERE ($1::text[] IS NULL OR ticker = ANY($1))
		  AND ($2::bigint = 0 OR exchange_ts >= $2)
		  AND ($3::bigint = 0 OR exchange_ts < $3)
	`
	var count int64
	err := f.db.QueryRow(ctx, query,
		tickerFilter(f.cfg.Tickers),
		f.cfg.StartTS*microsPerMilli,
		f.cfg.EndTS*microsPerMilli,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count trades: %w", err)
	}
	return count, nil
}

func tickerFilter(tickers []string) []string {
	if len(tickers) == 0 {
		return nil
	}
	return tickers
}

func parseResult(result string) model.Resolution {
	switch result {
	case "yes":
		return model.ResolvedYes
	case "no":
		return model.ResolvedNo
	default:
		return model.Unresolved
	}
}

// timescaleCursor adapts pgx rows to the TradeCursor contract.
type timescaleCursor struct {
	rows    pgx.Rows
	current model.TradeEvent
	err     error
}

func (c *timescaleCursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}
	var (
		tradeID    uuid.UUID
		exchangeTS int64
		ticker     string
		price      int64
		size       int64
		takerYes   bool
	)
	if err := c.rows.Scan(&tradeID, &exchangeTS, &ticker, &price, &size, &takerYes); err != nil {
		c.err = fmt.Errorf("scan trade: %w", err)
		return false
	}

	taker := model.TakerBoughtNo
	if takerYes {
		taker = model.TakerBoughtYes
	}
	c.current = model.TradeEvent{
		TradeID:   tradeID,
		MarketID:  ticker,
		TS:        exchangeTS / microsPerMilli,
		YesPrice:  float64(price) / priceScale,
		Size:      float64(size),
		TakerSide: taker,
	}
	return true
}

func (c *timescaleCursor) Trade() model.TradeEvent { return c.current }

func (c *timescaleCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

func (c *timescaleCursor) Close() { c.rows.Close() }
