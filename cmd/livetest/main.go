// Command livetest streams live Polymarket trades through a strategy as
// a paper run. Useful for smoke-testing strategy logic and the live feed
// without historical data.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/prediction-backtest/internal/engine"
	"github.com/rickgao/prediction-backtest/internal/feed"
	"github.com/rickgao/prediction-backtest/internal/strategy"
	"github.com/rickgao/prediction-backtest/internal/version"
)

func main() {
	numMarkets := flag.Int("markets", 10, "number of Polymarket markets to stream")
	duration := flag.Duration("duration", 5*time.Minute, "how long to stream")
	cash := flag.Float64("cash", 10_000, "paper starting cash")
	threshold := flag.Float64("threshold", 0.20, "buy_low threshold")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting live paper run",
		"version", version.Version,
		"markets", *numMarkets,
		"duration", *duration,
	)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	liveFeed := feed.NewPolymarketFeed(feed.PolymarketConfig{
		WSURL:      "wss://ws-subscriptions-clob.polymarket.com/ws/market",
		GammaURL:   "https://gamma-api.polymarket.com",
		NumMarkets: *numMarkets,
	}, logger)

	strat := strategy.NewBuyLow(*threshold, 10, logger)

	eng := engine.New(engine.Config{
		InitialCash:    *cash,
		BaseSlippage:   0.005,
		EMAAlpha:       0.05,
		SnapshotEvents: 100,
	}, liveFeed, strat, nil, logger)

	var result *engine.Result
	g.Go(func() error {
		var err error
		result, err = eng.Run(gctx)
		cancel()
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("live run failed", "error", err)
		os.Exit(1)
	}

	logger.Info("live paper run complete",
		"trades", result.TradesProcessed,
		"fills", len(result.Fills),
		"final_cash", result.Final.Cash,
		"final_equity", result.Final.Equity,
	)
}
