package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/prediction-backtest/internal/config"
	"github.com/rickgao/prediction-backtest/internal/database"
	"github.com/rickgao/prediction-backtest/internal/engine"
	"github.com/rickgao/prediction-backtest/internal/eventlog"
	"github.com/rickgao/prediction-backtest/internal/feed"
	"github.com/rickgao/prediction-backtest/internal/metrics"
	"github.com/rickgao/prediction-backtest/internal/model"
	"github.com/rickgao/prediction-backtest/internal/strategy"
	"github.com/rickgao/prediction-backtest/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/backtest.yaml", "path to config file")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting backtest",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Stop on SIGINT/SIGTERM at event granularity.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	dataFeed, cleanup, err := buildFeed(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build feed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	strat, err := buildStrategy(cfg.Strategy, logger)
	if err != nil {
		logger.Error("failed to build strategy", "error", err)
		os.Exit(1)
	}

	var events *eventlog.Writer
	if cfg.Output.EventLog != "" {
		f, err := os.Create(cfg.Output.EventLog)
		if err != nil {
			logger.Error("failed to create event log", "path", cfg.Output.EventLog, "error", err)
			os.Exit(1)
		}
		defer f.Close()

		events = eventlog.NewWriter(eventlog.DefaultConfig(), f, logger)
		if err := events.Start(ctx); err != nil {
			logger.Error("failed to start event log", "error", err)
			os.Exit(1)
		}
		logger.Info("event log enabled", "path", cfg.Output.EventLog)
	}

	eng := engine.New(engine.Config{
		InitialCash:      cfg.Run.InitialCash,
		BaseSlippage:     *cfg.Run.BaseSlippage,
		EMAAlpha:         cfg.Run.EMAAlpha,
		CommissionRate:   cfg.Run.CommissionRate,
		AllowShort:       cfg.Run.AllowShort,
		SnapshotEvents:   cfg.Run.SnapshotEvents,
		SnapshotInterval: cfg.Run.SnapshotInterval,
	}, dataFeed, strat, events, logger)

	result, runErr := eng.Run(ctx)

	if events != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if err := events.Stop(stopCtx); err != nil {
			logger.Error("event log shutdown", "error", err)
		}
	}

	if runErr != nil {
		logger.Error("backtest failed", "error", runErr)
		os.Exit(1)
	}

	summary := metrics.Compute(
		result.Snapshots,
		result.Fills,
		cfg.Run.InitialCash,
		cfg.Run.UnitsPerYear(),
		result.MarketPnLs,
	)
	printSummary(result, summary)
}

// buildFeed constructs the configured data source. The returned cleanup
// releases its resources.
func buildFeed(ctx context.Context, cfg *config.BacktestConfig, logger *slog.Logger) (feed.Feed, func(), error) {
	switch cfg.Feed.Kind {
	case "timescale":
		pool, err := database.Connect(ctx, cfg.Feed.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		platform := model.PlatformKalshi
		if cfg.Feed.Platform == "polymarket" {
			platform = model.PlatformPolymarket
		}
		f := feed.NewTimescaleFeed(feed.TimescaleConfig{
			Platform: platform,
			Tickers:  cfg.Feed.Tickers,
			StartTS:  cfg.Feed.StartTS,
			EndTS:    cfg.Feed.EndTS,
		}, pool, logger)
		return f, pool.Close, nil

	case "polymarket":
		f := feed.NewPolymarketFeed(feed.PolymarketConfig{
			WSURL:      cfg.Feed.Polymarket.WSURL,
			GammaURL:   cfg.Feed.Polymarket.GammaURL,
			NumMarkets: cfg.Feed.Polymarket.NumMarkets,
		}, logger)
		return f, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown feed kind %q", cfg.Feed.Kind)
	}
}

// buildStrategy constructs the configured strategy.
func buildStrategy(cfg config.StrategyConfig, logger *slog.Logger) (strategy.Strategy, error) {
	param := func(name string, fallback float64) float64 {
		if v, ok := cfg.Params[name]; ok {
			return v
		}
		return fallback
	}

	switch cfg.Name {
	case "buy_low":
		return strategy.NewBuyLow(param("threshold", 0.20), param("quantity", 10), logger), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", cfg.Name)
	}
}

func printSummary(result *engine.Result, s metrics.Summary) {
	fmt.Println()
	fmt.Printf("Backtest results — %s\n", result.Strategy)
	fmt.Printf("  events processed     %d (%d trades, %d fills)\n",
		result.EventsProcessed, result.TradesProcessed, s.NumFills)
	fmt.Printf("  elapsed              %s\n", result.Elapsed.Round(time.Millisecond))
	fmt.Println()
	fmt.Printf("  final equity         %.2f\n", s.FinalEquity)
	fmt.Printf("  total return         %.2f%%\n", s.TotalReturn*100)
	fmt.Printf("  annualized return    %.2f%%\n", s.AnnualizedReturn*100)
	fmt.Printf("  sharpe               %.3f\n", s.SharpeRatio)
	fmt.Printf("  sortino              %.3f\n", s.SortinoRatio)
	fmt.Printf("  max drawdown         %.2f%%\n", s.MaxDrawdown*100)
	fmt.Println()
	fmt.Printf("  markets traded       %.0f\n", s.NumMarketTrades)
	fmt.Printf("  win rate             %.1f%%\n", s.WinRate*100)
	fmt.Printf("  avg trade P&L        %.4f\n", s.AvgTradePnL)
	fmt.Printf("  profit factor        %.3f\n", s.ProfitFactor)
	fmt.Printf("  realized P&L         %.2f\n", s.TotalRealized)
	fmt.Printf("  commission paid      %.4f\n", s.TotalCommission)
}
