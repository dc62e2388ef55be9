package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *BacktestConfig) Validate() error {
	if c.Run.InitialCash <= 0 {
		return errors.New("run.initial_cash must be > 0")
	}
	if c.Run.BaseSlippage != nil && *c.Run.BaseSlippage < 0 {
		return errors.New("run.base_slippage must be >= 0")
	}
	if c.Run.EMAAlpha <= 0 || c.Run.EMAAlpha > 1 {
		return errors.New("run.ema_alpha must be in (0, 1]")
	}
	if c.Run.CommissionRate < 0 {
		return errors.New("run.commission_rate must be >= 0")
	}
	if c.Run.SnapshotEvents < 0 || c.Run.SnapshotInterval < 0 {
		return errors.New("run snapshot settings must be >= 0")
	}
	switch c.Run.TimestampUnit {
	case "s", "ms", "us", "ns":
	default:
		return fmt.Errorf("run.timestamp_unit must be one of s, ms, us, ns, got %q", c.Run.TimestampUnit)
	}

	switch c.Feed.Kind {
	case "timescale":
		if err := c.Feed.Database.validate("feed.database"); err != nil {
			return err
		}
		if c.Feed.Platform != "kalshi" && c.Feed.Platform != "polymarket" {
			return fmt.Errorf("feed.platform must be kalshi or polymarket, got %q", c.Feed.Platform)
		}
	case "polymarket":
		if c.Feed.Polymarket.NumMarkets < 1 {
			return errors.New("feed.polymarket.num_markets must be >= 1")
		}
	default:
		return fmt.Errorf("feed.kind must be timescale or polymarket, got %q", c.Feed.Kind)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	return nil
}
