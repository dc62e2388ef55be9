package config

// Default values for optional configuration fields.
const (
	DefaultInitialCash    = 10_000.0
	DefaultBaseSlippage   = 0.005
	DefaultEMAAlpha       = 0.05
	DefaultTimestampUnit  = "ms"
	DefaultSnapshotEvents = 1000

	DefaultDBPort    = 5432
	DefaultDBSSLMode = "prefer"
	DefaultMaxConns  = 10
	DefaultMinConns  = 2

	DefaultFeedKind       = "timescale"
	DefaultPlatform       = "kalshi"
	DefaultPolymarketWS   = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	DefaultGammaURL       = "https://gamma-api.polymarket.com"
	DefaultLiveNumMarkets = 30

	DefaultStrategyName = "buy_low"
)

func (c *BacktestConfig) applyDefaults() {
	// Run defaults
	if c.Run.InitialCash == 0 {
		c.Run.InitialCash = DefaultInitialCash
	}
	if c.Run.BaseSlippage == nil {
		v := DefaultBaseSlippage
		c.Run.BaseSlippage = &v
	}
	if c.Run.EMAAlpha == 0 {
		c.Run.EMAAlpha = DefaultEMAAlpha
	}
	if c.Run.SnapshotEvents == 0 && c.Run.SnapshotInterval == 0 {
		c.Run.SnapshotEvents = DefaultSnapshotEvents
	}
	if c.Run.TimestampUnit == "" {
		c.Run.TimestampUnit = DefaultTimestampUnit
	}

	// Strategy defaults
	if c.Strategy.Name == "" {
		c.Strategy.Name = DefaultStrategyName
	}

	// Feed defaults
	if c.Feed.Kind == "" {
		c.Feed.Kind = DefaultFeedKind
	}
	if c.Feed.Platform == "" {
		c.Feed.Platform = DefaultPlatform
	}
	applyDBDefaults(&c.Feed.Database)
	if c.Feed.Polymarket.WSURL == "" {
		c.Feed.Polymarket.WSURL = DefaultPolymarketWS
	}
	if c.Feed.Polymarket.GammaURL == "" {
		c.Feed.Polymarket.GammaURL = DefaultGammaURL
	}
	if c.Feed.Polymarket.NumMarkets == 0 {
		c.Feed.Polymarket.NumMarkets = DefaultLiveNumMarkets
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
