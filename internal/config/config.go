package config

// BacktestConfig is the root configuration for one backtest run.
type BacktestConfig struct {
	Run      RunConfig      `yaml:"run"`
	Feed     FeedConfig     `yaml:"feed"`
	Output   OutputConfig   `yaml:"output"`
	Strategy StrategyConfig `yaml:"strategy"`
}

// RunConfig holds engine parameters.
type RunConfig struct {
	InitialCash    float64  `yaml:"initial_cash"`
	BaseSlippage   *float64 `yaml:"base_slippage"` // nil means the default; 0 disables
	EMAAlpha       float64  `yaml:"ema_alpha"`
	CommissionRate float64  `yaml:"commission_rate"`
	AllowShort     bool     `yaml:"allow_short"`

	SnapshotEvents   int   `yaml:"snapshot_events"`
	SnapshotInterval int64 `yaml:"snapshot_interval"`

	// TimestampUnit is one of "s", "ms", "us", "ns". It must match the
	// feed's timestamps; annualization depends on it.
	TimestampUnit string `yaml:"timestamp_unit"`
}

// UnitsPerYear converts the run's timestamp unit for annualization.
func (r RunConfig) UnitsPerYear() float64 {
	const secondsPerYear = 365.25 * 86400
	switch r.TimestampUnit {
	case "s":
		return secondsPerYear
	case "us":
		return secondsPerYear * 1e6
	case "ns":
		return secondsPerYear * 1e9
	default:
		return secondsPerYear * 1e3
	}
}

// StrategyConfig selects and parameterizes the strategy.
type StrategyConfig struct {
	Name   string             `yaml:"name"`
	Params map[string]float64 `yaml:"params"`
}

// FeedConfig selects the data source.
type FeedConfig struct {
	Kind string `yaml:"kind"` // "timescale" or "polymarket"

	// Timescale feed settings.
	Database DBConfig `yaml:"database"`
	Platform string   `yaml:"platform"` // "kalshi" or "polymarket"
	Tickers  []string `yaml:"tickers"`  // Empty means all markets
	StartTS  int64    `yaml:"start_ts"`
	EndTS    int64    `yaml:"end_ts"`

	// Polymarket live feed settings.
	Polymarket PolymarketConfig `yaml:"polymarket"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// PolymarketConfig holds live feed settings.
type PolymarketConfig struct {
	WSURL      string `yaml:"ws_url"`
	GammaURL   string `yaml:"gamma_url"`
	NumMarkets int    `yaml:"num_markets"`
}

// OutputConfig holds result sinks.
type OutputConfig struct {
	EventLog string `yaml:"event_log"` // NDJSON path; empty disables
}
