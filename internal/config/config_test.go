package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backtest.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfig = `
run:
  initial_cash: 25000
  ema_alpha: 0.10
  allow_short: true
  snapshot_events: 500
feed:
  kind: timescale
  platform: kalshi
  database:
    host: localhost
    name: kalshi
    user: backtest
    password: secret
output:
  event_log: run.ndjson
strategy:
  name: buy_low
  params:
    threshold: 0.20
    quantity: 10
`

func TestLoadAndValidate(t *testing.T) {
	cfg, err := LoadAndValidate(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("LoadAndValidate() error = %v", err)
	}

	if cfg.Run.InitialCash != 25000 {
		t.Errorf("InitialCash = %v, want 25000", cfg.Run.InitialCash)
	}
	if cfg.Run.EMAAlpha != 0.10 {
		t.Errorf("EMAAlpha = %v, want 0.10", cfg.Run.EMAAlpha)
	}
	if !cfg.Run.AllowShort {
		t.Error("AllowShort = false, want true")
	}
	if cfg.Strategy.Params["threshold"] != 0.20 {
		t.Errorf("threshold param = %v, want 0.20", cfg.Strategy.Params["threshold"])
	}
}

func TestDefaultsApplied(t *testing.T) {
	minimal := `
feed:
  kind: timescale
  database:
    host: localhost
    name: kalshi
    user: backtest
`
	cfg, err := LoadAndValidate(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("LoadAndValidate() error = %v", err)
	}

	if cfg.Run.InitialCash != DefaultInitialCash {
		t.Errorf("InitialCash = %v, want default %v", cfg.Run.InitialCash, DefaultInitialCash)
	}
	if cfg.Run.BaseSlippage == nil || *cfg.Run.BaseSlippage != DefaultBaseSlippage {
		t.Errorf("BaseSlippage = %v, want default %v", cfg.Run.BaseSlippage, DefaultBaseSlippage)
	}
	if cfg.Run.EMAAlpha != DefaultEMAAlpha {
		t.Errorf("EMAAlpha = %v, want default %v", cfg.Run.EMAAlpha, DefaultEMAAlpha)
	}
	if cfg.Run.TimestampUnit != "ms" {
		t.Errorf("TimestampUnit = %q, want ms", cfg.Run.TimestampUnit)
	}
	if cfg.Feed.Database.Port != DefaultDBPort {
		t.Errorf("Port = %d, want default %d", cfg.Feed.Database.Port, DefaultDBPort)
	}
	if cfg.Strategy.Name != DefaultStrategyName {
		t.Errorf("Strategy.Name = %q, want default %q", cfg.Strategy.Name, DefaultStrategyName)
	}
}

func TestExplicitZeroSlippageKept(t *testing.T) {
	content := `
run:
  base_slippage: 0
feed:
  kind: polymarket
`
	cfg, err := LoadAndValidate(writeConfig(t, content))
	if err != nil {
		t.Fatalf("LoadAndValidate() error = %v", err)
	}
	if cfg.Run.BaseSlippage == nil || *cfg.Run.BaseSlippage != 0 {
		t.Errorf("BaseSlippage = %v, want explicit 0", cfg.Run.BaseSlippage)
	}
}

func TestEnvExpansion(t *testing.T) {
	t.Setenv("BT_DB_PASSWORD", "hunter2")
	content := `
feed:
  kind: timescale
  database:
    host: localhost
    name: kalshi
    user: backtest
    password: ${BT_DB_PASSWORD}
`
	cfg, err := LoadAndValidate(writeConfig(t, content))
	if err != nil {
		t.Fatalf("LoadAndValidate() error = %v", err)
	}
	if cfg.Feed.Database.Password != "hunter2" {
		t.Errorf("Password = %q, want expanded env var", cfg.Feed.Database.Password)
	}
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad ema alpha", "run:\n  ema_alpha: 1.5\nfeed:\n  kind: polymarket\n"},
		{"negative slippage", "run:\n  base_slippage: -0.1\nfeed:\n  kind: polymarket\n"},
		{"negative commission", "run:\n  commission_rate: -1\nfeed:\n  kind: polymarket\n"},
		{"bad feed kind", "feed:\n  kind: csv\n"},
		{"missing db host", "feed:\n  kind: timescale\n  database:\n    name: x\n    user: y\n"},
		{"bad platform", "feed:\n  kind: timescale\n  platform: nyse\n  database:\n    host: h\n    name: x\n    user: y\n"},
		{"bad timestamp unit", "run:\n  timestamp_unit: weeks\nfeed:\n  kind: polymarket\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadAndValidate(writeConfig(t, tt.content)); err == nil {
				t.Error("LoadAndValidate() succeeded, want error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() on missing file succeeded, want error")
	}
}
