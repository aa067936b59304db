package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
sim:
  symbol: MSFT
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Sim.Symbol != "MSFT" {
		t.Fatalf("yaml value not applied: %s", cfg.Sim.Symbol)
	}
	if !cfg.Sim.Capital.Equal(decimal.NewFromInt(100000)) {
		t.Fatalf("default capital missing: %s", cfg.Sim.Capital)
	}
	if cfg.Sim.ProbFull != 0.70 || cfg.Sim.ProbPartial != 0.20 {
		t.Fatalf("default outcome probabilities missing: %v/%v", cfg.Sim.ProbFull, cfg.Sim.ProbPartial)
	}
	if cfg.RateWindow() != time.Minute {
		t.Fatalf("expected 60s rate window, got %s", cfg.RateWindow())
	}
}

func TestLoadConfigParsesDecimals(t *testing.T) {
	path := writeConfig(t, `
sim:
  capital: 250000.50
  commission_per_share: 0.005
  tick_size: 0.01
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if !cfg.Sim.Capital.Equal(decimal.RequireFromString("250000.50")) {
		t.Fatalf("capital parsed wrong: %s", cfg.Sim.Capital)
	}
	if !cfg.Sim.CommissionPerShare.Equal(decimal.RequireFromString("0.005")) {
		t.Fatalf("commission parsed wrong: %s", cfg.Sim.CommissionPerShare)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BACKTEST_SEED", "777")
	t.Setenv("BACKTEST_CAPITAL", "5000")
	t.Setenv("BACKTEST_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(writeConfig(t, "sim:\n  seed: 1\n"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Sim.Seed != 777 {
		t.Fatalf("seed override missing: %d", cfg.Sim.Seed)
	}
	if !cfg.Sim.Capital.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("capital override missing: %s", cfg.Sim.Capital)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("log level override missing: %s", cfg.Logging.Level)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"zero capital":     func(c *Config) { c.Sim.Capital = decimal.Zero },
		"negative pct":     func(c *Config) { c.Sim.CommissionPct = decimal.NewFromInt(-1) },
		"zero long limit":  func(c *Config) { c.Sim.MaxLongPosition = 0 },
		"zero rate cap":    func(c *Config) { c.Sim.MaxOrdersPerWindow = 0 },
		"zero qty":         func(c *Config) { c.Sim.OrderQty = 0 },
		"probs above one":  func(c *Config) { c.Sim.ProbFull, c.Sim.ProbPartial = 0.9, 0.2 },
		"short >= long":    func(c *Config) { c.Strategy.ShortWindow = 60 },
		"empty symbol":     func(c *Config) { c.Sim.Symbol = "" },
		"empty store path": func(c *Config) { c.Storage.Path = "" },
		"negative drift":   func(c *Config) { c.Sim.VolatilityScale = -0.1 },
	}
	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation failure", name)
		}
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("missing config must fail")
	}
}
