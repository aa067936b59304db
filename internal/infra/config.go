package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds every simulation setting. LoadConfig reads the yaml
// file, applies defaults, then lets environment variables override the
// reproducibility-sensitive knobs.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Sim struct {
		Symbol             string          `yaml:"symbol"`
		Capital            decimal.Decimal `yaml:"capital"`
		CommissionPerShare decimal.Decimal `yaml:"commission_per_share"`
		CommissionPct      decimal.Decimal `yaml:"commission_pct"`
		MaxLongPosition    int64           `yaml:"max_long_position"`
		MaxShortPosition   int64           `yaml:"max_short_position"`
		MaxOrdersPerWindow int             `yaml:"max_orders_per_window"`
		RateWindowSec      int             `yaml:"rate_window_sec"`
		OrderQty           int64           `yaml:"order_qty"`
		Seed               int64           `yaml:"seed"`
		SpreadCrossing     bool            `yaml:"spread_crossing"`
		ProbFull           float64         `yaml:"prob_full"`
		ProbPartial        float64         `yaml:"prob_partial"`
		VolatilityScale    float64         `yaml:"volatility_scale"`
		SpreadPct          float64         `yaml:"spread_pct"`
		TickSize           decimal.Decimal `yaml:"tick_size"`
	} `yaml:"sim"`

	Strategy struct {
		ShortWindow int `yaml:"short_window"`
		LongWindow  int `yaml:"long_window"`
	} `yaml:"strategy"`

	Feed struct {
		ListenAddr string `yaml:"listen_addr"` // empty disables the feed
	} `yaml:"feed"`

	Storage struct {
		Path string `yaml:"path"` // ":memory:" supported
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// RateWindow returns the trailing order-rate window as a duration.
func (c *Config) RateWindow() time.Duration {
	return time.Duration(c.Sim.RateWindowSec) * time.Second
}

// DefaultConfig returns the numeric defaults of the simulation. They
// are tunable policy, not part of the correctness contract.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.App.Name = "backtest_go"
	cfg.Sim.Symbol = "AAPL"
	cfg.Sim.Capital = decimal.NewFromInt(100000)
	cfg.Sim.MaxLongPosition = 500
	cfg.Sim.MaxShortPosition = 500
	cfg.Sim.MaxOrdersPerWindow = 30
	cfg.Sim.RateWindowSec = 60
	cfg.Sim.OrderQty = 10
	cfg.Sim.Seed = 1
	cfg.Sim.SpreadCrossing = true
	cfg.Sim.ProbFull = 0.70
	cfg.Sim.ProbPartial = 0.20
	cfg.Sim.VolatilityScale = 0.0005
	cfg.Sim.SpreadPct = 0.0001
	cfg.Sim.TickSize = decimal.New(1, -2)
	cfg.Strategy.ShortWindow = 20
	cfg.Strategy.LongWindow = 60
	cfg.Storage.Path = "data/backtest.db"
	cfg.Logging.Level = "info"
	return cfg
}

// LoadConfig reads, overrides and validates the configuration.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Sim.Symbol == "" {
		return fmt.Errorf("sim.symbol is required")
	}
	if !c.Sim.Capital.IsPositive() {
		return fmt.Errorf("sim.capital must be positive")
	}
	if c.Sim.CommissionPerShare.IsNegative() || c.Sim.CommissionPct.IsNegative() {
		return fmt.Errorf("commissions must be non-negative")
	}
	if c.Sim.MaxLongPosition <= 0 || c.Sim.MaxShortPosition < 0 {
		return fmt.Errorf("position limits must be positive")
	}
	if c.Sim.MaxOrdersPerWindow <= 0 || c.Sim.RateWindowSec <= 0 {
		return fmt.Errorf("order rate limit and window must be positive")
	}
	if c.Sim.OrderQty <= 0 {
		return fmt.Errorf("sim.order_qty must be positive")
	}
	if c.Sim.ProbFull < 0 || c.Sim.ProbPartial < 0 || c.Sim.ProbFull+c.Sim.ProbPartial > 1 {
		return fmt.Errorf("outcome probabilities must be non-negative and sum to at most 1")
	}
	if c.Sim.VolatilityScale < 0 || c.Sim.SpreadPct < 0 {
		return fmt.Errorf("volatility_scale and spread_pct must be non-negative")
	}
	if c.Strategy.ShortWindow <= 0 || c.Strategy.ShortWindow >= c.Strategy.LongWindow {
		return fmt.Errorf("strategy windows must satisfy 0 < short < long")
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	return nil
}

// overrideWithEnv applies environment overrides where present.
func overrideWithEnv(cfg *Config) {
	if seed := os.Getenv("BACKTEST_SEED"); seed != "" {
		if v, err := strconv.ParseInt(seed, 10, 64); err == nil {
			cfg.Sim.Seed = v
		}
	}
	if capital := os.Getenv("BACKTEST_CAPITAL"); capital != "" {
		if v, err := decimal.NewFromString(capital); err == nil {
			cfg.Sim.Capital = v
		}
	}
	if level := os.Getenv("BACKTEST_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
