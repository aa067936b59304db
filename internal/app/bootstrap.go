package app

import (
	"log/slog"

	"backtest_go/internal/infra"
	"backtest_go/internal/infra/storage"
)

// Bootstrap orchestrates startup: config, logger, storage.
type Bootstrap struct {
	Config *infra.Config
	Store  *storage.Store
}

// NewBootstrap creates an empty Bootstrap.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads configuration, installs the default logger and
// opens the audit store.
func (b *Bootstrap) Initialize(configPath string) error {
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err
	}
	b.Config = cfg

	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Store = store
	slog.Info("audit store initialized", slog.String("path", cfg.Storage.Path))

	return nil
}
