package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backtest_go/internal/app"
	"backtest_go/internal/audit"
	"backtest_go/internal/backtest"
	"backtest_go/internal/book"
	"backtest_go/internal/domain"
	"backtest_go/internal/gateway"
	"backtest_go/internal/infra"
	"backtest_go/internal/match"
	"backtest_go/internal/oms"
	"backtest_go/internal/report"
	"backtest_go/internal/strategy"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to yaml configuration")
	dataPath := flag.String("data", "", "path to OHLCV csv market data")
	flag.Parse()

	if env := os.Getenv("BACKTEST_DATA"); env != "" && *dataPath == "" {
		*dataPath = env
	}
	if *dataPath == "" {
		fmt.Fprintln(os.Stderr, "missing -data: path to market data csv")
		os.Exit(2)
	}

	go func() {
		// Localhost only for security
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("pprof server failed", slog.Any("error", err))
		}
	}()

	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	cfg := bootstrap.Config

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, err := gateway.OpenCSV(*dataPath, cfg.Sim.Symbol)
	if err != nil {
		slog.Error("loading market data failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("market data loaded",
		slog.String("path", *dataPath),
		slog.String("symbol", cfg.Sim.Symbol),
		slog.Int("candles", gw.Len()),
	)

	runID := fmt.Sprintf("%s-seed%d-%d", cfg.Sim.Symbol, cfg.Sim.Seed, time.Now().Unix())
	logger := slog.Default()

	sinks := []audit.Sink{
		audit.NewSlogSink(logger),
		audit.NewStoreSink(bootstrap.Store, runID, logger),
	}
	var feed *audit.FeedServer
	if cfg.Feed.ListenAddr != "" {
		feed = audit.NewFeedServer(cfg.Feed.ListenAddr, logger)
		feed.Start()
		defer feed.Close()
		sinks = append(sinks, feed)
		slog.Info("event feed listening", slog.String("addr", cfg.Feed.ListenAddr))
	}
	rec := audit.NewRecorder(sinks...)

	bk := book.New(cfg.Sim.Symbol)
	manager := oms.New(oms.Config{
		Capital:            cfg.Sim.Capital,
		CommissionPerShare: cfg.Sim.CommissionPerShare,
		CommissionPct:      cfg.Sim.CommissionPct,
		MaxLongPosition:    cfg.Sim.MaxLongPosition,
		MaxShortPosition:   cfg.Sim.MaxShortPosition,
		MaxOrdersPerWindow: cfg.Sim.MaxOrdersPerWindow,
		RateWindow:         cfg.RateWindow(),
	}, bk, rec, logger)

	engine := match.New(match.Config{
		Fill:           match.ProbabilisticFill{ProbFull: cfg.Sim.ProbFull, ProbPartial: cfg.Sim.ProbPartial},
		Drift:          match.VolatilityDrift{Scale: cfg.Sim.VolatilityScale},
		SpreadCrossing: cfg.Sim.SpreadCrossing,
		Seed:           cfg.Sim.Seed,
	})

	strat := strategy.NewSMACross(cfg.Sim.Symbol, cfg.Strategy.ShortWindow, cfg.Strategy.LongWindow, cfg.Sim.OrderQty)

	metrics := &infra.Metrics{}
	runner := backtest.New(backtest.Config{
		TickSize:  cfg.Sim.TickSize,
		SpreadPct: cfg.Sim.SpreadPct,
		DumpPath:  "panic_dump.json",
	}, gw, strat, manager, bk, engine, rec, metrics, logger)

	started := time.Now()
	if err := runner.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Warn("run interrupted")
		} else {
			slog.Error("run failed", slog.Any("error", err))
			os.Exit(1)
		}
	}

	equity := runner.EquityHistory()
	trades := runner.TradeHistory()
	persistResults(bootstrap, runID, cfg.Sim.Symbol, cfg.Sim.Seed, started, runner.Steps(), equity, trades)

	analyzer := report.New(equity, trades)
	snap := metrics.Snapshot()
	fmt.Printf("run %s finished\n", runID)
	fmt.Printf("  steps:        %d\n", snap.Steps)
	fmt.Printf("  intents:      %d\n", snap.Intents)
	fmt.Printf("  fills:        %d\n", snap.Fills)
	fmt.Printf("  pnl:          %s\n", analyzer.PnL())
	fmt.Printf("  sharpe:       %.4f\n", analyzer.Sharpe(0))
	fmt.Printf("  max drawdown: %.4f\n", analyzer.MaxDrawdown())
	fmt.Printf("  win rate:     %.4f\n", analyzer.WinRate())
}

func persistResults(b *app.Bootstrap, runID, symbol string, seed int64, started time.Time,
	steps uint64, equity []domain.EquityPoint, trades []domain.Execution) {
	for _, p := range equity {
		rec := &domain.EquityPointRecord{RunID: runID, Ts: p.Ts, Equity: p.Equity.String()}
		if err := b.Store.SaveEquityPoint(rec); err != nil {
			slog.Error("equity point persist failed", slog.Any("error", err))
			break
		}
	}

	final := "0"
	if len(equity) > 0 {
		final = equity[len(equity)-1].Equity.String()
	}
	run := &domain.RunRecord{
		RunID:       runID,
		Symbol:      symbol,
		Seed:        seed,
		StartedAt:   started,
		FinishedAt:  time.Now(),
		Steps:       steps,
		Trades:      len(trades),
		FinalEquity: final,
	}
	if err := b.Store.SaveRun(run); err != nil {
		slog.Error("run record persist failed", slog.Any("error", err))
	}
}
