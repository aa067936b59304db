// Package backtest drives a strategy against the simulated exchange
// candle by candle. The loop is single-threaded and cooperative: each
// cycle completes every book and portfolio mutation before the next
// snapshot is requested, and all randomness comes from the matching
// engine's one seeded source, so identical seeds and input data replay
// bit-identically.
package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/shopspring/decimal"

	"backtest_go/internal/audit"
	"backtest_go/internal/book"
	"backtest_go/internal/domain"
	"backtest_go/internal/infra"
	"backtest_go/internal/match"
	"backtest_go/internal/oms"
	"backtest_go/internal/strategy"
)

// Phase names the stage of the per-cycle state machine.
type Phase string

const (
	PhaseAwaitSnapshot Phase = "AWAITING_SNAPSHOT"
	PhaseStrategy      Phase = "STRATEGY_EVALUATION"
	PhaseSubmission    Phase = "ORDER_SUBMISSION"
	PhaseMatching      Phase = "MATCHING"
	PhaseAccounting    Phase = "ACCOUNTING_UPDATE"
)

// Config carries the loop's own knobs; risk and matching policy live
// with their components.
type Config struct {
	TickSize  decimal.Decimal
	SpreadPct float64
	DumpPath  string // post-mortem state dump target, empty to disable
}

// Runner owns the order book, the order manager's portfolio and the
// matching engine's random source for the duration of one run. No
// concurrent external access is permitted.
type Runner struct {
	cfg     Config
	gw      domain.Gateway
	strat   strategy.Strategy
	manager *oms.Manager
	book    *book.Book
	engine  *match.Engine
	rec     *audit.Recorder
	metrics *infra.Metrics
	log     *slog.Logger

	phase Phase
	steps uint64
	// Adverse-selection drift produced by this cycle's fills; it
	// adjusts the mark price of the same cycle's accounting step and
	// then decays fully.
	pendingDrift decimal.Decimal
}

// New wires a runner. metrics may be shared; everything else is owned.
func New(cfg Config, gw domain.Gateway, strat strategy.Strategy, manager *oms.Manager,
	bk *book.Book, engine *match.Engine, rec *audit.Recorder, metrics *infra.Metrics, log *slog.Logger) *Runner {
	return &Runner{
		cfg:          cfg,
		gw:           gw,
		strat:        strat,
		manager:      manager,
		book:         bk,
		engine:       engine,
		rec:          rec,
		metrics:      metrics,
		log:          log,
		phase:        PhaseAwaitSnapshot,
		pendingDrift: decimal.Zero,
	}
}

// Run replays the gateway's sequence to exhaustion. Recoverable
// conditions (rejections, failed cancels) are reported and survived;
// only broken invariants abort, via the halt policy: dump state, then
// re-panic.
func (r *Runner) Run(ctx context.Context) error {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", rec))
			if r.cfg.DumpPath != "" {
				r.DumpState(r.cfg.DumpPath)
			}
			panic(fmt.Sprintf("HALTED: %v", rec))
		}
	}()

	r.rec.Emit(audit.Event{Type: audit.EventRunStart, Symbol: r.book.Symbol()})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		r.phase = PhaseAwaitSnapshot
		candle, err := r.gw.Next()
		if errors.Is(err, domain.ErrEndOfData) {
			break
		}
		if err != nil {
			return fmt.Errorf("gateway: %w", err)
		}

		r.step(candle)
	}

	r.rec.Emit(audit.Event{Type: audit.EventRunEnd, Symbol: r.book.Symbol()})
	return nil
}

// step executes one atomic cycle: strategy, submission, matching,
// accounting.
func (r *Runner) step(candle domain.Candle) {
	r.steps++

	r.phase = PhaseStrategy
	intents := r.strat.OnCandle(candle)

	r.phase = PhaseSubmission
	accepted := r.manager.SubmitAll(intents, candle.Ts)
	r.metrics.RecordIntents(len(intents))
	for i := len(accepted); i < len(intents); i++ {
		r.metrics.RecordError()
	}

	r.phase = PhaseMatching
	r.resolveCrossings(candle)
	r.matchAgainstMarket(candle)

	r.phase = PhaseAccounting
	mark := candle.Close.Add(r.pendingDrift)
	if !mark.IsPositive() {
		mark = candle.Close
	}
	point := r.manager.MarkToMarket(candle.Ts, map[string]decimal.Decimal{
		candle.Symbol: mark,
	})
	r.pendingDrift = decimal.Zero
	r.metrics.RecordStep()

	bids, asks := r.book.Depth()
	r.rec.Emit(audit.Event{
		Type:     audit.EventStep,
		Ts:       candle.Ts,
		Symbol:   candle.Symbol,
		Equity:   point.Equity.String(),
		Cash:     r.manager.Portfolio().Cash.String(),
		Position: r.manager.Portfolio().NetQty(candle.Symbol),
		Depth:    int64(bids + asks),
	})
}

// resolveCrossings matches crossed top-of-book pairs until the book is
// stable. A no-fill outcome leaves the pair for the next cycle rather
// than spinning on the same draw.
func (r *Runner) resolveCrossings(candle domain.Candle) {
	for {
		bid, ask, ok := r.book.DetectCross()
		if !ok {
			return
		}
		results, err := r.engine.Crossed(bid, ask, r.manager.Commission, candle.Ts)
		if err != nil {
			panic(fmt.Sprintf("MATCH_INVALID_STATE: %v", err))
		}
		if len(results) == 0 {
			return
		}
		for _, res := range results {
			r.applyResult(res)
		}
	}
}

// matchAgainstMarket offers every resting order to the synthetic
// market counterpart, in submission-sequence order for determinism.
func (r *Runner) matchAgainstMarket(candle domain.Candle) {
	quote := match.QuoteFromCandle(candle, r.cfg.TickSize, r.cfg.SpreadPct)
	for _, order := range r.book.OpenOrders() {
		res, err := r.engine.AgainstMarket(order, candle, quote, r.manager.Commission)
		if err != nil {
			panic(fmt.Sprintf("MATCH_INVALID_STATE: %v", err))
		}
		if res == nil {
			continue
		}
		r.applyResult(*res)
	}
}

func (r *Runner) applyResult(res match.Result) {
	if err := r.book.ApplyFill(res.Fill.OrderID, res.Fill.Qty); err != nil {
		panic(fmt.Sprintf("FILL_INVALID_STATE: %v", err))
	}
	var remaining int64
	if order, ok := r.book.Get(res.Fill.OrderID); ok {
		remaining = order.Remaining
	}
	r.manager.RecordExecution(res.Fill, remaining)
	r.metrics.RecordFill()
	r.pendingDrift = r.pendingDrift.Add(res.Drift)
}

// Steps returns the number of completed cycles.
func (r *Runner) Steps() uint64 { return r.steps }

// EquityHistory exposes the equity curve for performance reporting.
func (r *Runner) EquityHistory() []domain.EquityPoint {
	return r.manager.Portfolio().EquityHistory()
}

// TradeHistory exposes the executions for performance reporting.
func (r *Runner) TradeHistory() []domain.Execution {
	return r.manager.TradeHistory()
}

// DumpState writes portfolio and book state for post-mortem analysis.
func (r *Runner) DumpState(path string) {
	portfolio := r.manager.Portfolio()
	bids, asks := r.book.Depth()
	data := struct {
		Phase     Phase                      `json:"phase"`
		Steps     uint64                     `json:"steps"`
		Cash      decimal.Decimal            `json:"cash"`
		Reserved  decimal.Decimal            `json:"reserved"`
		Realized  decimal.Decimal            `json:"realized"`
		Positions map[string]domain.Position `json:"positions"`
		BookBids  int                        `json:"book_bids"`
		BookAsks  int                        `json:"book_asks"`
	}{
		Phase:     r.phase,
		Steps:     r.steps,
		Cash:      portfolio.Cash,
		Reserved:  portfolio.Reserved,
		Realized:  portfolio.Realized,
		Positions: portfolio.Snapshot(),
		BookBids:  bids,
		BookAsks:  asks,
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		r.log.Error("failed to marshal state dump", slog.Any("error", err))
		return
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		r.log.Error("failed to write state dump", slog.String("path", path), slog.Any("error", err))
	}
}
