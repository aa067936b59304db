// Package report computes performance statistics from the equity and
// trade history the core exposes, without reaching into its internals.
package report

import (
	"math"

	"github.com/shopspring/decimal"

	"backtest_go/internal/domain"
)

// Intraday annualization: 252 trading days of 6.5 hours of minutes.
const annualizationFactor = 252 * 6.5 * 60

// Analyzer derives statistics from one finished run.
type Analyzer struct {
	equity []domain.EquityPoint
	trades []domain.Execution
}

// New creates an analyzer over the given histories.
func New(equity []domain.EquityPoint, trades []domain.Execution) *Analyzer {
	return &Analyzer{equity: equity, trades: trades}
}

// PnL is final equity minus initial equity.
func (a *Analyzer) PnL() decimal.Decimal {
	if len(a.equity) == 0 {
		return decimal.Zero
	}
	return a.equity[len(a.equity)-1].Equity.Sub(a.equity[0].Equity)
}

// Returns are per-step fractional equity changes.
func (a *Analyzer) Returns() []float64 {
	if len(a.equity) < 2 {
		return nil
	}
	out := make([]float64, 0, len(a.equity)-1)
	for i := 1; i < len(a.equity); i++ {
		prev, _ := a.equity[i-1].Equity.Float64()
		curr, _ := a.equity[i].Equity.Float64()
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (curr-prev)/prev)
	}
	return out
}

// Sharpe is the annualized mean/stddev of per-step returns over the
// risk-free rate. Zero when returns never vary.
func (a *Analyzer) Sharpe(riskFree float64) float64 {
	r := a.Returns()
	if len(r) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range r {
		mean += v
	}
	mean /= float64(len(r))

	variance := 0.0
	for _, v := range r {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(r))
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return (mean - riskFree) / std * math.Sqrt(annualizationFactor)
}

// MaxDrawdown is the largest fractional fall from a running equity
// peak, returned as a non-positive number.
func (a *Analyzer) MaxDrawdown() float64 {
	worst := 0.0
	peak := math.Inf(-1)
	for _, p := range a.equity {
		v, _ := p.Equity.Float64()
		if v > peak {
			peak = v
		}
		if peak > 0 {
			dd := (v - peak) / peak
			if dd < worst {
				worst = dd
			}
		}
	}
	return worst
}

// WinRate pairs buys and sells FIFO into round trips and returns the
// fraction whose exit price beat the entry price. Commissions are not
// allocated to lots. Zero when no round trip completed.
func (a *Analyzer) WinRate() float64 {
	type lot struct {
		qty   int64
		price decimal.Decimal
	}
	var longs []lot
	wins, total := 0, 0

	for _, t := range a.trades {
		if t.Side == domain.SideBuy {
			longs = append(longs, lot{qty: t.Qty, price: t.Price})
			continue
		}
		qty := t.Qty
		for qty > 0 && len(longs) > 0 {
			matched := longs[0].qty
			if qty < matched {
				matched = qty
			}
			total++
			if t.Price.GreaterThan(longs[0].price) {
				wins++
			}
			longs[0].qty -= matched
			if longs[0].qty == 0 {
				longs = longs[1:]
			}
			qty -= matched
		}
	}
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}

// TradeCount returns the number of executions.
func (a *Analyzer) TradeCount() int {
	return len(a.trades)
}
