// Package match decides execution outcomes for crossed orders and for
// resting orders trading against the market snapshot. All randomness
// flows through one explicitly threaded seeded source, so determinism
// is a structural property of the engine, not an accident.
package match

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"backtest_go/internal/domain"
)

// Quote is the prevailing market bid/ask estimated from a snapshot.
type Quote struct {
	Bid decimal.Decimal
	Ask decimal.Decimal
}

// QuoteFromCandle estimates the prevailing quote from an OHLCV candle,
// which carries no real top of book: close ± half-spread, where
// half-spread = max(tick, close×spreadPct) quantized to the tick grid.
// Quantization keeps estimated quotes on the same grid as order limits,
// so a limit placed exactly at the estimated ask or bid crosses it.
func QuoteFromCandle(c domain.Candle, tick decimal.Decimal, spreadPct float64) Quote {
	half := c.Close.Mul(decimal.NewFromFloat(spreadPct))
	if tick.IsPositive() {
		half = half.Div(tick).Round(0).Mul(tick)
	}
	if half.LessThan(tick) {
		half = tick
	}
	return Quote{Bid: c.Close.Sub(half), Ask: c.Close.Add(half)}
}

// Config selects the engine's policies.
type Config struct {
	Fill           FillModel
	Drift          DriftModel
	SpreadCrossing bool
	Seed           int64
}

// Result is one decided fill plus the adverse-selection delta it
// produces for the next mark-to-market step.
type Result struct {
	Fill  domain.Execution
	Drift decimal.Decimal
}

// Engine applies the configured policies with a single seeded random
// source, consumed in submission order.
type Engine struct {
	fill           FillModel
	drift          DriftModel
	spreadCrossing bool
	rng            *rand.Rand
}

// New builds an engine; identical configs and seeds reproduce
// identical decision sequences.
func New(cfg Config) *Engine {
	return &Engine{
		fill:           cfg.Fill,
		drift:          cfg.Drift,
		spreadCrossing: cfg.SpreadCrossing,
		rng:            rand.New(rand.NewSource(cfg.Seed)),
	}
}

// AgainstMarket matches one resting order against the candle's
// synthetic liquidity. With spread crossing enabled the order must
// cross the estimated spread: a buy fills only at or above the ask
// (and pays the ask), a sell only at or below the bid (and receives
// the bid): the taker pays the spread, never the mid or its own more
// favorable limit. With the toggle off, the legacy rule applies: the
// order fills at its own limit when the candle's range touched it.
//
// A nil Result with nil error means the order rests. Matching a
// terminal order is programmer error and fails with ErrInvalidState.
func (e *Engine) AgainstMarket(o *domain.Order, c domain.Candle, q Quote, commission func(price decimal.Decimal, qty int64) decimal.Decimal) (*Result, error) {
	if o == nil || !o.IsOpen() {
		return nil, fmt.Errorf("match against market: %w", domain.ErrInvalidState)
	}

	var price decimal.Decimal
	if e.spreadCrossing {
		if o.Side == domain.SideBuy {
			if o.Price.LessThan(q.Ask) {
				return nil, nil
			}
			price = q.Ask
		} else {
			if o.Price.GreaterThan(q.Bid) {
				return nil, nil
			}
			price = q.Bid
		}
	} else {
		if !c.Touches(o.Price) {
			return nil, nil
		}
		price = o.Price
	}

	outcome, qty := e.fill.Decide(e.rng, o.Remaining)
	if outcome == OutcomeNone || qty == 0 {
		return nil, nil
	}

	res := &Result{
		Fill: domain.Execution{
			OrderID:    o.ID,
			Symbol:     o.Symbol,
			Side:       o.Side,
			Qty:        qty,
			Price:      price,
			Commission: commission(price, qty),
			Partial:    qty < o.Remaining,
			Ts:         c.Ts,
		},
		Drift: e.drift.Drift(e.rng, o.Side, price),
	}
	return res, nil
}

// Crossed matches a crossed top-of-book pair. The trade prices at the
// earlier (resting) order's limit; the fill model decides how much of
// the overlapping quantity trades. Both sides receive an execution for
// the same quantity. OutcomeNone leaves the book crossed for this
// cycle, so the caller must not loop on it.
func (e *Engine) Crossed(bid, ask *domain.Order, commission func(price decimal.Decimal, qty int64) decimal.Decimal, ts time.Time) ([]Result, error) {
	if bid == nil || ask == nil || !bid.IsOpen() || !ask.IsOpen() {
		return nil, fmt.Errorf("match crossed pair: %w", domain.ErrInvalidState)
	}
	if bid.Price.LessThan(ask.Price) {
		return nil, fmt.Errorf("pair not crossed (bid %s < ask %s): %w",
			bid.Price, ask.Price, domain.ErrInvalidState)
	}

	// Price-time priority: the earlier order set the price.
	price := bid.Price
	if ask.Sequence < bid.Sequence {
		price = ask.Price
	}

	overlap := bid.Remaining
	if ask.Remaining < overlap {
		overlap = ask.Remaining
	}
	outcome, qty := e.fill.Decide(e.rng, overlap)
	if outcome == OutcomeNone || qty == 0 {
		return nil, nil
	}

	results := make([]Result, 0, 2)
	for _, o := range []*domain.Order{bid, ask} {
		results = append(results, Result{
			Fill: domain.Execution{
				OrderID:    o.ID,
				Symbol:     o.Symbol,
				Side:       o.Side,
				Qty:        qty,
				Price:      price,
				Commission: commission(price, qty),
				Partial:    qty < o.Remaining,
				Ts:         ts,
			},
		})
	}
	return results, nil
}
