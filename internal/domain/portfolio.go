package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Position is the net holding in one instrument. Qty is signed:
// positive = long, negative = short.
type Position struct {
	Symbol   string          `json:"symbol"`
	Qty      int64           `json:"qty"`
	AvgPrice decimal.Decimal `json:"avg_price"`
	Realized decimal.Decimal `json:"realized"`
}

// ApplyFill folds a fill into the position. Fills that reduce or flip
// the position realize P&L against the average entry price; fills that
// extend it move the average entry by quantity weighting.
func (p *Position) ApplyFill(side Side, price decimal.Decimal, qty int64) decimal.Decimal {
	if qty <= 0 {
		return decimal.Zero
	}
	signed := side.Sign() * qty
	realized := decimal.Zero

	switch {
	case p.Qty == 0 || (p.Qty > 0) == (signed > 0):
		// Extend: weighted-average entry.
		oldAbs := decimal.NewFromInt(absInt64(p.Qty))
		addAbs := decimal.NewFromInt(qty)
		total := oldAbs.Add(addAbs)
		p.AvgPrice = p.AvgPrice.Mul(oldAbs).Add(price.Mul(addAbs)).Div(total)
		p.Qty += signed
	default:
		// Reduce or flip.
		closeQty := minInt64(absInt64(p.Qty), qty)
		diff := price.Sub(p.AvgPrice)
		if p.Qty < 0 {
			diff = diff.Neg()
		}
		realized = diff.Mul(decimal.NewFromInt(closeQty))
		p.Realized = p.Realized.Add(realized)
		p.Qty += signed
		if p.Qty == 0 {
			p.AvgPrice = decimal.Zero
		} else if (p.Qty > 0) == (signed > 0) {
			// Flipped through flat: remainder opens at the fill price.
			p.AvgPrice = price
		}
	}
	return realized
}

// EquityPoint is one timestamped mark-to-market portfolio value.
type EquityPoint struct {
	Ts     time.Time       `json:"ts"`
	Equity decimal.Decimal `json:"equity"`
}

// Portfolio holds cash, per-symbol positions, the realized P&L
// accumulator and the equity history. It is mutated exclusively by the
// order manager on execution events and on each mark-to-market step.
type Portfolio struct {
	Cash      decimal.Decimal      `json:"cash"`
	Reserved  decimal.Decimal      `json:"reserved"`
	Realized  decimal.Decimal      `json:"realized"`
	positions map[string]*Position `json:"-"`
	equity    []EquityPoint
}

// NewPortfolio creates a portfolio with the given starting capital.
func NewPortfolio(capital decimal.Decimal) *Portfolio {
	return &Portfolio{
		Cash:      capital,
		positions: make(map[string]*Position),
	}
}

// Available is the cash not locked by resting buy orders.
func (p *Portfolio) Available() decimal.Decimal {
	return p.Cash.Sub(p.Reserved)
}

// Reserve locks cash for a validated buy order. Halts if the lock
// exceeds available cash, since the pre-trade check runs first.
func (p *Portfolio) Reserve(amount decimal.Decimal) {
	if amount.GreaterThan(p.Available()) {
		panic(fmt.Sprintf("PORTFOLIO_RESERVE_INSUFFICIENT: need %s, available %s", amount, p.Available()))
	}
	p.Reserved = p.Reserved.Add(amount)
}

// Release unlocks reserved cash on fill, cancel or rejection.
func (p *Portfolio) Release(amount decimal.Decimal) {
	if amount.GreaterThan(p.Reserved) {
		panic(fmt.Sprintf("PORTFOLIO_RELEASE_EXCEEDS_RESERVED: release %s, reserved %s", amount, p.Reserved))
	}
	p.Reserved = p.Reserved.Sub(amount)
}

// Position returns the position for a symbol, creating it if absent.
func (p *Portfolio) Position(symbol string) *Position {
	pos, ok := p.positions[symbol]
	if !ok {
		pos = &Position{Symbol: symbol}
		p.positions[symbol] = pos
	}
	return pos
}

// NetQty returns the signed net position for a symbol without
// allocating an entry.
func (p *Portfolio) NetQty(symbol string) int64 {
	if pos, ok := p.positions[symbol]; ok {
		return pos.Qty
	}
	return 0
}

// Apply folds an execution into cash, position and realized P&L.
func (p *Portfolio) Apply(fill Execution) {
	p.Cash = p.Cash.Add(fill.CashDelta())
	realized := p.Position(fill.Symbol).ApplyFill(fill.Side, fill.Price, fill.Qty)
	p.Realized = p.Realized.Add(realized)
	p.VerifyInvariant()
}

// MarkToMarket revalues all positions at the given prices, appends the
// resulting equity point and returns it.
func (p *Portfolio) MarkToMarket(ts time.Time, prices map[string]decimal.Decimal) EquityPoint {
	equity := p.Cash
	for sym, pos := range p.positions {
		if pos.Qty == 0 {
			continue
		}
		mark, ok := prices[sym]
		if !ok {
			// No mark available: carry the entry price conservatively.
			mark = pos.AvgPrice
		}
		equity = equity.Add(mark.Mul(decimal.NewFromInt(pos.Qty)))
	}
	point := EquityPoint{Ts: ts, Equity: equity}
	p.equity = append(p.equity, point)
	return point
}

// EquityHistory returns the recorded equity curve.
func (p *Portfolio) EquityHistory() []EquityPoint {
	return p.equity
}

// Snapshot returns a copy of all positions for state dumps.
func (p *Portfolio) Snapshot() map[string]Position {
	out := make(map[string]Position, len(p.positions))
	for k, v := range p.positions {
		out[k] = *v
	}
	return out
}

// VerifyInvariant halts the run if portfolio state is corrupt. The
// pre-trade capital check makes negative cash unreachable, so hitting
// this is programmer error.
func (p *Portfolio) VerifyInvariant() {
	if p.Cash.IsNegative() {
		panic(fmt.Sprintf("PORTFOLIO_INVARIANT_NEGATIVE_CASH: %s", p.Cash))
	}
	if p.Reserved.IsNegative() {
		panic(fmt.Sprintf("PORTFOLIO_INVARIANT_NEGATIVE_RESERVED: %s", p.Reserved))
	}
	if p.Reserved.GreaterThan(p.Cash) {
		panic(fmt.Sprintf("PORTFOLIO_INVARIANT_RESERVED_EXCEEDS_CASH: reserved=%s cash=%s", p.Reserved, p.Cash))
	}
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
