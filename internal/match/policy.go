package match

import (
	"math/rand"

	"github.com/shopspring/decimal"

	"backtest_go/internal/domain"
)

// Outcome classifies a matching decision.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomePartial
	OutcomeFull
)

// FillModel decides how much of the remaining quantity executes.
// Implementations draw from the engine's single seeded source so runs
// replay bit-identically.
type FillModel interface {
	Decide(rng *rand.Rand, remaining int64) (Outcome, int64)
}

// ProbabilisticFill draws full / partial / none from a configurable
// discrete distribution. Partial quantity is uniform over
// [1, remaining-1].
type ProbabilisticFill struct {
	ProbFull    float64
	ProbPartial float64
}

func (p ProbabilisticFill) Decide(rng *rand.Rand, remaining int64) (Outcome, int64) {
	r := rng.Float64()
	switch {
	case r < p.ProbFull:
		return OutcomeFull, remaining
	case r < p.ProbFull+p.ProbPartial:
		if remaining <= 1 {
			return OutcomeFull, remaining
		}
		return OutcomePartial, 1 + rng.Int63n(remaining-1)
	default:
		return OutcomeNone, 0
	}
}

// AlwaysFill executes the full remaining quantity. It exists so tests
// and simplified runs can make matching deterministic without touching
// the book or the order manager.
type AlwaysFill struct{}

func (AlwaysFill) Decide(_ *rand.Rand, remaining int64) (Outcome, int64) {
	return OutcomeFull, remaining
}

// DriftModel produces the adverse-selection perturbation applied to
// the reference price after a fill: the market drifts against the
// filled side. The returned delta is signed (negative after a filled
// buy) and feeds the next mark-to-market step, not the fill price.
type DriftModel interface {
	Drift(rng *rand.Rand, side domain.Side, ref decimal.Decimal) decimal.Decimal
}

// VolatilityDrift draws |N(0,1)| scaled by Scale×ref and signs it
// against the filled side.
type VolatilityDrift struct {
	Scale float64
}

func (v VolatilityDrift) Drift(rng *rand.Rand, side domain.Side, ref decimal.Decimal) decimal.Decimal {
	if v.Scale <= 0 {
		return decimal.Zero
	}
	mag := decimal.NewFromFloat(rng.NormFloat64()).Abs().
		Mul(decimal.NewFromFloat(v.Scale)).Mul(ref)
	if side == domain.SideBuy {
		return mag.Neg()
	}
	return mag
}

// NoDrift disables adverse selection.
type NoDrift struct{}

func (NoDrift) Drift(*rand.Rand, domain.Side, decimal.Decimal) decimal.Decimal {
	return decimal.Zero
}
