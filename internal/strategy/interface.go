package strategy

import (
	"backtest_go/internal/domain"

	"github.com/shopspring/decimal"
)

// Intent is a desired order produced by a strategy. It has no
// lifecycle of its own; the order manager decides whether it becomes
// an order.
type Intent struct {
	Symbol string
	Side   domain.Side
	Price  decimal.Decimal
	Qty    int64
}

// Strategy is invoked once per replay cycle with the latest candle and
// returns zero or more order intents. Implementations keep their own
// state and must not depend on hidden side effects.
type Strategy interface {
	OnCandle(c domain.Candle) []Intent
}
