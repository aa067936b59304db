package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Execution is an immutable fill record. It is created only by the
// matching engine; the order manager and the audit log consume it.
type Execution struct {
	OrderID    uint64          `json:"order_id"`
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	Qty        int64           `json:"qty"`
	Price      decimal.Decimal `json:"price"`
	Commission decimal.Decimal `json:"commission"`
	Partial    bool            `json:"partial"`
	Ts         time.Time       `json:"ts"`
}

// Notional is price × qty, before commission.
func (e Execution) Notional() decimal.Decimal {
	return e.Price.Mul(decimal.NewFromInt(e.Qty))
}

// CashDelta is the signed cash movement for this fill: buys pay
// notional plus commission, sells receive notional minus commission.
// Commission is always deducted, never rebated.
func (e Execution) CashDelta() decimal.Decimal {
	if e.Side == SideBuy {
		return e.Notional().Add(e.Commission).Neg()
	}
	return e.Notional().Sub(e.Commission)
}
