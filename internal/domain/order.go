package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Sign returns +1 for buys and -1 for sells.
func (s Side) Sign() int64 {
	if s == SideBuy {
		return 1
	}
	return -1
}

// Status is the lifecycle state of an order.
// Terminal states (FILLED, CANCELLED, REJECTED) are absorbing.
type Status string

const (
	StatusNew             Status = "NEW"
	StatusValidated       Status = "VALIDATED"
	StatusOpen            Status = "OPEN"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusFilled          Status = "FILLED"
	StatusCancelled       Status = "CANCELLED"
	StatusRejected        Status = "REJECTED"
)

// Order is a limit order in the simulated exchange.
// Symbol, Side, Price and Qty are immutable after construction; only
// Status and Remaining change, and Remaining strictly decreases.
// The order book owns the record once accepted; everyone else holds
// the ID or a read-only copy.
type Order struct {
	ID          uint64
	Symbol      string
	Side        Side
	Price       decimal.Decimal
	Qty         int64
	Remaining   int64
	Status      Status
	Sequence    uint64 // time-priority key; a modify assigns a fresh one
	SubmittedAt time.Time
}

// IsOpen reports whether the order is resting on the book.
func (o *Order) IsOpen() bool {
	return o.Status == StatusOpen || o.Status == StatusPartiallyFilled
}

// IsTerminal reports whether the order reached an absorbing state.
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case StatusFilled, StatusCancelled, StatusRejected:
		return true
	}
	return false
}
