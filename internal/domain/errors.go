package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidOrder is returned when an intent fails sanity checks
	// (non-positive price or quantity, crossed batch prices).
	ErrInvalidOrder = errors.New("invalid order")

	// ErrInsufficientCapital is returned when a buy would require more
	// cash than the portfolio holds.
	ErrInsufficientCapital = errors.New("insufficient capital")

	// ErrPositionLimit is returned when the resulting position would
	// exceed the configured long or short limit.
	ErrPositionLimit = errors.New("position limit exceeded")

	// ErrRateLimit is returned when too many orders were accepted for
	// the instrument within the trailing rate window.
	ErrRateLimit = errors.New("order rate limit exceeded")

	// ErrNotFound is returned by cancel/modify on an unknown or
	// already-terminal order.
	ErrNotFound = errors.New("order not found")

	// ErrInvalidState marks a broken invariant: matching or filling an
	// order that is terminal or does not exist. It is programmer error
	// and must abort the run, never be swallowed.
	ErrInvalidState = errors.New("invalid order state")

	// ErrEndOfData signals normal exhaustion of the market data
	// sequence. It terminates the replay loop and is not an error
	// condition.
	ErrEndOfData = errors.New("end of data")
)

// RejectionError carries the context of a refused order intent.
// It wraps one of the recoverable sentinel errors above; the order
// manager converts it into a structured rejection event and the
// simulation continues.
type RejectionError struct {
	Reason error
	Symbol string
	Detail string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s rejected: %v (%s)", e.Symbol, e.Reason, e.Detail)
}

func (e *RejectionError) Unwrap() error {
	return e.Reason
}

// IsRecoverable reports whether the simulation may continue past err.
// Validation failures and NotFound are recoverable; ErrInvalidState is
// not, and ErrEndOfData is not an error at all.
func IsRecoverable(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidOrder),
		errors.Is(err, ErrInsufficientCapital),
		errors.Is(err, ErrPositionLimit),
		errors.Is(err, ErrRateLimit),
		errors.Is(err, ErrNotFound):
		return true
	}
	return false
}
