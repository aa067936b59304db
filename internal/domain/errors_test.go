package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestRejectionErrorUnwraps(t *testing.T) {
	rej := &RejectionError{
		Reason: fmt.Errorf("need 1000, available 500: %w", ErrInsufficientCapital),
		Symbol: "AAPL",
		Detail: "buy 10 @ 100.00",
	}

	if !errors.Is(rej, ErrInsufficientCapital) {
		t.Fatal("rejection must unwrap to its sentinel")
	}
	var typed *RejectionError
	if !errors.As(error(rej), &typed) || typed.Symbol != "AAPL" {
		t.Fatalf("errors.As lost the context: %+v", typed)
	}
}

func TestIsRecoverable(t *testing.T) {
	recoverable := []error{
		ErrInvalidOrder,
		ErrInsufficientCapital,
		ErrPositionLimit,
		ErrRateLimit,
		ErrNotFound,
		fmt.Errorf("wrapped: %w", ErrRateLimit),
	}
	for _, err := range recoverable {
		if !IsRecoverable(err) {
			t.Fatalf("%v must be recoverable", err)
		}
	}

	fatal := []error{
		ErrInvalidState,
		ErrEndOfData,
		errors.New("something else"),
	}
	for _, err := range fatal {
		if IsRecoverable(err) {
			t.Fatalf("%v must not be recoverable", err)
		}
	}
}
