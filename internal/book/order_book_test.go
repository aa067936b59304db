package book

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"backtest_go/internal/domain"
)

var t0 = time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

func newOrder(side domain.Side, price string, qty int64) *domain.Order {
	return &domain.Order{
		Symbol: "AAPL",
		Side:   side,
		Price:  decimal.RequireFromString(price),
		Qty:    qty,
		Status: domain.StatusValidated,
	}
}

func TestAddAndBestQuotes(t *testing.T) {
	b := New("AAPL")

	b.Add(newOrder(domain.SideBuy, "100.00", 10), t0)
	b.Add(newOrder(domain.SideBuy, "100.50", 5), t0)
	b.Add(newOrder(domain.SideSell, "101.00", 7), t0)
	b.Add(newOrder(domain.SideSell, "100.80", 3), t0)

	bid, ok := b.BestBid()
	if !ok || !bid.Price.Equal(decimal.RequireFromString("100.50")) {
		t.Fatalf("expected best bid 100.50, got %v", bid)
	}
	ask, ok := b.BestAsk()
	if !ok || !ask.Price.Equal(decimal.RequireFromString("100.80")) {
		t.Fatalf("expected best ask 100.80, got %v", ask)
	}
	if _, _, crossed := b.DetectCross(); crossed {
		t.Fatal("book should not be crossed")
	}
}

func TestPriceTimePriority(t *testing.T) {
	b := New("AAPL")

	first := newOrder(domain.SideBuy, "100.00", 10)
	second := newOrder(domain.SideBuy, "100.00", 10)
	b.Add(first, t0)
	b.Add(second, t0.Add(time.Minute))

	best, _ := b.BestBid()
	if best.ID != first.ID {
		t.Fatalf("same-price tie must go to the earlier sequence: got order %d", best.ID)
	}

	// Fully fill the first; the second takes over.
	if err := b.ApplyFill(first.ID, 10); err != nil {
		t.Fatalf("ApplyFill failed: %v", err)
	}
	best, _ = b.BestBid()
	if best.ID != second.ID {
		t.Fatalf("expected order %d at top, got %d", second.ID, best.ID)
	}
}

func TestModifyResetsPriority(t *testing.T) {
	b := New("AAPL")

	first := newOrder(domain.SideBuy, "100.00", 10)
	second := newOrder(domain.SideBuy, "100.00", 10)
	b.Add(first, t0)
	b.Add(second, t0)

	oldSeq := first.Sequence
	modified, err := b.Modify(first.ID, decimal.RequireFromString("100.00"), 10, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("Modify failed: %v", err)
	}
	if modified.Sequence <= oldSeq {
		t.Fatalf("modify must assign a fresh sequence: old %d, new %d", oldSeq, modified.Sequence)
	}

	best, _ := b.BestBid()
	if best.ID != second.ID {
		t.Fatal("modified order must lose time priority at the same price")
	}
}

func TestCancel(t *testing.T) {
	b := New("AAPL")
	order := newOrder(domain.SideSell, "101.00", 5)
	b.Add(order, t0)

	if err := b.Cancel(order.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if order.Status != domain.StatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", order.Status)
	}

	// Cancelling again fails with NotFound and does not mutate state.
	err := b.Cancel(order.ID)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if order.Status != domain.StatusCancelled {
		t.Fatal("repeated cancel mutated order status")
	}

	if err := b.Cancel(9999); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestApplyFillPartialKeepsSequence(t *testing.T) {
	b := New("AAPL")
	order := newOrder(domain.SideBuy, "100.00", 10)
	b.Add(order, t0)
	seq := order.Sequence

	if err := b.ApplyFill(order.ID, 4); err != nil {
		t.Fatalf("ApplyFill failed: %v", err)
	}
	if order.Remaining != 6 {
		t.Fatalf("expected remaining 6, got %d", order.Remaining)
	}
	if order.Status != domain.StatusPartiallyFilled {
		t.Fatalf("expected PARTIALLY_FILLED, got %s", order.Status)
	}
	if order.Sequence != seq {
		t.Fatal("partial fill must not reset time priority")
	}

	if err := b.ApplyFill(order.ID, 6); err != nil {
		t.Fatalf("ApplyFill failed: %v", err)
	}
	if order.Status != domain.StatusFilled || order.Remaining != 0 {
		t.Fatalf("expected FILLED with 0 remaining, got %s/%d", order.Status, order.Remaining)
	}
}

func TestApplyFillInvalidState(t *testing.T) {
	b := New("AAPL")
	order := newOrder(domain.SideBuy, "100.00", 10)
	b.Add(order, t0)

	if err := b.ApplyFill(order.ID, 11); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("overfill must be ErrInvalidState, got %v", err)
	}
	if order.Remaining != 10 {
		t.Fatal("failed fill mutated remaining quantity")
	}

	b.ApplyFill(order.ID, 10)
	if err := b.ApplyFill(order.ID, 1); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("fill on terminal order must be ErrInvalidState, got %v", err)
	}
	if err := b.ApplyFill(777, 1); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("fill on unknown order must be ErrInvalidState, got %v", err)
	}
}

func TestDetectCross(t *testing.T) {
	b := New("AAPL")
	bid := newOrder(domain.SideBuy, "101.00", 10)
	ask := newOrder(domain.SideSell, "100.50", 5)
	b.Add(bid, t0)
	b.Add(ask, t0)

	gotBid, gotAsk, ok := b.DetectCross()
	if !ok {
		t.Fatal("expected crossed book")
	}
	if gotBid.ID != bid.ID || gotAsk.ID != ask.ID {
		t.Fatalf("wrong pair: bid %d ask %d", gotBid.ID, gotAsk.ID)
	}
}

func TestRemainingNeverIncreases(t *testing.T) {
	b := New("AAPL")
	order := newOrder(domain.SideSell, "100.00", 20)
	b.Add(order, t0)

	last := order.Remaining
	for _, qty := range []int64{3, 1, 7, 9} {
		if err := b.ApplyFill(order.ID, qty); err != nil {
			t.Fatalf("ApplyFill(%d) failed: %v", qty, err)
		}
		if order.Remaining > last || order.Remaining < 0 {
			t.Fatalf("remaining went from %d to %d", last, order.Remaining)
		}
		last = order.Remaining
	}
}

func TestOpenOrdersSequenceOrder(t *testing.T) {
	b := New("AAPL")
	b.Add(newOrder(domain.SideSell, "102.00", 1), t0)
	b.Add(newOrder(domain.SideBuy, "100.00", 1), t0)
	b.Add(newOrder(domain.SideSell, "101.00", 1), t0)
	b.Add(newOrder(domain.SideBuy, "99.00", 1), t0)

	open := b.OpenOrders()
	if len(open) != 4 {
		t.Fatalf("expected 4 open orders, got %d", len(open))
	}
	for i := 1; i < len(open); i++ {
		if open[i].Sequence <= open[i-1].Sequence {
			t.Fatal("open orders must come back in ascending sequence order")
		}
	}
}
