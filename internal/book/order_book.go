// Package book maintains resting bid/ask orders for one instrument
// under strict price-time priority. It performs no validation and no
// accounting; those belong to the order manager. The book exclusively
// owns every accepted Order record.
package book

import (
	"container/heap"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"backtest_go/internal/domain"
)

// Book is a two-sided order book for a single symbol. It is owned by
// the simulation loop and accessed synchronously; price-time priority
// is the sole ordering rule, with ties broken by the monotonic
// sequence number assigned on accept.
type Book struct {
	symbol  string
	bids    priceTimeQueue
	asks    priceTimeQueue
	orders  map[uint64]*orderEntry
	nextSeq uint64
}

// New creates an empty book for the given symbol.
func New(symbol string) *Book {
	b := &Book{
		symbol: symbol,
		orders: make(map[uint64]*orderEntry),
	}
	heap.Init(&b.bids)
	heap.Init(&b.asks)
	return b
}

// Add accepts a validated order onto its side and returns the assigned
// sequence number. The order's ID doubles as the sequence of its first
// acceptance and is never reused.
func (b *Book) Add(order *domain.Order, ts time.Time) uint64 {
	b.nextSeq++
	order.Sequence = b.nextSeq
	if order.ID == 0 {
		order.ID = b.nextSeq
	}
	order.SubmittedAt = ts
	order.Remaining = order.Qty
	order.Status = domain.StatusOpen

	entry := &orderEntry{order: order, isBid: order.Side == domain.SideBuy}
	if entry.isBid {
		heap.Push(&b.bids, entry)
	} else {
		heap.Push(&b.asks, entry)
	}
	b.orders[order.ID] = entry
	return order.Sequence
}

// Cancel withdraws a resting order. It fails with ErrNotFound when the
// order is absent or already terminal; a repeated cancel does not
// mutate state.
func (b *Book) Cancel(id uint64) error {
	entry, ok := b.orders[id]
	if !ok || entry.order.IsTerminal() {
		return fmt.Errorf("cancel order %d: %w", id, domain.ErrNotFound)
	}
	b.detach(entry)
	entry.order.Status = domain.StatusCancelled
	return nil
}

// Modify replaces price and quantity via cancel-then-add with a fresh
// sequence number. Time priority is deliberately lost, matching
// real-exchange semantics.
func (b *Book) Modify(id uint64, newPrice decimal.Decimal, newQty int64, ts time.Time) (*domain.Order, error) {
	entry, ok := b.orders[id]
	if !ok || entry.order.IsTerminal() {
		return nil, fmt.Errorf("modify order %d: %w", id, domain.ErrNotFound)
	}
	b.detach(entry)

	order := entry.order
	order.Price = newPrice
	order.Qty = newQty
	b.Add(order, ts)
	return order, nil
}

// BestBid returns the top bid, or false when the side is empty.
func (b *Book) BestBid() (*domain.Order, bool) {
	if e := b.bids.peek(); e != nil {
		return e.order, true
	}
	return nil, false
}

// BestAsk returns the top ask, or false when the side is empty.
func (b *Book) BestAsk() (*domain.Order, bool) {
	if e := b.asks.peek(); e != nil {
		return e.order, true
	}
	return nil, false
}

// DetectCross returns the top-of-book pair when best bid >= best ask.
// The caller routes the pair to the matching engine; the book itself
// never decides execution outcomes.
func (b *Book) DetectCross() (bid, ask *domain.Order, ok bool) {
	bidEntry, askEntry := b.bids.peek(), b.asks.peek()
	if bidEntry == nil || askEntry == nil {
		return nil, nil, false
	}
	if bidEntry.order.Price.Cmp(askEntry.order.Price) < 0 {
		return nil, nil, false
	}
	return bidEntry.order, askEntry.order, true
}

// ApplyFill decrements remaining quantity and removes the order from
// its side once fully filled. Filling a terminal or unknown order, or
// more than remains, is a broken invariant and fails with
// ErrInvalidState.
func (b *Book) ApplyFill(id uint64, qty int64) error {
	entry, ok := b.orders[id]
	if !ok || entry.order.IsTerminal() {
		return fmt.Errorf("fill order %d: %w", id, domain.ErrInvalidState)
	}
	order := entry.order
	if qty <= 0 || qty > order.Remaining {
		return fmt.Errorf("fill order %d qty %d of %d remaining: %w",
			id, qty, order.Remaining, domain.ErrInvalidState)
	}

	order.Remaining -= qty
	if order.Remaining == 0 {
		b.detach(entry)
		order.Status = domain.StatusFilled
	} else {
		// Partial fills keep the original sequence: no priority reset.
		order.Status = domain.StatusPartiallyFilled
	}
	return nil
}

// Get returns the order with the given ID, if known to the book.
func (b *Book) Get(id uint64) (*domain.Order, bool) {
	entry, ok := b.orders[id]
	if !ok {
		return nil, false
	}
	return entry.order, true
}

// OpenOrders returns all resting orders in ascending sequence order,
// which gives the deterministic iteration the matching phase needs.
func (b *Book) OpenOrders() []*domain.Order {
	out := make([]*domain.Order, 0, len(b.bids)+len(b.asks))
	for _, q := range []priceTimeQueue{b.bids, b.asks} {
		for _, e := range q {
			out = append(out, e.order)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

// Depth returns the number of resting orders per side.
func (b *Book) Depth() (bids, asks int) {
	return b.bids.Len(), b.asks.Len()
}

// Symbol returns the instrument this book serves.
func (b *Book) Symbol() string { return b.symbol }

func (b *Book) detach(entry *orderEntry) {
	if entry.isBid {
		b.bids.remove(entry)
	} else {
		b.asks.remove(entry)
	}
	delete(b.orders, entry.order.ID)
}
