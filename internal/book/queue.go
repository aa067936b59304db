package book

import (
	"container/heap"

	"backtest_go/internal/domain"
)

// orderEntry wraps an order for heap operations.
type orderEntry struct {
	order *domain.Order
	index int
	isBid bool
}

// priceTimeQueue implements a price-time priority queue: best price at
// the top, ties broken by the lower (earlier) sequence number.
type priceTimeQueue []*orderEntry

func (q priceTimeQueue) Len() int { return len(q) }

func (q priceTimeQueue) Less(i, j int) bool {
	a, b := q[i], q[j]
	if cmp := a.order.Price.Cmp(b.order.Price); cmp != 0 {
		if a.isBid {
			return cmp > 0
		}
		return cmp < 0
	}
	return a.order.Sequence < b.order.Sequence
}

func (q priceTimeQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *priceTimeQueue) Push(x any) {
	entry := x.(*orderEntry)
	entry.index = len(*q)
	*q = append(*q, entry)
}

func (q *priceTimeQueue) Pop() any {
	old := *q
	n := len(old)
	entry := old[n-1]
	entry.index = -1
	*q = old[0 : n-1]
	return entry
}

func (q priceTimeQueue) peek() *orderEntry {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}

func (q *priceTimeQueue) remove(entry *orderEntry) *orderEntry {
	return heap.Remove(q, entry.index).(*orderEntry)
}
