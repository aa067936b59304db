// Package oms is the order manager: it gates incoming intents through
// capital, position, rate and sanity checks, owns all portfolio
// mutation, and forwards accepted orders to the order book.
package oms

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"backtest_go/internal/audit"
	"backtest_go/internal/book"
	"backtest_go/internal/domain"
	"backtest_go/internal/strategy"
)

// Config carries the risk and cost knobs.
type Config struct {
	Capital            decimal.Decimal
	CommissionPerShare decimal.Decimal
	CommissionPct      decimal.Decimal
	MaxLongPosition    int64
	MaxShortPosition   int64
	MaxOrdersPerWindow int
	RateWindow         time.Duration
}

// Manager validates intents and accounts for every execution. It is
// the only component allowed to mutate the portfolio.
type Manager struct {
	cfg       Config
	portfolio *domain.Portfolio
	book      *book.Book
	rec       *audit.Recorder
	log       *slog.Logger

	// Trailing acceptance times per symbol, in simulated time.
	accepted map[string][]time.Time
	// Outstanding cash reservation per resting buy order.
	reserved map[uint64]*reservation
	trades   []domain.Execution
}

type reservation struct {
	perShare decimal.Decimal
	total    decimal.Decimal
}

// New creates a manager over a fresh portfolio.
func New(cfg Config, bk *book.Book, rec *audit.Recorder, log *slog.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		portfolio: domain.NewPortfolio(cfg.Capital),
		book:      bk,
		rec:       rec,
		log:       log,
		accepted:  make(map[string][]time.Time),
		reserved:  make(map[uint64]*reservation),
	}
}

// Portfolio exposes a read view for mark-to-market and reporting.
func (m *Manager) Portfolio() *domain.Portfolio { return m.portfolio }

// TradeHistory returns all executions in fill order.
func (m *Manager) TradeHistory() []domain.Execution { return m.trades }

// Commission computes qty×per_share + price×qty×pct. It is always
// non-negative and always charged, never rebated.
func (m *Manager) Commission(price decimal.Decimal, qty int64) decimal.Decimal {
	q := decimal.NewFromInt(qty)
	return m.cfg.CommissionPerShare.Mul(q).Add(price.Mul(q).Mul(m.cfg.CommissionPct))
}

// requiredCash is the worst-case cash a buy can consume:
// price×qty×(1+pct) + per_share×qty.
func (m *Manager) requiredCash(price decimal.Decimal, qty int64) decimal.Decimal {
	q := decimal.NewFromInt(qty)
	return price.Mul(q).Mul(decimal.NewFromInt(1).Add(m.cfg.CommissionPct)).
		Add(m.cfg.CommissionPerShare.Mul(q))
}

// SubmitAll validates a cycle's intents in order. Crossed prices
// within one batch (an ask at or below a bid) fail the sanity check on
// both offenders. Rejections become events, never errors that escape
// to the simulation loop.
func (m *Manager) SubmitAll(intents []strategy.Intent, now time.Time) []*domain.Order {
	crossed := batchCrossings(intents)

	var accepted []*domain.Order
	for i, intent := range intents {
		var order *domain.Order
		var err error
		if crossed[i] {
			err = fmt.Errorf("batch ask %s <= batch bid: %w", intent.Price, domain.ErrInvalidOrder)
			m.reject(intent, now, err)
		} else if order, err = m.Submit(intent, now); err == nil {
			accepted = append(accepted, order)
		}
	}
	return accepted
}

// Submit runs the validation gate for a single intent. On success the
// order is VALIDATED, forwarded to the book (where it opens) and its
// cash requirement reserved; on failure it is REJECTED and the typed
// reason is returned for the caller's bookkeeping.
func (m *Manager) Submit(intent strategy.Intent, now time.Time) (*domain.Order, error) {
	if err := m.validate(intent, now); err != nil {
		m.reject(intent, now, err)
		return nil, err
	}

	order := &domain.Order{
		Symbol: intent.Symbol,
		Side:   intent.Side,
		Price:  intent.Price,
		Qty:    intent.Qty,
		Status: domain.StatusValidated,
	}
	m.book.Add(order, now)

	if order.Side == domain.SideBuy {
		total := m.requiredCash(order.Price, order.Qty)
		m.portfolio.Reserve(total)
		m.reserved[order.ID] = &reservation{
			perShare: total.Div(decimal.NewFromInt(order.Qty)),
			total:    total,
		}
	}
	m.accepted[order.Symbol] = append(m.accepted[order.Symbol], now)

	m.rec.Emit(audit.Event{
		Type:    audit.EventSubmitted,
		Ts:      now,
		Symbol:  order.Symbol,
		OrderID: order.ID,
		Side:    string(order.Side),
		Price:   order.Price.String(),
		Qty:     order.Qty,
	})
	return order, nil
}

func (m *Manager) validate(intent strategy.Intent, now time.Time) error {
	// 1. Capital: a buy must be affordable at its worst case, against
	// cash not already locked by other resting buys.
	if intent.Side == domain.SideBuy && intent.Qty > 0 {
		required := m.requiredCash(intent.Price, intent.Qty)
		if required.GreaterThan(m.portfolio.Available()) {
			return fmt.Errorf("need %s, available %s: %w",
				required, m.portfolio.Available(), domain.ErrInsufficientCapital)
		}
	}

	// 2. Position: the resulting net position must stay within limits.
	resulting := m.portfolio.NetQty(intent.Symbol) + intent.Side.Sign()*intent.Qty
	if resulting > m.cfg.MaxLongPosition {
		return fmt.Errorf("resulting position %d exceeds long limit %d: %w",
			resulting, m.cfg.MaxLongPosition, domain.ErrPositionLimit)
	}
	if resulting < -m.cfg.MaxShortPosition {
		return fmt.Errorf("resulting position %d exceeds short limit %d: %w",
			resulting, m.cfg.MaxShortPosition, domain.ErrPositionLimit)
	}

	// 3. Rate: acceptances for this symbol within the trailing window.
	if m.countRecent(intent.Symbol, now) >= m.cfg.MaxOrdersPerWindow {
		return fmt.Errorf("more than %d orders in %s: %w",
			m.cfg.MaxOrdersPerWindow, m.cfg.RateWindow, domain.ErrRateLimit)
	}

	// 4. Sanity: positive finite price, positive integer quantity.
	if !intent.Price.IsPositive() {
		return fmt.Errorf("price %s not positive: %w", intent.Price, domain.ErrInvalidOrder)
	}
	if intent.Qty <= 0 {
		return fmt.Errorf("qty %d not positive: %w", intent.Qty, domain.ErrInvalidOrder)
	}
	return nil
}

func (m *Manager) countRecent(symbol string, now time.Time) int {
	cutoff := now.Add(-m.cfg.RateWindow)
	times := m.accepted[symbol]
	// Drop entries outside the window; times are non-decreasing.
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	times = times[i:]
	m.accepted[symbol] = times
	return len(times)
}

func (m *Manager) reject(intent strategy.Intent, now time.Time, err error) {
	rej := &domain.RejectionError{Reason: err, Symbol: intent.Symbol, Detail: err.Error()}
	level := slog.LevelWarn
	if !domain.IsRecoverable(err) {
		level = slog.LevelError
	}
	m.log.Log(context.Background(), level, "order rejected",
		slog.String("symbol", intent.Symbol),
		slog.String("side", string(intent.Side)),
		slog.String("price", intent.Price.String()),
		slog.Int64("qty", intent.Qty),
		slog.Any("error", rej),
	)
	m.rec.Emit(audit.Event{
		Type:   audit.EventRejected,
		Ts:     now,
		Symbol: intent.Symbol,
		Side:   string(intent.Side),
		Price:  intent.Price.String(),
		Qty:    intent.Qty,
		Reason: err.Error(),
	})
}

// Cancel withdraws a resting order and releases its reservation.
func (m *Manager) Cancel(id uint64, now time.Time) error {
	order, _ := m.book.Get(id)
	if err := m.book.Cancel(id); err != nil {
		return err
	}
	m.releaseAll(id)
	m.rec.Emit(audit.Event{
		Type:    audit.EventCancelled,
		Ts:      now,
		Symbol:  order.Symbol,
		OrderID: id,
		Side:    string(order.Side),
		Price:   order.Price.String(),
		Qty:     order.Qty,
	})
	return nil
}

// Modify re-prices a resting order as cancel-then-add. The new values
// pass the capital and sanity gates first; the order keeps its ID but
// loses time priority.
func (m *Manager) Modify(id uint64, newPrice decimal.Decimal, newQty int64, now time.Time) (*domain.Order, error) {
	order, ok := m.book.Get(id)
	if !ok || order.IsTerminal() {
		return nil, fmt.Errorf("modify order %d: %w", id, domain.ErrNotFound)
	}
	if !newPrice.IsPositive() || newQty <= 0 {
		return nil, fmt.Errorf("modify order %d to price %s qty %d: %w",
			id, newPrice, newQty, domain.ErrInvalidOrder)
	}

	if order.Side == domain.SideBuy {
		// Re-reserve at the new worst case before touching the book.
		m.releaseAll(id)
		total := m.requiredCash(newPrice, newQty)
		if total.GreaterThan(m.portfolio.Available()) {
			// Restore the original reservation; the order stays put.
			old := m.requiredCash(order.Price, order.Remaining)
			m.portfolio.Reserve(old)
			m.reserved[id] = &reservation{perShare: old.Div(decimal.NewFromInt(order.Remaining)), total: old}
			return nil, fmt.Errorf("modify order %d: %w", id, domain.ErrInsufficientCapital)
		}
		m.portfolio.Reserve(total)
		m.reserved[id] = &reservation{perShare: total.Div(decimal.NewFromInt(newQty)), total: total}
	}

	modified, err := m.book.Modify(id, newPrice, newQty, now)
	if err != nil {
		return nil, err
	}
	m.rec.Emit(audit.Event{
		Type:    audit.EventModified,
		Ts:      now,
		Symbol:  modified.Symbol,
		OrderID: id,
		Side:    string(modified.Side),
		Price:   modified.Price.String(),
		Qty:     modified.Qty,
	})
	return modified, nil
}

// RecordExecution applies a fill to cash, position and realized P&L,
// releases the matching slice of the buy-side reservation, and appends
// the fill to the trade history.
func (m *Manager) RecordExecution(fill domain.Execution, remaining int64) {
	if fill.Side == domain.SideBuy {
		if res, ok := m.reserved[fill.OrderID]; ok {
			slice := res.perShare.Mul(decimal.NewFromInt(fill.Qty))
			if slice.GreaterThan(res.total) {
				slice = res.total
			}
			m.portfolio.Release(slice)
			res.total = res.total.Sub(slice)
			if remaining == 0 {
				// Release rounding dust with the final fill.
				m.portfolio.Release(res.total)
				delete(m.reserved, fill.OrderID)
			}
		}
	}

	m.portfolio.Apply(fill)
	m.trades = append(m.trades, fill)

	m.rec.Emit(audit.Event{
		Type:       audit.EventFill,
		Ts:         fill.Ts,
		Symbol:     fill.Symbol,
		OrderID:    fill.OrderID,
		Side:       string(fill.Side),
		Price:      fill.Price.String(),
		Qty:        fill.Qty,
		Remaining:  remaining,
		Commission: fill.Commission.String(),
		Partial:    fill.Partial,
		Position:   m.portfolio.NetQty(fill.Symbol),
		Cash:       m.portfolio.Cash.String(),
	})
}

// MarkToMarket records one equity point at the given prices.
func (m *Manager) MarkToMarket(ts time.Time, prices map[string]decimal.Decimal) domain.EquityPoint {
	return m.portfolio.MarkToMarket(ts, prices)
}

func (m *Manager) releaseAll(id uint64) {
	if res, ok := m.reserved[id]; ok {
		m.portfolio.Release(res.total)
		delete(m.reserved, id)
	}
}

// batchCrossings flags intents whose prices cross within one batch:
// any sell at or below the batch's highest buy, and any buy at or
// above the batch's lowest sell.
func batchCrossings(intents []strategy.Intent) []bool {
	crossed := make([]bool, len(intents))
	for i, a := range intents {
		if a.Side != domain.SideBuy {
			continue
		}
		for j, b := range intents {
			if b.Side != domain.SideSell || a.Symbol != b.Symbol {
				continue
			}
			if b.Price.LessThanOrEqual(a.Price) {
				crossed[i] = true
				crossed[j] = true
			}
		}
	}
	return crossed
}
