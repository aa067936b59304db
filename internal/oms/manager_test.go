package oms

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"backtest_go/internal/audit"
	"backtest_go/internal/book"
	"backtest_go/internal/domain"
	"backtest_go/internal/strategy"
)

var t0 = time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		Capital:            decimal.NewFromInt(100000),
		CommissionPerShare: decimal.Zero,
		CommissionPct:      decimal.Zero,
		MaxLongPosition:    50,
		MaxShortPosition:   50,
		MaxOrdersPerWindow: 30,
		RateWindow:         time.Minute,
	}
}

func newManager(cfg Config) (*Manager, *book.Book) {
	bk := book.New("AAPL")
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, bk, audit.NewRecorder(), log), bk
}

func buy(price string, qty int64) strategy.Intent {
	return strategy.Intent{Symbol: "AAPL", Side: domain.SideBuy, Price: decimal.RequireFromString(price), Qty: qty}
}

func sell(price string, qty int64) strategy.Intent {
	return strategy.Intent{Symbol: "AAPL", Side: domain.SideSell, Price: decimal.RequireFromString(price), Qty: qty}
}

func TestSubmitAcceptsAndOpens(t *testing.T) {
	m, bk := newManager(testConfig())

	order, err := m.Submit(buy("100.00", 10), t0)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if order.Status != domain.StatusOpen {
		t.Fatalf("expected OPEN after book accept, got %s", order.Status)
	}
	if _, ok := bk.Get(order.ID); !ok {
		t.Fatal("accepted order must rest on the book")
	}
	expected := decimal.RequireFromString("1000")
	if !m.Portfolio().Reserved.Equal(expected) {
		t.Fatalf("expected reservation %s, got %s", expected, m.Portfolio().Reserved)
	}
}

func TestInsufficientCapital(t *testing.T) {
	cfg := testConfig()
	cfg.Capital = decimal.NewFromInt(500)
	cfg.MaxLongPosition = 1000
	m, bk := newManager(cfg)

	_, err := m.Submit(buy("100.00", 10), t0)
	if !errors.Is(err, domain.ErrInsufficientCapital) {
		t.Fatalf("expected ErrInsufficientCapital, got %v", err)
	}
	if bids, _ := bk.Depth(); bids != 0 {
		t.Fatal("rejected order must never enter the book")
	}
}

func TestCapitalCountsCommission(t *testing.T) {
	cfg := testConfig()
	cfg.Capital = decimal.NewFromInt(1000)
	cfg.CommissionPct = decimal.RequireFromString("0.01")
	m, _ := newManager(cfg)

	// 10×100 = 1000 fits, but 1% commission pushes it over.
	if _, err := m.Submit(buy("100.00", 10), t0); !errors.Is(err, domain.ErrInsufficientCapital) {
		t.Fatalf("expected ErrInsufficientCapital, got %v", err)
	}
}

func TestPositionLimit(t *testing.T) {
	m, bk := newManager(testConfig())

	// Take position to +45.
	order, err := m.Submit(buy("100.00", 45), t0)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	bk.ApplyFill(order.ID, 45)
	m.RecordExecution(domain.Execution{
		OrderID: order.ID, Symbol: "AAPL", Side: domain.SideBuy,
		Qty: 45, Price: order.Price, Commission: decimal.Zero, Ts: t0,
	}, 0)

	// Limit 50, current +45: buy qty 10 must be rejected.
	_, err = m.Submit(buy("100.00", 10), t0)
	if !errors.Is(err, domain.ErrPositionLimit) {
		t.Fatalf("expected ErrPositionLimit, got %v", err)
	}
	if bids, _ := bk.Depth(); bids != 0 {
		t.Fatal("rejected order must never enter the book")
	}

	// Short side symmetrically.
	_, err = m.Submit(sell("100.00", 96), t0)
	if !errors.Is(err, domain.ErrPositionLimit) {
		t.Fatalf("expected ErrPositionLimit for short breach, got %v", err)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxOrdersPerWindow = 3
	m, _ := newManager(cfg)

	for i := 0; i < 3; i++ {
		if _, err := m.Submit(buy("10.00", 1), t0.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
	}
	_, err := m.Submit(buy("10.00", 1), t0.Add(3*time.Second))
	if !errors.Is(err, domain.ErrRateLimit) {
		t.Fatalf("expected ErrRateLimit, got %v", err)
	}

	// Outside the trailing window the count resets.
	if _, err := m.Submit(buy("10.00", 1), t0.Add(2*time.Minute)); err != nil {
		t.Fatalf("submit after window failed: %v", err)
	}
}

func TestSanityChecks(t *testing.T) {
	m, _ := newManager(testConfig())

	if _, err := m.Submit(buy("-1.00", 10), t0); !errors.Is(err, domain.ErrInvalidOrder) {
		t.Fatalf("expected ErrInvalidOrder for negative price, got %v", err)
	}
	if _, err := m.Submit(buy("100.00", 0), t0); !errors.Is(err, domain.ErrInvalidOrder) {
		t.Fatalf("expected ErrInvalidOrder for zero qty, got %v", err)
	}
}

func TestBatchCrossRejected(t *testing.T) {
	m, bk := newManager(testConfig())

	accepted := m.SubmitAll([]strategy.Intent{
		buy("100.00", 5),
		sell("99.00", 5), // at or below the batch bid: invalid
	}, t0)
	if len(accepted) != 0 {
		t.Fatalf("crossed batch must be rejected, accepted %d", len(accepted))
	}
	if bids, asks := bk.Depth(); bids+asks != 0 {
		t.Fatal("rejected batch must not reach the book")
	}

	accepted = m.SubmitAll([]strategy.Intent{
		buy("100.00", 5),
		sell("100.50", 5),
	}, t0)
	if len(accepted) != 2 {
		t.Fatalf("non-crossed batch must pass, accepted %d", len(accepted))
	}
}

func TestCommission(t *testing.T) {
	cfg := testConfig()
	m, _ := newManager(cfg)

	price := decimal.RequireFromString("100.00")
	if !m.Commission(price, 10).IsZero() {
		t.Fatal("zero commission config must yield zero commission")
	}

	cfg.CommissionPerShare = decimal.RequireFromString("0.01")
	m2, _ := newManager(cfg)
	c2 := m2.Commission(price, 10)
	if !c2.Equal(decimal.RequireFromString("0.1")) {
		t.Fatalf("expected 0.1, got %s", c2)
	}

	cfg.CommissionPct = decimal.RequireFromString("0.001")
	m3, _ := newManager(cfg)
	c3 := m3.Commission(price, 10)
	if !c3.GreaterThan(c2) {
		t.Fatal("raising commission_pct must strictly increase commission")
	}
}

func TestRecordExecutionAccounting(t *testing.T) {
	m, bk := newManager(testConfig())

	order, _ := m.Submit(buy("100.00", 10), t0)
	bk.ApplyFill(order.ID, 10)
	m.RecordExecution(domain.Execution{
		OrderID: order.ID, Symbol: "AAPL", Side: domain.SideBuy,
		Qty: 10, Price: decimal.RequireFromString("100.00"),
		Commission: decimal.RequireFromString("1.50"), Ts: t0,
	}, 0)

	p := m.Portfolio()
	wantCash := decimal.RequireFromString("98998.50") // 100000 - 1000 - 1.50
	if !p.Cash.Equal(wantCash) {
		t.Fatalf("expected cash %s, got %s", wantCash, p.Cash)
	}
	if p.NetQty("AAPL") != 10 {
		t.Fatalf("expected position +10, got %d", p.NetQty("AAPL"))
	}
	if !p.Reserved.IsZero() {
		t.Fatalf("reservation must be fully released on final fill, got %s", p.Reserved)
	}
	if len(m.TradeHistory()) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(m.TradeHistory()))
	}
}

func TestRealizedPnLOnReduce(t *testing.T) {
	m, bk := newManager(testConfig())

	order, _ := m.Submit(buy("100.00", 10), t0)
	bk.ApplyFill(order.ID, 10)
	m.RecordExecution(domain.Execution{
		OrderID: order.ID, Symbol: "AAPL", Side: domain.SideBuy,
		Qty: 10, Price: decimal.RequireFromString("100.00"), Commission: decimal.Zero, Ts: t0,
	}, 0)

	sellOrder, _ := m.Submit(sell("110.00", 10), t0.Add(time.Second))
	bk.ApplyFill(sellOrder.ID, 10)
	m.RecordExecution(domain.Execution{
		OrderID: sellOrder.ID, Symbol: "AAPL", Side: domain.SideSell,
		Qty: 10, Price: decimal.RequireFromString("110.00"), Commission: decimal.Zero, Ts: t0,
	}, 0)

	p := m.Portfolio()
	if !p.Realized.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected realized P&L 100, got %s", p.Realized)
	}
	if p.NetQty("AAPL") != 0 {
		t.Fatalf("expected flat position, got %d", p.NetQty("AAPL"))
	}
	if !p.Cash.Equal(decimal.NewFromInt(100100)) {
		t.Fatalf("expected cash 100100, got %s", p.Cash)
	}
}

func TestCancelReleasesReservation(t *testing.T) {
	m, _ := newManager(testConfig())

	order, _ := m.Submit(buy("100.00", 10), t0)
	if m.Portfolio().Reserved.IsZero() {
		t.Fatal("buy must reserve cash")
	}
	if err := m.Cancel(order.ID, t0.Add(time.Second)); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if !m.Portfolio().Reserved.IsZero() {
		t.Fatalf("cancel must release reservation, got %s", m.Portfolio().Reserved)
	}

	if err := m.Cancel(order.ID, t0.Add(time.Second)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second cancel, got %v", err)
	}
}

func TestReservationBlocksOverspend(t *testing.T) {
	cfg := testConfig()
	cfg.Capital = decimal.NewFromInt(1500)
	m, _ := newManager(cfg)

	if _, err := m.Submit(buy("100.00", 10), t0); err != nil {
		t.Fatalf("first buy failed: %v", err)
	}
	// 1000 of 1500 is locked; a second 1000 buy must not validate.
	_, err := m.Submit(buy("100.00", 10), t0.Add(time.Second))
	if !errors.Is(err, domain.ErrInsufficientCapital) {
		t.Fatalf("expected ErrInsufficientCapital, got %v", err)
	}
}

func TestModify(t *testing.T) {
	m, _ := newManager(testConfig())

	order, _ := m.Submit(buy("100.00", 10), t0)
	oldSeq := order.Sequence

	modified, err := m.Modify(order.ID, decimal.RequireFromString("101.00"), 10, t0.Add(time.Second))
	if err != nil {
		t.Fatalf("Modify failed: %v", err)
	}
	if modified.Sequence <= oldSeq {
		t.Fatal("modify must reset time priority")
	}
	want := decimal.RequireFromString("1010")
	if !m.Portfolio().Reserved.Equal(want) {
		t.Fatalf("expected re-reservation %s, got %s", want, m.Portfolio().Reserved)
	}

	if _, err := m.Modify(9999, decimal.NewFromInt(1), 1, t0); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
