package strategy

import (
	"backtest_go/internal/domain"

	"github.com/shopspring/decimal"
)

// SMACross is a moving-average crossover strategy over candle closes.
// It buys on a golden cross (short MA crossing above long MA) and
// sells on a dead cross. A ring buffer with a running sum keeps the
// hot path allocation-free.
type SMACross struct {
	symbol      string
	shortPeriod int
	longPeriod  int
	qty         int64

	prices []decimal.Decimal
	head   int
	count  int
	sum    decimal.Decimal

	prevShort decimal.Decimal
	prevLong  decimal.Decimal
	warmed    bool
}

// NewSMACross creates the strategy. shortPeriod must be strictly less
// than longPeriod.
func NewSMACross(symbol string, shortPeriod, longPeriod int, qty int64) *SMACross {
	if shortPeriod >= longPeriod {
		panic("SMACross: shortPeriod must be less than longPeriod")
	}
	return &SMACross{
		symbol:      symbol,
		shortPeriod: shortPeriod,
		longPeriod:  longPeriod,
		qty:         qty,
		prices:      make([]decimal.Decimal, longPeriod),
		sum:         decimal.Zero,
	}
}

// OnCandle ingests a close price and emits a buy or sell intent when
// the averages cross.
func (s *SMACross) OnCandle(c domain.Candle) []Intent {
	if c.Symbol != s.symbol {
		return nil
	}

	price := c.Close

	// Slide the window: drop the oldest close once the buffer is full.
	if s.count == s.longPeriod {
		s.sum = s.sum.Sub(s.prices[s.head])
	}
	s.prices[s.head] = price
	s.sum = s.sum.Add(price)
	s.head = (s.head + 1) % s.longPeriod
	if s.count < s.longPeriod {
		s.count++
	}

	if s.count < s.longPeriod {
		return nil
	}

	currLong := s.sum.Div(decimal.NewFromInt(int64(s.longPeriod)))
	currShort := s.shortSMA()

	var intents []Intent
	if s.warmed {
		// Golden cross: short moves above long.
		if s.prevShort.LessThanOrEqual(s.prevLong) && currShort.GreaterThan(currLong) {
			intents = append(intents, Intent{
				Symbol: s.symbol,
				Side:   domain.SideBuy,
				Price:  price,
				Qty:    s.qty,
			})
		}
		// Dead cross: short moves below long.
		if s.prevShort.GreaterThanOrEqual(s.prevLong) && currShort.LessThan(currLong) {
			intents = append(intents, Intent{
				Symbol: s.symbol,
				Side:   domain.SideSell,
				Price:  price,
				Qty:    s.qty,
			})
		}
	}

	s.prevShort = currShort
	s.prevLong = currLong
	s.warmed = true

	return intents
}

// shortSMA walks the ring buffer backwards from the latest write.
func (s *SMACross) shortSMA() decimal.Decimal {
	sum := decimal.Zero
	idx := s.head
	for i := 0; i < s.shortPeriod; i++ {
		idx--
		if idx < 0 {
			idx = s.longPeriod - 1
		}
		sum = sum.Add(s.prices[idx])
	}
	return sum.Div(decimal.NewFromInt(int64(s.shortPeriod)))
}
