package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one OHLCV market snapshot for a single instrument.
type Candle struct {
	Symbol string          `json:"symbol"`
	Ts     time.Time       `json:"ts"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// Touches reports whether the candle's range reached the given price.
func (c Candle) Touches(price decimal.Decimal) bool {
	return price.GreaterThanOrEqual(c.Low) && price.LessThanOrEqual(c.High)
}
