// Package gateway replays historical OHLCV data candle by candle,
// simulating a real-time feed for the backtest loop.
package gateway

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"backtest_go/internal/domain"
)

// CSV streams candles parsed from a CSV file. The sequence is finite
// and restartable from the start; timestamps must be non-decreasing,
// gaps are tolerated.
type CSV struct {
	candles []domain.Candle
	pos     int
}

// expected header: timestamp,open,high,low,close,volume
const columns = 6

// OpenCSV loads and validates the file. Rows are kept in file order;
// a timestamp regression is a data error and fails the load.
func OpenCSV(path, symbol string) (*CSV, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open market data: %w", err)
	}
	defer f.Close()
	return ReadCSV(f, symbol)
}

// ReadCSV parses candle rows from r.
func ReadCSV(r io.Reader, symbol string) (*CSV, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = columns

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse market data: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("market data is empty")
	}

	// Skip a header row if the first field is not a timestamp.
	start := 0
	if _, err := parseTime(rows[0][0]); err != nil {
		start = 1
	}

	candles := make([]domain.Candle, 0, len(rows)-start)
	var prev time.Time
	for i, row := range rows[start:] {
		c, err := parseRow(row, symbol)
		if err != nil {
			return nil, fmt.Errorf("market data row %d: %w", start+i+1, err)
		}
		if !prev.IsZero() && c.Ts.Before(prev) {
			return nil, fmt.Errorf("market data row %d: timestamp %s before %s",
				start+i+1, c.Ts, prev)
		}
		prev = c.Ts
		candles = append(candles, c)
	}
	return &CSV{candles: candles}, nil
}

// FromCandles wraps an in-memory sequence, mainly for tests.
func FromCandles(candles []domain.Candle) *CSV {
	return &CSV{candles: candles}
}

// Next returns the next candle, or ErrEndOfData when exhausted.
func (g *CSV) Next() (domain.Candle, error) {
	if g.pos >= len(g.candles) {
		return domain.Candle{}, domain.ErrEndOfData
	}
	c := g.candles[g.pos]
	g.pos++
	return c, nil
}

// Reset restarts the replay from the first candle.
func (g *CSV) Reset() {
	g.pos = 0
}

// Len returns the total number of candles.
func (g *CSV) Len() int {
	return len(g.candles)
}

func parseRow(row []string, symbol string) (domain.Candle, error) {
	ts, err := parseTime(row[0])
	if err != nil {
		return domain.Candle{}, err
	}
	prices := make([]decimal.Decimal, 4)
	for i, field := range row[1:5] {
		p, err := decimal.NewFromString(field)
		if err != nil {
			return domain.Candle{}, fmt.Errorf("bad price %q: %w", field, err)
		}
		prices[i] = p
	}
	volume, err := strconv.ParseInt(row[5], 10, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("bad volume %q: %w", row[5], err)
	}
	return domain.Candle{
		Symbol: symbol,
		Ts:     ts,
		Open:   prices[0],
		High:   prices[1],
		Low:    prices[2],
		Close:  prices[3],
		Volume: volume,
	}, nil
}

func parseTime(field string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, field); err == nil {
			return ts, nil
		}
	}
	// Unix seconds as a fallback.
	if sec, err := strconv.ParseInt(field, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("bad timestamp %q", field)
}
