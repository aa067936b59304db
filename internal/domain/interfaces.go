package domain

// Gateway streams historical market data candle by candle. The
// sequence is finite and restartable from the start; timestamps are
// strictly non-decreasing within one replay. Next returns ErrEndOfData
// when the sequence is exhausted.
type Gateway interface {
	Next() (Candle, error)
	Reset()
}
