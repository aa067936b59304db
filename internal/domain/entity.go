package domain

import "time"

// OrderEventRecord is the persisted form of one audit event. Every
// submission, rejection, fill and cancellation is stored with enough
// fields to reconstruct the order's lifecycle from the log alone.
type OrderEventRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	RunID      string    `gorm:"index" json:"run_id"`
	Seq        uint64    `gorm:"index" json:"seq"`
	Type       string    `json:"type"`
	Ts         time.Time `json:"ts"`
	Symbol     string    `json:"symbol"`
	OrderID    uint64    `gorm:"index" json:"order_id"`
	Side       string    `json:"side"`
	Price      string    `json:"price"`
	Qty        int64     `json:"qty"`
	Remaining  int64     `json:"remaining"`
	Commission string    `json:"commission"`
	Reason     string    `json:"reason"`
	Depth      int64     `json:"depth"`
	CreatedAt  time.Time `json:"created_at"`
}

// EquityPointRecord is one persisted mark-to-market value.
type EquityPointRecord struct {
	ID     uint      `gorm:"primaryKey" json:"id"`
	RunID  string    `gorm:"index" json:"run_id"`
	Ts     time.Time `json:"ts"`
	Equity string    `json:"equity"`
}

// RunRecord summarizes one backtest run for later comparison.
type RunRecord struct {
	RunID       string    `gorm:"primaryKey" json:"run_id"`
	Symbol      string    `json:"symbol"`
	Seed        int64     `json:"seed"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Steps       uint64    `json:"steps"`
	Trades      int       `json:"trades"`
	FinalEquity string    `json:"final_equity"`
}
