package infra

import "sync/atomic"

// Metrics provides lightweight run counters without external
// dependencies. Atomic so the feed server can read while the loop
// writes.
type Metrics struct {
	stepsProcessed atomic.Uint64
	intentsSeen    atomic.Uint64
	ordersFilled   atomic.Uint64
	errorsTotal    atomic.Uint64
}

// RecordStep counts one completed replay cycle.
func (m *Metrics) RecordStep() {
	m.stepsProcessed.Add(1)
}

// RecordIntents counts strategy intents submitted this cycle.
func (m *Metrics) RecordIntents(n int) {
	m.intentsSeen.Add(uint64(n))
}

// RecordFill counts one execution.
func (m *Metrics) RecordFill() {
	m.ordersFilled.Add(1)
}

// RecordError counts a recoverable error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Steps   uint64 `json:"steps"`
	Intents uint64 `json:"intents"`
	Fills   uint64 `json:"fills"`
	Errors  uint64 `json:"errors"`
}

// Snapshot reads all counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Steps:   m.stepsProcessed.Load(),
		Intents: m.intentsSeen.Load(),
		Fills:   m.ordersFilled.Load(),
		Errors:  m.errorsTotal.Load(),
	}
}
