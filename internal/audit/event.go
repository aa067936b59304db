// Package audit turns order and step activity into structured events
// that can reconstruct every order's lifecycle from the log alone.
package audit

import "time"

// EventType labels one lifecycle or loop event.
type EventType string

const (
	EventSubmitted EventType = "SUBMITTED"
	EventRejected  EventType = "REJECTED"
	EventFill      EventType = "FILL"
	EventCancelled EventType = "CANCELLED"
	EventModified  EventType = "MODIFIED"
	EventStep      EventType = "STEP"
	EventRunStart  EventType = "RUN_START"
	EventRunEnd    EventType = "RUN_END"
)

// Event is one structured audit record. Monetary fields are carried as
// decimal strings so every sink serializes them identically.
type Event struct {
	Seq        uint64    `json:"seq"`
	Type       EventType `json:"type"`
	Ts         time.Time `json:"ts"`
	Symbol     string    `json:"symbol,omitempty"`
	OrderID    uint64    `json:"order_id,omitempty"`
	Side       string    `json:"side,omitempty"`
	Price      string    `json:"price,omitempty"`
	Qty        int64     `json:"qty,omitempty"`
	Remaining  int64     `json:"remaining,omitempty"`
	Commission string    `json:"commission,omitempty"`
	Partial    bool      `json:"partial,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Equity     string    `json:"equity,omitempty"`
	Cash       string    `json:"cash,omitempty"`
	Position   int64     `json:"position,omitempty"`
	Depth      int64     `json:"depth,omitempty"` // resting orders on the book, step events only
}

// Sink receives audit events. Implementations must not block the
// simulation loop.
type Sink interface {
	Emit(ev Event)
}

// Recorder assigns monotonic event sequence numbers and fans events
// out to every registered sink. A nil Recorder drops everything, so
// components can emit unconditionally.
type Recorder struct {
	seq   uint64
	sinks []Sink
}

// NewRecorder creates a recorder over the given sinks.
func NewRecorder(sinks ...Sink) *Recorder {
	return &Recorder{sinks: sinks}
}

// Emit stamps the event and forwards it to all sinks.
func (r *Recorder) Emit(ev Event) {
	if r == nil {
		return
	}
	r.seq++
	ev.Seq = r.seq
	for _, s := range r.sinks {
		s.Emit(ev)
	}
}
