package audit

import (
	"log/slog"

	"backtest_go/internal/domain"
	"backtest_go/internal/infra/storage"
)

// SlogSink writes every event to the structured log. With the JSON
// handler this yields the append-only JSONL order log.
type SlogSink struct {
	log *slog.Logger
}

// NewSlogSink creates a sink over the given logger.
func NewSlogSink(log *slog.Logger) *SlogSink {
	return &SlogSink{log: log}
}

func (s *SlogSink) Emit(ev Event) {
	attrs := []any{
		slog.Uint64("seq", ev.Seq),
		slog.Time("sim_ts", ev.Ts),
	}
	if ev.Symbol != "" {
		attrs = append(attrs, slog.String("symbol", ev.Symbol))
	}
	if ev.OrderID != 0 {
		attrs = append(attrs,
			slog.Uint64("order_id", ev.OrderID),
			slog.String("side", ev.Side),
			slog.String("price", ev.Price),
			slog.Int64("qty", ev.Qty),
		)
	}
	if ev.Type == EventFill {
		attrs = append(attrs,
			slog.Int64("remaining", ev.Remaining),
			slog.String("commission", ev.Commission),
			slog.Bool("partial", ev.Partial),
		)
	}
	if ev.Reason != "" {
		attrs = append(attrs, slog.String("reason", ev.Reason))
	}
	if ev.Equity != "" {
		attrs = append(attrs, slog.String("equity", ev.Equity), slog.String("cash", ev.Cash))
	}
	if ev.Type == EventStep {
		attrs = append(attrs, slog.Int64("depth", ev.Depth))
	}
	s.log.Info(string(ev.Type), attrs...)
}

// StoreSink persists events through the sqlite store. Persistence
// failures are logged, not raised: the audit trail must never abort a
// run that the exchange invariants consider healthy.
type StoreSink struct {
	store *storage.Store
	runID string
	log   *slog.Logger
}

// NewStoreSink creates a sink persisting under the given run ID.
func NewStoreSink(store *storage.Store, runID string, log *slog.Logger) *StoreSink {
	return &StoreSink{store: store, runID: runID, log: log}
}

func (s *StoreSink) Emit(ev Event) {
	rec := &domain.OrderEventRecord{
		RunID:      s.runID,
		Seq:        ev.Seq,
		Type:       string(ev.Type),
		Ts:         ev.Ts,
		Symbol:     ev.Symbol,
		OrderID:    ev.OrderID,
		Side:       ev.Side,
		Price:      ev.Price,
		Qty:        ev.Qty,
		Remaining:  ev.Remaining,
		Commission: ev.Commission,
		Reason:     ev.Reason,
		Depth:      ev.Depth,
	}
	if err := s.store.SaveEvent(rec); err != nil {
		s.log.Error("audit event persist failed", slog.Uint64("seq", ev.Seq), slog.Any("error", err))
	}
}
