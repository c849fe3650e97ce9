package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Event types offered to sinks.
const (
	EventDecision      = "decision"
	EventTradeExecuted = "trade_executed"
	EventTradeClosed   = "trade_closed"
	EventTradeFailed   = "trade_failed"
)

// Event is a finalized pipeline outcome offered for external delivery.
type Event struct {
	Type      string
	Symbol    string
	Payload   map[string]string
	Timestamp time.Time
}

// Sink delivers events to an external channel. Delivery failure must never
// roll back the decision or trade that produced the event.
type Sink interface {
	Offer(ctx context.Context, event Event) error
}

// MultiSink fans one event out to several sinks, logging failures instead of
// propagating them.
type MultiSink struct {
	sinks  []Sink
	logger zerolog.Logger
}

// NewMultiSink combines sinks. Nil entries are skipped.
func NewMultiSink(logger zerolog.Logger, sinks ...Sink) *MultiSink {
	kept := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &MultiSink{
		sinks:  kept,
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

// Offer delivers the event to every sink. It always returns nil; per-sink
// failures are logged only.
func (m *MultiSink) Offer(ctx context.Context, event Event) error {
	for _, s := range m.sinks {
		if err := s.Offer(ctx, event); err != nil {
			m.logger.Error().
				Str("type", event.Type).
				Str("symbol", event.Symbol).
				Err(err).
				Msg("event delivery failed")
		}
	}
	return nil
}

var _ Sink = (*MultiSink)(nil)
