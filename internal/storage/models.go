package storage

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// TradeEvent is one append-only row in the trade ledger. Every status
// transition of a trade produces a new row; rows are never updated or
// deleted.
type TradeEvent struct {
	ID          int64
	TradeID     string
	Symbol      string
	Side        string
	Size        decimal.Decimal
	Notional    decimal.Decimal
	EntryPrice  decimal.Decimal
	ExitPrice   *decimal.Decimal
	Status      string
	RealizedPnL decimal.Decimal
	DecisionRef string
	OccurredAt  time.Time
	CreatedAt   time.Time
}

// DecisionRecord is one append-only consensus decision, stored for audit and
// replay.
type DecisionRecord struct {
	ID          int64
	Symbol      string
	Side        string
	Confidence  decimal.Decimal
	Unavailable bool
	Reason      string
	Signals     json.RawMessage
	GeneratedAt time.Time
	CreatedAt   time.Time
}
