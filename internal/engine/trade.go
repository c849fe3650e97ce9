package engine

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"ensemble-trader/internal/strategy"
)

// Status is a trade lifecycle state.
type Status string

const (
	StatusPending Status = "pending"
	// StatusSubmitting marks a trade whose order is in flight at the broker.
	// It exists only in the engine's working set, never in the ledger, and
	// blocks Cancel until the submission resolves.
	StatusSubmitting Status = "submitting"
	StatusOpen       Status = "open"
	StatusClosed     Status = "closed"
	StatusCancelled  Status = "cancelled"
	StatusFailed     Status = "failed"
)

var (
	// ErrExecutionFailed indicates the broker rejected or timed out on an
	// order submission. No capital is assumed committed.
	ErrExecutionFailed = errors.New("engine: execution failed")
	// ErrTradeNotFound indicates an unknown trade id.
	ErrTradeNotFound = errors.New("engine: trade not found")
	// ErrInvalidTransition indicates a lifecycle transition the state
	// machine does not permit.
	ErrInvalidTransition = errors.New("engine: invalid status transition")
)

// Trade is one position in the ledger. Created on placement, mutated only by
// the engine's transition methods, never deleted.
//
// Size is the base-asset quantity filled (order notional divided by fill
// price), so realized P&L is (exit - entry) x Size for buys and the negated
// form for sells.
type Trade struct {
	ID          string
	Symbol      string
	Side        strategy.Side
	Size        decimal.Decimal
	Notional    decimal.Decimal
	EntryPrice  decimal.Decimal
	ExitPrice   *decimal.Decimal
	Status      Status
	OpenedAt    time.Time
	ClosedAt    *time.Time
	RealizedPnL decimal.Decimal
	DecisionRef string
}

// IsOpen reports whether the trade currently holds a position. A trade is
// open if and only if it has no exit price.
func (t *Trade) IsOpen() bool {
	return t.Status == StatusOpen
}

// canTransition encodes the lifecycle state machine:
// pending -> submitting | cancelled | failed; submitting -> open | failed;
// open -> closed | failed.
func canTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusSubmitting || to == StatusCancelled || to == StatusFailed
	case StatusSubmitting:
		return to == StatusOpen || to == StatusFailed
	case StatusOpen:
		return to == StatusClosed || to == StatusFailed
	}
	return false
}
