package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ensemble-trader/internal/notify"
	"ensemble-trader/internal/risk"
	"ensemble-trader/internal/storage"
	"ensemble-trader/internal/strategy"
)

// Engine owns the trade lifecycle. Sizing and risk checks stay in the risk
// manager; the engine's job is placing, submitting, closing, and cancelling
// trades while keeping the ledger and sinks informed. Only the broker
// submission touches the network.
type Engine struct {
	mu     sync.Mutex
	trades map[string]*Trade
	orders map[string]risk.SizedOrder

	riskMgr *risk.Manager
	broker  Broker
	events  notify.Sink
	store   storage.TradeStore
	logger  zerolog.Logger
	clock   func() time.Time
}

// New constructs an Engine. events and store may be nil; broker may be nil
// when only simulation is used.
func New(riskMgr *risk.Manager, broker Broker, events notify.Sink, store storage.TradeStore, logger zerolog.Logger) *Engine {
	return &Engine{
		trades:  make(map[string]*Trade),
		orders:  make(map[string]risk.SizedOrder),
		riskMgr: riskMgr,
		broker:  broker,
		events:  events,
		store:   store,
		logger:  logger.With().Str("component", "engine").Logger(),
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the engine's time source. Intended for tests.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// Place reserves the order's risk budget and registers a pending trade. The
// reservation is atomic: two concurrent placements cannot both claim the
// full remaining budget.
func (e *Engine) Place(ctx context.Context, order risk.SizedOrder) (*Trade, *risk.Rejection) {
	tradeID := uuid.NewString()

	if rejection := e.riskMgr.Reserve(order, tradeID); rejection != nil {
		e.logger.Info().
			Str("symbol", order.Symbol).
			Str("reason", rejection.Reason).
			Msg("order rejected by risk reservation")
		return nil, rejection
	}

	now := e.clock()
	trade := &Trade{
		ID:          tradeID,
		Symbol:      order.Symbol,
		Side:        order.Side,
		Notional:    order.Size,
		EntryPrice:  order.EntryPrice,
		Status:      StatusPending,
		OpenedAt:    now,
		DecisionRef: order.DecisionRef,
	}

	e.mu.Lock()
	e.trades[tradeID] = trade
	e.orders[tradeID] = order
	e.mu.Unlock()

	e.record(ctx, trade)
	return e.snapshot(trade), nil
}

// Execute submits a pending trade to the broker. On success the trade opens
// at the fill price; on broker failure the trade is marked failed and its
// budget released, with ErrExecutionFailed returned.
func (e *Engine) Execute(ctx context.Context, tradeID string) (*Trade, error) {
	e.mu.Lock()
	trade, ok := e.trades[tradeID]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrTradeNotFound, tradeID)
	}
	if trade.Status != StatusPending {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: execute from %s", ErrInvalidTransition, trade.Status)
	}
	if e.broker == nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: no broker configured", ErrExecutionFailed)
	}
	order := e.orders[tradeID]
	// The submitting state is claimed under the lock so a concurrent Cancel
	// cannot release the budget while the order is in flight at the broker.
	// The ledger only records the eventual open or failed outcome.
	trade.Status = StatusSubmitting
	e.mu.Unlock()

	// Broker submission deliberately happens outside the engine lock.
	fill, err := e.broker.SubmitOrder(ctx, order)
	if err != nil {
		e.transition(ctx, trade, StatusFailed, func(t *Trade) {})
		e.riskMgr.Release(trade.ID, decimal.Zero)
		e.emit(ctx, notify.EventTradeFailed, trade)
		return nil, fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}

	e.transition(ctx, trade, StatusOpen, func(t *Trade) {
		t.EntryPrice = fill.FillPrice
		t.Size = t.Notional.Div(fill.FillPrice)
		t.OpenedAt = e.clock()
	})
	e.emit(ctx, notify.EventTradeExecuted, trade)

	e.logger.Info().
		Str("trade_id", trade.ID).
		Str("symbol", trade.Symbol).
		Str("order_id", fill.OrderID).
		Str("fill_price", fill.FillPrice.String()).
		Msg("trade executed")

	return e.snapshot(trade), nil
}

// ExecuteOrder places and immediately executes a sized order.
func (e *Engine) ExecuteOrder(ctx context.Context, order risk.SizedOrder) (*Trade, *risk.Rejection, error) {
	trade, rejection := e.Place(ctx, order)
	if rejection != nil {
		return nil, rejection, nil
	}

	executed, err := e.Execute(ctx, trade.ID)
	if err != nil {
		return nil, nil, err
	}
	return executed, nil, nil
}

// Close transitions an open trade to closed at the given exit price and
// realizes its P&L: (exit - entry) x size for buys, negated for sells.
func (e *Engine) Close(ctx context.Context, tradeID string, exitPrice decimal.Decimal) (*Trade, error) {
	if exitPrice.Sign() <= 0 {
		return nil, fmt.Errorf("engine: exit price must be positive")
	}

	e.mu.Lock()
	trade, ok := e.trades[tradeID]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrTradeNotFound, tradeID)
	}
	if trade.Status != StatusOpen {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: close from %s", ErrInvalidTransition, trade.Status)
	}
	e.mu.Unlock()

	var realized decimal.Decimal
	e.transition(ctx, trade, StatusClosed, func(t *Trade) {
		move := exitPrice.Sub(t.EntryPrice)
		if t.Side == strategy.Sell {
			move = move.Neg()
		}
		realized = move.Mul(t.Size)

		exit := exitPrice
		now := e.clock()
		t.ExitPrice = &exit
		t.ClosedAt = &now
		t.RealizedPnL = realized
	})

	e.riskMgr.Release(trade.ID, realized)
	e.emit(ctx, notify.EventTradeClosed, trade)

	e.logger.Info().
		Str("trade_id", trade.ID).
		Str("symbol", trade.Symbol).
		Str("realized_pnl", realized.String()).
		Msg("trade closed")

	return e.snapshot(trade), nil
}

// Cancel aborts a pending trade and releases its budget.
func (e *Engine) Cancel(ctx context.Context, tradeID string) (*Trade, error) {
	e.mu.Lock()
	trade, ok := e.trades[tradeID]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrTradeNotFound, tradeID)
	}
	if trade.Status != StatusPending {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: cancel from %s", ErrInvalidTransition, trade.Status)
	}
	e.mu.Unlock()

	e.transition(ctx, trade, StatusCancelled, func(t *Trade) {})
	e.riskMgr.Release(trade.ID, decimal.Zero)

	return e.snapshot(trade), nil
}

// Get returns a copy of a trade by id.
func (e *Engine) Get(tradeID string) (Trade, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	trade, ok := e.trades[tradeID]
	if !ok {
		return Trade{}, false
	}
	return *trade, true
}

// List returns copies of all trades held in the working set.
func (e *Engine) List() []Trade {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Trade, 0, len(e.trades))
	for _, t := range e.trades {
		out = append(out, *t)
	}
	return out
}

// transition applies a status change under the engine lock and appends the
// resulting ledger row.
func (e *Engine) transition(ctx context.Context, trade *Trade, to Status, mutate func(*Trade)) {
	e.mu.Lock()
	if !canTransition(trade.Status, to) {
		// Callers check the current status first; hitting this means a race
		// was lost, and the ledger keeps the earlier transition.
		e.mu.Unlock()
		return
	}
	mutate(trade)
	trade.Status = to
	e.mu.Unlock()

	e.record(ctx, trade)
}

// record appends the trade's current state to the persistence sink. Sink
// failure is logged, never propagated.
func (e *Engine) record(ctx context.Context, trade *Trade) {
	if e.store == nil {
		return
	}

	e.mu.Lock()
	event := storage.TradeEvent{
		TradeID:     trade.ID,
		Symbol:      trade.Symbol,
		Side:        string(trade.Side),
		Size:        trade.Size,
		Notional:    trade.Notional,
		EntryPrice:  trade.EntryPrice,
		Status:      string(trade.Status),
		RealizedPnL: trade.RealizedPnL,
		DecisionRef: trade.DecisionRef,
		OccurredAt:  e.clock(),
	}
	if trade.ExitPrice != nil {
		exit := *trade.ExitPrice
		event.ExitPrice = &exit
	}
	e.mu.Unlock()

	if _, err := e.store.AppendTradeEvent(ctx, event); err != nil {
		e.logger.Error().Str("trade_id", trade.ID).Err(err).Msg("failed to append trade event")
	}
}

func (e *Engine) emit(ctx context.Context, eventType string, trade *Trade) {
	if e.events == nil {
		return
	}

	e.mu.Lock()
	payload := map[string]string{
		"trade_id":    trade.ID,
		"side":        string(trade.Side),
		"status":      string(trade.Status),
		"entry_price": trade.EntryPrice.String(),
		"notional":    trade.Notional.String(),
	}
	if trade.ExitPrice != nil {
		payload["exit_price"] = trade.ExitPrice.String()
		payload["realized_pnl"] = trade.RealizedPnL.String()
	}
	symbol := trade.Symbol
	e.mu.Unlock()

	if err := e.events.Offer(ctx, notify.Event{
		Type:      eventType,
		Symbol:    symbol,
		Payload:   payload,
		Timestamp: e.clock(),
	}); err != nil {
		e.logger.Error().Str("trade_id", trade.ID).Err(err).Msg("failed to offer trade event")
	}
}

func (e *Engine) snapshot(trade *Trade) *Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	copied := *trade
	return &copied
}
