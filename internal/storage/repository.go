package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertTradeEventSQL = `INSERT INTO trade_events (
        trade_id,
        symbol,
        side,
        size,
        notional,
        entry_price,
        exit_price,
        status,
        realized_pnl,
        decision_ref,
        occurred_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
    ) RETURNING id;`

	listRecentTradeEventsSQL = `SELECT
        id,
        trade_id,
        symbol,
        side,
        size,
        notional,
        entry_price,
        exit_price,
        status,
        realized_pnl,
        decision_ref,
        occurred_at,
        created_at
    FROM trade_events
    ORDER BY occurred_at DESC, id DESC
    LIMIT $1;`

	insertDecisionSQL = `INSERT INTO decisions (
        symbol,
        side,
        confidence,
        unavailable,
        reason,
        signals,
        generated_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    ) RETURNING id;`

	listDecisionsBetweenSQL = `SELECT
        id,
        symbol,
        side,
        confidence,
        unavailable,
        reason,
        signals,
        generated_at,
        created_at
    FROM decisions
    WHERE generated_at >= $1
      AND generated_at < $2
    ORDER BY generated_at;`

	listRecentDecisionsSQL = `SELECT
        id,
        symbol,
        side,
        confidence,
        unavailable,
        reason,
        signals,
        generated_at,
        created_at
    FROM decisions
    ORDER BY generated_at DESC
    LIMIT $1;`
)

// TradeStore defines append-only trade ledger persistence.
type TradeStore interface {
	AppendTradeEvent(ctx context.Context, event TradeEvent) (int64, error)
	ListRecentTradeEvents(ctx context.Context, limit int) ([]TradeEvent, error)
}

// DecisionStore defines append-only decision persistence.
type DecisionStore interface {
	AppendDecision(ctx context.Context, record DecisionRecord) (int64, error)
	ListDecisionsBetween(ctx context.Context, from, to time.Time) ([]DecisionRecord, error)
	ListRecentDecisions(ctx context.Context, limit int) ([]DecisionRecord, error)
}

// Store aggregates access to the trade ledger and decision history.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// AppendTradeEvent records one trade status transition.
func (s *Store) AppendTradeEvent(ctx context.Context, event TradeEvent) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var exitPrice interface{}
	if event.ExitPrice != nil {
		exitPrice = event.ExitPrice.String()
	}

	var id int64
	err = pool.QueryRow(ctx, insertTradeEventSQL,
		event.TradeID,
		event.Symbol,
		event.Side,
		event.Size.String(),
		event.Notional.String(),
		event.EntryPrice.String(),
		exitPrice,
		event.Status,
		event.RealizedPnL.String(),
		event.DecisionRef,
		event.OccurredAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert trade event: %w", err)
	}

	return id, nil
}

// ListRecentTradeEvents returns the latest ledger rows, newest first.
func (s *Store) ListRecentTradeEvents(ctx context.Context, limit int) ([]TradeEvent, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listRecentTradeEventsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list trade events: %w", err)
	}
	defer rows.Close()

	return scanTradeEvents(rows)
}

// AppendDecision records one consensus decision.
func (s *Store) AppendDecision(ctx context.Context, record DecisionRecord) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var id int64
	err = pool.QueryRow(ctx, insertDecisionSQL,
		record.Symbol,
		record.Side,
		record.Confidence.String(),
		record.Unavailable,
		record.Reason,
		record.Signals,
		record.GeneratedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert decision: %w", err)
	}

	return id, nil
}

// ListDecisionsBetween returns decisions within [from, to), oldest first.
func (s *Store) ListDecisionsBetween(ctx context.Context, from, to time.Time) ([]DecisionRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listDecisionsBetweenSQL, from, to)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	return scanDecisions(rows)
}

// ListRecentDecisions returns the latest decisions, newest first.
func (s *Store) ListRecentDecisions(ctx context.Context, limit int) ([]DecisionRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listRecentDecisionsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent decisions: %w", err)
	}
	defer rows.Close()

	return scanDecisions(rows)
}

func scanTradeEvents(rows pgx.Rows) ([]TradeEvent, error) {
	var events []TradeEvent
	for rows.Next() {
		var (
			event     TradeEvent
			size      string
			notional  string
			entry     string
			exit      *string
			realized  string
			scanError error
		)

		scanError = rows.Scan(
			&event.ID,
			&event.TradeID,
			&event.Symbol,
			&event.Side,
			&size,
			&notional,
			&entry,
			&exit,
			&event.Status,
			&realized,
			&event.DecisionRef,
			&event.OccurredAt,
			&event.CreatedAt,
		)
		if scanError != nil {
			return nil, fmt.Errorf("scan trade event: %w", scanError)
		}

		if event.Size, scanError = decimal.NewFromString(size); scanError != nil {
			return nil, fmt.Errorf("parse size: %w", scanError)
		}
		if event.Notional, scanError = decimal.NewFromString(notional); scanError != nil {
			return nil, fmt.Errorf("parse notional: %w", scanError)
		}
		if event.EntryPrice, scanError = decimal.NewFromString(entry); scanError != nil {
			return nil, fmt.Errorf("parse entry price: %w", scanError)
		}
		if exit != nil {
			parsed, err := decimal.NewFromString(*exit)
			if err != nil {
				return nil, fmt.Errorf("parse exit price: %w", err)
			}
			event.ExitPrice = &parsed
		}
		if event.RealizedPnL, scanError = decimal.NewFromString(realized); scanError != nil {
			return nil, fmt.Errorf("parse realized pnl: %w", scanError)
		}

		events = append(events, event)
	}

	return events, rows.Err()
}

func scanDecisions(rows pgx.Rows) ([]DecisionRecord, error) {
	var records []DecisionRecord
	for rows.Next() {
		var (
			record     DecisionRecord
			confidence string
		)

		if err := rows.Scan(
			&record.ID,
			&record.Symbol,
			&record.Side,
			&confidence,
			&record.Unavailable,
			&record.Reason,
			&record.Signals,
			&record.GeneratedAt,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}

		parsed, err := decimal.NewFromString(confidence)
		if err != nil {
			return nil, fmt.Errorf("parse confidence: %w", err)
		}
		record.Confidence = parsed

		records = append(records, record)
	}

	return records, rows.Err()
}

var _ TradeStore = (*Store)(nil)
var _ DecisionStore = (*Store)(nil)
