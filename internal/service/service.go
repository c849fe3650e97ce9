package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ensemble-trader/internal/config"
	"ensemble-trader/internal/engine"
	"ensemble-trader/internal/ensemble"
	"ensemble-trader/internal/filter"
	"ensemble-trader/internal/market"
	"ensemble-trader/internal/notify"
	"ensemble-trader/internal/risk"
	"ensemble-trader/internal/storage"
)

// Service runs the decision pipeline for one evaluation cycle: consensus,
// quality gate, audit record, then the mode-dependent trade action. It is the
// glue between the poller's data plane and the engine's capital plane.
type Service struct {
	mode      string
	tier      risk.Tier
	agg       *ensemble.Aggregator
	filter    *filter.Filter
	riskMgr   *risk.Manager
	engine    *engine.Engine
	decisions storage.DecisionStore
	events    notify.Sink
	logger    zerolog.Logger
}

// New constructs the pipeline service.
func New(cfg *config.Config, agg *ensemble.Aggregator, fil *filter.Filter, riskMgr *risk.Manager, eng *engine.Engine, decisions storage.DecisionStore, events notify.Sink, logger zerolog.Logger) (*Service, error) {
	tier, err := risk.ParseTier(cfg.Risk.Tier)
	if err != nil {
		return nil, err
	}

	return &Service{
		mode:      cfg.Trading.Mode,
		tier:      tier,
		agg:       agg,
		filter:    fil,
		riskMgr:   riskMgr,
		engine:    eng,
		decisions: decisions,
		events:    events,
		logger:    logger.With().Str("component", "service").Logger(),
	}, nil
}

// Tier returns the configured risk tier.
func (s *Service) Tier() risk.Tier {
	return s.tier
}

// Cycle processes one fresh quote. It is the poller's per-symbol callback;
// cycles for a symbol arrive serially.
func (s *Service) Cycle(ctx context.Context, quote market.Quote, closes []float64) {
	filtered := s.Evaluate(ctx, quote.Symbol, closes)

	if ctx.Err() != nil {
		// A cancelled cycle's result is discarded, not acted on.
		return
	}

	s.logger.Info().
		Str("symbol", filtered.Symbol).
		Str("side", string(filtered.Side)).
		Float64("confidence", filtered.Confidence).
		Bool("unavailable", filtered.Unavailable).
		Str("mode", s.mode).
		Msg("cycle decision")

	if !filtered.Actionable() {
		return
	}

	s.announce(ctx, filtered)

	switch s.mode {
	case config.ModeObserve:
	case config.ModeSimulate:
		s.simulate(filtered, quote.Price)
	case config.ModeLive:
		s.execute(ctx, filtered, quote.Price)
	}
}

// Evaluate runs consensus plus the quality gate for one symbol and records
// the outcome in the decision history. Every evaluation is recorded, gated or
// not, so the audit trail shows what the ensemble produced, not only what
// traded.
func (s *Service) Evaluate(ctx context.Context, symbol string, closes []float64) filter.Filtered {
	decision := s.agg.Aggregate(ctx, symbol, closes)
	filtered := s.filter.Apply(ctx, decision)
	filtered.Decision = s.recordDecision(ctx, filtered)
	return filtered
}

// Size converts a filtered decision into a sized order at the given price
// using the configured tier.
func (s *Service) Size(filtered filter.Filtered, price decimal.Decimal) (risk.SizedOrder, *risk.Rejection) {
	profile, ok := s.riskMgr.Profile(s.tier)
	if !ok {
		return risk.SizedOrder{}, &risk.Rejection{
			Reason: risk.ReasonNotActionable,
			Detail: "unknown tier " + string(s.tier),
		}
	}

	return s.riskMgr.Size(risk.DecisionInput{
		Symbol:      filtered.Symbol,
		Side:        filtered.Side,
		Confidence:  filtered.Confidence,
		Unavailable: filtered.Unavailable,
		Ref:         filtered.Ref(),
	}, profile, price)
}

func (s *Service) simulate(filtered filter.Filtered, price decimal.Decimal) {
	order, rejection := s.Size(filtered, price)
	if rejection != nil {
		s.logger.Info().
			Str("symbol", filtered.Symbol).
			Str("reason", rejection.Reason).
			Msg("simulation skipped, sizing rejected")
		return
	}

	profile, _ := s.riskMgr.Profile(s.tier)
	result := engine.Simulate(order, profile)
	s.logger.Info().
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Str("notional", order.Size.String()).
		Float64("win_probability", result.WinProbability).
		Str("expected_value", result.ExpectedValue.String()).
		Msg("simulated trade")
}

func (s *Service) execute(ctx context.Context, filtered filter.Filtered, price decimal.Decimal) {
	order, rejection := s.Size(filtered, price)
	if rejection != nil {
		s.logger.Info().
			Str("symbol", filtered.Symbol).
			Str("reason", rejection.Reason).
			Msg("execution skipped, sizing rejected")
		return
	}

	trade, rejection, err := s.engine.ExecuteOrder(ctx, order)
	if err != nil {
		s.logger.Error().Str("symbol", order.Symbol).Err(err).Msg("execution failed")
		return
	}
	if rejection != nil {
		s.logger.Info().
			Str("symbol", order.Symbol).
			Str("reason", rejection.Reason).
			Msg("execution rejected by risk reservation")
		return
	}

	s.logger.Info().
		Str("trade_id", trade.ID).
		Str("symbol", trade.Symbol).
		Str("entry_price", trade.EntryPrice.String()).
		Msg("live trade opened")
}

// recordDecision appends the decision to the audit history. Persistence
// failure is logged, never propagated; the returned decision carries the
// assigned history id when one exists.
func (s *Service) recordDecision(ctx context.Context, filtered filter.Filtered) ensemble.Decision {
	decision := filtered.Decision
	if s.decisions == nil {
		return decision
	}

	signals, err := json.Marshal(contributionRows(decision.Signals))
	if err != nil {
		s.logger.Error().Str("symbol", decision.Symbol).Err(err).Msg("failed to encode decision signals")
		signals = []byte("[]")
	}

	id, err := s.decisions.AppendDecision(ctx, storage.DecisionRecord{
		Symbol:      decision.Symbol,
		Side:        string(decision.Side),
		Confidence:  decimal.NewFromFloat(decision.Confidence),
		Unavailable: filtered.Unavailable,
		Reason:      filtered.Reason,
		Signals:     signals,
		GeneratedAt: decision.GeneratedAt,
	})
	if err != nil {
		s.logger.Error().Str("symbol", decision.Symbol).Err(err).Msg("failed to append decision record")
		return decision
	}

	decision.ID = id
	return decision
}

// announce offers an actionable decision to the notification sinks. Delivery
// failure never affects the pipeline.
func (s *Service) announce(ctx context.Context, filtered filter.Filtered) {
	if s.events == nil {
		return
	}

	err := s.events.Offer(ctx, notify.Event{
		Type:   notify.EventDecision,
		Symbol: filtered.Symbol,
		Payload: map[string]string{
			"side":       string(filtered.Side),
			"confidence": strconv.FormatFloat(filtered.Confidence, 'f', 4, 64),
			"signals":    fmt.Sprintf("%d", len(filtered.Signals)),
		},
		Timestamp: filtered.GeneratedAt,
	})
	if err != nil {
		s.logger.Error().Str("symbol", filtered.Symbol).Err(err).Msg("failed to offer decision event")
	}
}

type contributionRow struct {
	Strategy string  `json:"strategy"`
	Side     string  `json:"side"`
	Strength float64 `json:"strength"`
	Weight   float64 `json:"weight"`
}

func contributionRows(signals []ensemble.Contribution) []contributionRow {
	rows := make([]contributionRow, 0, len(signals))
	for _, c := range signals {
		rows = append(rows, contributionRow{
			Strategy: c.Signal.Strategy,
			Side:     string(c.Signal.Side),
			Strength: c.Signal.Strength,
			Weight:   c.Weight,
		})
	}
	return rows
}
