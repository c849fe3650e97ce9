package filter

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"ensemble-trader/internal/ensemble"
	"ensemble-trader/internal/strategy"
)

// Downgrade reasons carried on a Filtered decision.
const (
	ReasonNoConsensus       = "no consensus"
	ReasonLowConfidence     = "confidence below threshold"
	ReasonOracleVeto        = "oracle veto"
	ReasonOracleUnavailable = "oracle unavailable"
)

// Filtered wraps a decision with the quality gate's verdict. A downgraded
// decision keeps its original signals so callers can surface an alternative
// instead of an error.
type Filtered struct {
	ensemble.Decision
	Unavailable      bool
	Reason           string
	OracleConfidence float64
}

// Actionable reports whether the decision survived both gates with a
// directional side.
func (f Filtered) Actionable() bool {
	return !f.Unavailable && f.Side != strategy.Hold
}

// Options tune the quality filter.
type Options struct {
	// ConfidenceThreshold is the minimum aggregate confidence for a
	// directional decision to proceed to the oracle gate.
	ConfidenceThreshold float64
	// OracleTimeout bounds each oracle call.
	OracleTimeout time.Duration
}

// Filter applies the numeric confidence gate and the categorical oracle gate
// in sequence. Both gates fail closed: any doubt downgrades to hold.
type Filter struct {
	oracle Oracle
	opts   Options
	logger zerolog.Logger
}

// New constructs the quality filter. A nil oracle disables the second gate.
func New(oracle Oracle, opts Options, logger zerolog.Logger) *Filter {
	if opts.ConfidenceThreshold <= 0 {
		opts.ConfidenceThreshold = 0.5
	}
	if opts.OracleTimeout <= 0 {
		opts.OracleTimeout = 5 * time.Second
	}
	return &Filter{
		oracle: oracle,
		opts:   opts,
		logger: logger.With().Str("component", "quality_filter").Logger(),
	}
}

// Apply gates a consensus decision. The result is never an error: a rejected
// decision is downgraded to hold and flagged unavailable.
func (f *Filter) Apply(ctx context.Context, decision ensemble.Decision) Filtered {
	if decision.Side == strategy.Hold {
		return f.downgrade(decision, ReasonNoConsensus)
	}

	if decision.Confidence < f.opts.ConfidenceThreshold {
		f.logger.Debug().
			Str("symbol", decision.Symbol).
			Float64("confidence", decision.Confidence).
			Float64("threshold", f.opts.ConfidenceThreshold).
			Msg("decision below confidence threshold")
		return f.downgrade(decision, ReasonLowConfidence)
	}

	if f.oracle == nil {
		return Filtered{Decision: decision}
	}

	oracleCtx, cancel := context.WithTimeout(ctx, f.opts.OracleTimeout)
	defer cancel()

	score, err := f.oracle.Score(oracleCtx, decision.Symbol, decision)
	if err != nil {
		// Hard safety invariant: an unreachable oracle never fails open into
		// a directional trade.
		f.logger.Warn().Str("symbol", decision.Symbol).Err(err).Msg("oracle call failed, failing closed")
		return f.downgrade(decision, ReasonOracleUnavailable)
	}
	if !score.Approve {
		f.logger.Info().
			Str("symbol", decision.Symbol).
			Float64("oracle_confidence", score.Confidence).
			Msg("oracle vetoed decision")
		out := f.downgrade(decision, ReasonOracleVeto)
		out.OracleConfidence = score.Confidence
		return out
	}

	return Filtered{Decision: decision, OracleConfidence: score.Confidence}
}

func (f *Filter) downgrade(decision ensemble.Decision, reason string) Filtered {
	decision.Side = strategy.Hold
	return Filtered{Decision: decision, Unavailable: true, Reason: reason}
}
