package ensemble

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"ensemble-trader/internal/strategy"
)

// Contribution records one strategy's input to a decision.
type Contribution struct {
	Signal strategy.Signal
	Weight float64
}

// Decision is the immutable consensus for one evaluation cycle.
type Decision struct {
	// ID is the decision-history row id, assigned on persistence; zero for
	// decisions that were never recorded.
	ID          int64
	Symbol      string
	Side        strategy.Side
	Confidence  float64
	Signals     []Contribution
	GeneratedAt time.Time
}

// Ref is the decision's ledger reference, empty when unrecorded.
func (d Decision) Ref() string {
	if d.ID == 0 {
		return ""
	}
	return strconv.FormatInt(d.ID, 10)
}

// Options tune aggregation behaviour.
type Options struct {
	// EvaluatorTimeout bounds each individual evaluator call. A timed-out
	// evaluator is excluded from the cycle; the cycle itself still completes.
	EvaluatorTimeout time.Duration
}

// Aggregator fans the same series snapshot out to every active strategy and
// folds the results into a weighted consensus.
type Aggregator struct {
	registry *strategy.Registry
	opts     Options
	logger   zerolog.Logger
	clock    func() time.Time
}

// New constructs an Aggregator over a registry.
func New(registry *strategy.Registry, opts Options, logger zerolog.Logger) *Aggregator {
	if opts.EvaluatorTimeout <= 0 {
		opts.EvaluatorTimeout = 2 * time.Second
	}
	return &Aggregator{
		registry: registry,
		opts:     opts,
		logger:   logger.With().Str("component", "ensemble").Logger(),
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the decision timestamp source. Intended for tests.
func (a *Aggregator) WithClock(clock func() time.Time) *Aggregator {
	a.clock = clock
	return a
}

var errEvaluatorTimeout = errors.New("evaluator timed out")

type evalOutcome struct {
	index  int
	signal strategy.Signal
	err    error
}

// Aggregate dispatches every active evaluator concurrently against the same
// closes snapshot and computes the consensus. It returns only after every
// dispatched evaluator has produced a result or been individually timed out;
// failed evaluators are excluded from the consensus, never aborting the
// cycle.
func (a *Aggregator) Aggregate(ctx context.Context, symbol string, closes []float64) Decision {
	defs := a.registry.Active()

	results := make(chan evalOutcome, len(defs))
	for i, def := range defs {
		go a.dispatch(ctx, i, def, closes, results)
	}

	collected := make([]*strategy.Signal, len(defs))
	for range defs {
		out := <-results
		if out.err != nil {
			a.logger.Warn().
				Str("symbol", symbol).
				Str("strategy", defs[out.index].Name).
				Err(out.err).
				Msg("evaluator excluded from cycle")
			continue
		}
		sig := out.signal
		collected[out.index] = &sig
	}

	return a.consensus(symbol, defs, collected)
}

// dispatch runs one evaluator with panic isolation and a per-call timeout.
// The inner goroutine may outlive the timeout; its late result is discarded.
func (a *Aggregator) dispatch(ctx context.Context, index int, def strategy.Definition, closes []float64, results chan<- evalOutcome) {
	done := make(chan evalOutcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- evalOutcome{index: index, err: fmt.Errorf("evaluator panic: %v", r)}
			}
		}()
		sig := def.Evaluate(closes)
		done <- evalOutcome{index: index, signal: sig, err: validateSignal(sig)}
	}()

	timer := time.NewTimer(a.opts.EvaluatorTimeout)
	defer timer.Stop()

	select {
	case out := <-done:
		results <- out
	case <-timer.C:
		results <- evalOutcome{index: index, err: errEvaluatorTimeout}
	case <-ctx.Done():
		results <- evalOutcome{index: index, err: ctx.Err()}
	}
}

func validateSignal(sig strategy.Signal) error {
	if !sig.Side.Valid() {
		return fmt.Errorf("invalid side %q", sig.Side)
	}
	if sig.Strength < 0 || sig.Strength > 1 {
		return fmt.Errorf("strength %f out of range", sig.Strength)
	}
	return nil
}

// consensus folds surviving signals into the weighted decision. The weight of
// each signal is its configured strategy weight times its strength; the
// aggregate confidence is |weighted directional sum| divided by the total
// configured weight of surviving signals, which keeps it within [0,1].
func (a *Aggregator) consensus(symbol string, defs []strategy.Definition, signals []*strategy.Signal) Decision {
	decision := Decision{
		Symbol:      symbol,
		Side:        strategy.Hold,
		GeneratedAt: a.clock(),
	}

	var weightedSum, totalWeight float64
	for i, sig := range signals {
		if sig == nil {
			continue
		}
		def := defs[i]

		// The registered name is authoritative over whatever the evaluator
		// stamped on the signal.
		contribution := *sig
		contribution.Strategy = def.Name

		decision.Signals = append(decision.Signals, Contribution{
			Signal: contribution,
			Weight: def.Weight,
		})

		weightedSum += sig.Side.Direction() * def.Weight * sig.Strength
		totalWeight += def.Weight
	}

	if totalWeight == 0 {
		return decision
	}

	confidence := weightedSum / totalWeight
	switch {
	case confidence > 0:
		decision.Side = strategy.Buy
		decision.Confidence = confidence
	case confidence < 0:
		decision.Side = strategy.Sell
		decision.Confidence = -confidence
	default:
		decision.Side = strategy.Hold
		decision.Confidence = 0
	}

	if decision.Confidence > 1 {
		decision.Confidence = 1
	}

	return decision
}
