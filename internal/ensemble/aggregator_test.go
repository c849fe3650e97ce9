package ensemble

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ensemble-trader/internal/strategy"
)

func fixedEvaluator(name string, side strategy.Side, strength float64) strategy.Evaluator {
	return func(closes []float64) strategy.Signal {
		return strategy.Signal{Strategy: name, Side: side, Strength: strength}
	}
}

func newTestAggregator(t *testing.T, reg *strategy.Registry, opts Options) *Aggregator {
	t.Helper()
	return New(reg, opts, zerolog.Nop())
}

func TestAggregateWeightedConsensus(t *testing.T) {
	reg := strategy.NewRegistry()
	must := func(err error) {
		if err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	must(reg.Register("a", 1, fixedEvaluator("a", strategy.Buy, 0.8)))
	must(reg.Register("b", 1, fixedEvaluator("b", strategy.Buy, 0.6)))
	must(reg.Register("c", 1, fixedEvaluator("c", strategy.Sell, 0.2)))

	agg := newTestAggregator(t, reg, Options{})
	decision := agg.Aggregate(context.Background(), "BTCUSDT", []float64{1, 2, 3})

	if decision.Side != strategy.Buy {
		t.Fatalf("expected buy consensus, got %s", decision.Side)
	}
	// (0.8 + 0.6 - 0.2) / 3 with uniform weights.
	if math.Abs(decision.Confidence-0.4) > 1e-9 {
		t.Fatalf("expected confidence 0.4, got %f", decision.Confidence)
	}
	if len(decision.Signals) != 3 {
		t.Fatalf("all signals should be recorded, got %d", len(decision.Signals))
	}
}

func TestAggregateAllHold(t *testing.T) {
	reg := strategy.NewRegistry()
	_ = reg.Register("a", 1, fixedEvaluator("a", strategy.Hold, 0))
	_ = reg.Register("b", 1, fixedEvaluator("b", strategy.Hold, 0))

	agg := newTestAggregator(t, reg, Options{})
	decision := agg.Aggregate(context.Background(), "BTCUSDT", []float64{1, 2, 3})

	if decision.Side != strategy.Hold {
		t.Fatalf("all-hold ensemble should hold, got %s", decision.Side)
	}
	if decision.Confidence != 0 {
		t.Fatalf("hold consensus should have zero confidence, got %f", decision.Confidence)
	}
}

func TestAggregateEmptyRegistry(t *testing.T) {
	agg := newTestAggregator(t, strategy.NewRegistry(), Options{})
	decision := agg.Aggregate(context.Background(), "BTCUSDT", []float64{1, 2, 3})

	if decision.Side != strategy.Hold || decision.Confidence != 0 {
		t.Fatalf("empty registry should hold at zero confidence, got %s/%f", decision.Side, decision.Confidence)
	}
}

func TestAggregatePanicIsolation(t *testing.T) {
	reg := strategy.NewRegistry()
	_ = reg.Register("panics", 1, func(closes []float64) strategy.Signal {
		panic("boom")
	})
	_ = reg.Register("steady", 1, fixedEvaluator("steady", strategy.Buy, 1))

	agg := newTestAggregator(t, reg, Options{})
	decision := agg.Aggregate(context.Background(), "BTCUSDT", []float64{1, 2, 3})

	if decision.Side != strategy.Buy {
		t.Fatalf("panicking evaluator must not abort the cycle, got %s", decision.Side)
	}
	if len(decision.Signals) != 1 {
		t.Fatalf("panicking evaluator must be excluded, got %d signals", len(decision.Signals))
	}
}

func TestAggregateEvaluatorTimeout(t *testing.T) {
	reg := strategy.NewRegistry()
	_ = reg.Register("slow", 1, func(closes []float64) strategy.Signal {
		time.Sleep(500 * time.Millisecond)
		return strategy.Signal{Strategy: "slow", Side: strategy.Sell, Strength: 1}
	})
	_ = reg.Register("fast", 1, fixedEvaluator("fast", strategy.Buy, 0.9))

	agg := newTestAggregator(t, reg, Options{EvaluatorTimeout: 20 * time.Millisecond})
	decision := agg.Aggregate(context.Background(), "BTCUSDT", []float64{1, 2, 3})

	if decision.Side != strategy.Buy {
		t.Fatalf("timed-out evaluator must be excluded, got %s", decision.Side)
	}
	if len(decision.Signals) != 1 {
		t.Fatalf("expected one surviving signal, got %d", len(decision.Signals))
	}
}

func TestAggregateInvalidSignalExcluded(t *testing.T) {
	reg := strategy.NewRegistry()
	_ = reg.Register("bad", 1, func(closes []float64) strategy.Signal {
		return strategy.Signal{Strategy: "bad", Side: "maybe", Strength: 0.5}
	})
	_ = reg.Register("good", 1, fixedEvaluator("good", strategy.Sell, 0.7))

	agg := newTestAggregator(t, reg, Options{})
	decision := agg.Aggregate(context.Background(), "BTCUSDT", []float64{1, 2, 3})

	if decision.Side != strategy.Sell {
		t.Fatalf("invalid signal must be excluded, got %s", decision.Side)
	}
}

func TestAggregateConfidenceWithinBounds(t *testing.T) {
	reg := strategy.NewRegistry()
	_ = reg.Register("max", 3, fixedEvaluator("max", strategy.Buy, 1))

	agg := newTestAggregator(t, reg, Options{})
	decision := agg.Aggregate(context.Background(), "BTCUSDT", []float64{1, 2, 3})

	if decision.Confidence < 0 || decision.Confidence > 1 {
		t.Fatalf("confidence out of [0,1]: %f", decision.Confidence)
	}
}
