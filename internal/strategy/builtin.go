package strategy

// DefaultRegistry returns a registry populated with the built-in strategy
// set: parameterised variants of the trend-following, mean-reversion, and
// momentum families. Weights are uniform; callers override them per name
// via SetWeight.
func DefaultRegistry() *Registry {
	reg := NewRegistry()

	type builder func() (string, Evaluator)

	builders := []builder{
		func() (string, Evaluator) { return TrendFollowing(5, 20) },
		func() (string, Evaluator) { return TrendFollowing(9, 21) },
		func() (string, Evaluator) { return TrendFollowing(10, 50) },
		func() (string, Evaluator) { return TrendFollowing(12, 26) },
		func() (string, Evaluator) { return TrendFollowing(20, 100) },
		func() (string, Evaluator) { return TrendFollowing(50, 200) },
		func() (string, Evaluator) { return TrendFollowingEMA(5, 20) },
		func() (string, Evaluator) { return TrendFollowingEMA(9, 21) },
		func() (string, Evaluator) { return TrendFollowingEMA(12, 26) },
		func() (string, Evaluator) { return TrendFollowingEMA(10, 50) },
		func() (string, Evaluator) { return TrendFollowingEMA(20, 100) },
		func() (string, Evaluator) { return MeanReversion(10, 1.5) },
		func() (string, Evaluator) { return MeanReversion(14, 2.0) },
		func() (string, Evaluator) { return MeanReversion(20, 2.0) },
		func() (string, Evaluator) { return MeanReversion(20, 2.5) },
		func() (string, Evaluator) { return MeanReversion(30, 2.0) },
		func() (string, Evaluator) { return Momentum(7) },
		func() (string, Evaluator) { return Momentum(9) },
		func() (string, Evaluator) { return Momentum(14) },
		func() (string, Evaluator) { return Momentum(21) },
		func() (string, Evaluator) { return Momentum(28) },
	}

	for _, b := range builders {
		name, eval := b()
		// Names are generated from distinct parameters; a collision here is a
		// programming error.
		if err := reg.Register(name, 1, eval); err != nil {
			panic(err)
		}
	}

	return reg
}
