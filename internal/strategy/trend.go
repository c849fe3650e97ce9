package strategy

import (
	"fmt"

	"github.com/markcheno/go-talib"
)

// TrendFollowing builds a fast/slow moving-average crossover evaluator and
// returns its canonical name. Buy when the fast average is above the slow
// one, sell when below; strength is the normalised separation
// |fast-slow|/slow. With fewer closes than the slow lookback the evaluator
// holds.
func TrendFollowing(fast, slow int) (string, Evaluator) {
	name := fmt.Sprintf("trend_sma_%d_%d", fast, slow)
	return name, maCrossover(name, fast, slow, talib.Sma)
}

// TrendFollowingEMA is the exponential-average variant of TrendFollowing.
func TrendFollowingEMA(fast, slow int) (string, Evaluator) {
	name := fmt.Sprintf("trend_ema_%d_%d", fast, slow)
	return name, maCrossover(name, fast, slow, talib.Ema)
}

func maCrossover(name string, fast, slow int, ma func([]float64, int) []float64) Evaluator {
	return func(closes []float64) Signal {
		if len(closes) < slow {
			return hold(name)
		}

		fastLine := ma(closes, fast)
		slowLine := ma(closes, slow)
		fastVal := fastLine[len(fastLine)-1]
		slowVal := slowLine[len(slowLine)-1]
		if slowVal == 0 {
			return hold(name)
		}

		metrics := map[string]float64{"fast": fastVal, "slow": slowVal}
		strength := clamp01(abs(fastVal-slowVal) / slowVal)

		side := Sell
		if fastVal > slowVal {
			side = Buy
		} else if fastVal == slowVal {
			return Signal{Strategy: name, Side: Hold, Strength: 0, Metrics: metrics}
		}

		return Signal{Strategy: name, Side: side, Strength: strength, Metrics: metrics}
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
