package strategy

import (
	"fmt"

	"github.com/markcheno/go-talib"
)

const (
	rsiOversold   = 30.0
	rsiOverbought = 70.0
)

// Momentum builds an RSI threshold evaluator and returns its canonical name.
// RSI below 30 buys, above 70 sells, with strength scaled by the distance
// from the neutral zone. Between the bands the evaluator holds.
func Momentum(period int) (string, Evaluator) {
	name := fmt.Sprintf("momentum_rsi_%d", period)

	eval := func(closes []float64) Signal {
		// talib needs one extra close to produce the first RSI value.
		if len(closes) < period+1 {
			return hold(name)
		}

		rsi := talib.Rsi(closes, period)
		lastRSI := rsi[len(rsi)-1]
		metrics := map[string]float64{"rsi": lastRSI}

		switch {
		case lastRSI < rsiOversold:
			strength := clamp01((rsiOversold - lastRSI) / rsiOversold)
			return Signal{Strategy: name, Side: Buy, Strength: strength, Metrics: metrics}
		case lastRSI > rsiOverbought:
			strength := clamp01((lastRSI - rsiOverbought) / (100 - rsiOverbought))
			return Signal{Strategy: name, Side: Sell, Strength: strength, Metrics: metrics}
		default:
			return Signal{Strategy: name, Side: Hold, Strength: 0, Metrics: metrics}
		}
	}

	return name, eval
}
