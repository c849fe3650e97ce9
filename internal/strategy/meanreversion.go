package strategy

import (
	"fmt"

	"github.com/markcheno/go-talib"
)

// MeanReversion builds a Bollinger-band distance evaluator and returns its
// canonical name. A close above the upper band sells, below the lower band
// buys, with strength proportional to how far the price penetrates the band
// relative to the band width. Inside the bands the evaluator holds.
func MeanReversion(period int, stdDev float64) (string, Evaluator) {
	name := fmt.Sprintf("meanrev_bb_%d_%.1f", period, stdDev)

	eval := func(closes []float64) Signal {
		if len(closes) < period {
			return hold(name)
		}

		upper, middle, lower := talib.BBands(closes, period, stdDev, stdDev, talib.SMA)
		lastUpper := upper[len(upper)-1]
		lastMiddle := middle[len(middle)-1]
		lastLower := lower[len(lower)-1]
		lastClose := closes[len(closes)-1]

		width := lastUpper - lastLower
		if width <= 0 {
			return hold(name)
		}

		metrics := map[string]float64{
			"upper":  lastUpper,
			"middle": lastMiddle,
			"lower":  lastLower,
		}

		switch {
		case lastClose > lastUpper:
			strength := clamp01((lastClose - lastUpper) / width)
			return Signal{Strategy: name, Side: Sell, Strength: strength, Metrics: metrics}
		case lastClose < lastLower:
			strength := clamp01((lastLower - lastClose) / width)
			return Signal{Strategy: name, Side: Buy, Strength: strength, Metrics: metrics}
		default:
			return Signal{Strategy: name, Side: Hold, Strength: 0, Metrics: metrics}
		}
	}

	return name, eval
}
