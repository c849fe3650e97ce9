package engine

import (
	"github.com/shopspring/decimal"

	"ensemble-trader/internal/risk"
)

// SimulationResult carries the expected-outcome metrics for a sized order
// without committing any capital.
type SimulationResult struct {
	Order risk.SizedOrder
	// ExpectedProfitPct / ExpectedLossPct bound the outcome per the profile's
	// take-profit and stop-loss percentages.
	ExpectedProfitPct float64
	ExpectedLossPct   float64
	// RiskReward is expected profit over stop-loss percent.
	RiskReward float64
	// WinProbability is estimated from the filtered decision's confidence.
	WinProbability float64
	// ExpectedValuePct is the probability-weighted outcome in percent of
	// notional; ExpectedValue is the same in account currency.
	ExpectedValuePct float64
	ExpectedValue    decimal.Decimal
}

// Simulate computes expected-outcome metrics for an order. It is pure: no
// account state, no ledger entry, no broker call, and identical inputs yield
// identical results no matter how often it runs.
func Simulate(order risk.SizedOrder, profile risk.Profile) SimulationResult {
	winProb := winProbability(order.Confidence)
	evPct := winProb*profile.TakeProfitPercent - (1-winProb)*profile.StopLossPercent

	riskReward := 0.0
	if profile.StopLossPercent > 0 {
		riskReward = profile.TakeProfitPercent / profile.StopLossPercent
	}

	return SimulationResult{
		Order:             order,
		ExpectedProfitPct: profile.TakeProfitPercent,
		ExpectedLossPct:   profile.StopLossPercent,
		RiskReward:        riskReward,
		WinProbability:    winProb,
		ExpectedValuePct:  evPct,
		ExpectedValue:     order.Size.Mul(decimal.NewFromFloat(evPct)).Div(decimal.NewFromInt(100)),
	}
}

// winProbability maps ensemble confidence onto a win-rate estimate: a coin
// flip at zero confidence, approaching 0.9 at full confidence.
func winProbability(confidence float64) float64 {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return 0.5 + 0.4*confidence
}
