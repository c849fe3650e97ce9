package risk

import "fmt"

// Tier names a risk appetite.
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// ParseTier validates a tier string.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierLow, TierMedium, TierHigh:
		return Tier(s), nil
	}
	return "", fmt.Errorf("risk: unknown tier %q", s)
}

// Profile is the immutable configuration of one risk tier.
//
// RiskPercent scaled by Multiplier gives the fraction of the account balance
// put at risk per trade. MaxVolatileAllocationPct caps aggregate open
// notional as a percent of balance; positions are leveraged (notional =
// riskAmount / stop-loss fraction), so the caps exceed 100.
type Profile struct {
	Tier                     Tier
	Multiplier               float64
	RiskPercent              float64
	StopLossPercent          float64
	TakeProfitPercent        float64
	MaxVolatileAllocationPct float64
}

// EffectiveRiskPercent is the multiplier-scaled percent of balance risked
// per trade.
func (p Profile) EffectiveRiskPercent() float64 {
	return p.RiskPercent * p.Multiplier
}

// DefaultProfiles returns the built-in low/medium/high tiers.
func DefaultProfiles() map[Tier]Profile {
	return map[Tier]Profile{
		TierLow: {
			Tier:                     TierLow,
			Multiplier:               1.0,
			RiskPercent:              5,
			StopLossPercent:          2.5,
			TakeProfitPercent:        5,
			MaxVolatileAllocationPct: 250,
		},
		TierMedium: {
			Tier:                     TierMedium,
			Multiplier:               1.2,
			RiskPercent:              5,
			StopLossPercent:          6.5,
			TakeProfitPercent:        13,
			MaxVolatileAllocationPct: 400,
		},
		TierHigh: {
			Tier:                     TierHigh,
			Multiplier:               1.6,
			RiskPercent:              5,
			StopLossPercent:          10,
			TakeProfitPercent:        20,
			MaxVolatileAllocationPct: 600,
		},
	}
}
