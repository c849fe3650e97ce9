package risk

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ensemble-trader/internal/strategy"
)

func newTestManager(balance float64) *Manager {
	account := NewAccount(decimal.NewFromFloat(balance), "USDT")
	return NewManager(account, Options{HeatCeilingPct: 15}, zerolog.Nop())
}

func buyInput() DecisionInput {
	return DecisionInput{Symbol: "BTCUSDT", Side: strategy.Buy, Confidence: 0.8}
}

func TestSizeLowTierExact(t *testing.T) {
	m := newTestManager(1000)
	profile, ok := m.Profile(TierLow)
	require.True(t, ok)

	order, rejection := m.Size(buyInput(), profile, decimal.NewFromInt(50000))
	require.Nil(t, rejection)

	// balance 1000, effective risk 5% -> riskAmount 50; stop 2.5% -> 2000.
	assert.True(t, order.RiskAmount.Equal(decimal.NewFromInt(50)), "riskAmount = %s", order.RiskAmount)
	assert.True(t, order.Size.Equal(decimal.NewFromInt(2000)), "size = %s", order.Size)
}

func TestSizeMediumTierExact(t *testing.T) {
	m := newTestManager(1000)
	profile, ok := m.Profile(TierMedium)
	require.True(t, ok)

	order, rejection := m.Size(buyInput(), profile, decimal.NewFromInt(50000))
	require.Nil(t, rejection)

	// effective risk 6% -> riskAmount 60; stop 6.5% -> 60/0.065.
	assert.True(t, order.RiskAmount.Equal(decimal.NewFromInt(60)), "riskAmount = %s", order.RiskAmount)
	expected := decimal.NewFromInt(60).Div(decimal.RequireFromString("0.065"))
	assert.True(t, order.Size.Sub(expected).Abs().LessThan(decimal.RequireFromString("0.01")),
		"size = %s, expected ~%s", order.Size, expected.StringFixed(2))
}

func TestSizeRejectsHoldAndUnavailable(t *testing.T) {
	m := newTestManager(1000)
	profile, _ := m.Profile(TierLow)

	_, rejection := m.Size(DecisionInput{Symbol: "BTCUSDT", Side: strategy.Hold}, profile, decimal.NewFromInt(100))
	require.NotNil(t, rejection)
	assert.Equal(t, ReasonNotActionable, rejection.Reason)

	_, rejection = m.Size(DecisionInput{Symbol: "BTCUSDT", Side: strategy.Buy, Unavailable: true}, profile, decimal.NewFromInt(100))
	require.NotNil(t, rejection)
	assert.Equal(t, ReasonNotActionable, rejection.Reason)
}

func TestProtectivePriceSides(t *testing.T) {
	entry := decimal.NewFromInt(100)
	for _, tier := range []Tier{TierLow, TierMedium, TierHigh} {
		profile := DefaultProfiles()[tier]

		stop, take := ProtectivePrices(strategy.Buy, entry, profile)
		assert.True(t, stop.LessThan(entry), "%s buy stop must be below entry", tier)
		assert.True(t, take.GreaterThan(entry), "%s buy take must be above entry", tier)

		stop, take = ProtectivePrices(strategy.Sell, entry, profile)
		assert.True(t, stop.GreaterThan(entry), "%s sell stop must be above entry", tier)
		assert.True(t, take.LessThan(entry), "%s sell take must be below entry", tier)
	}
}

func TestSizeAllocationExceeded(t *testing.T) {
	m := newTestManager(1000)
	profile, _ := m.Profile(TierLow)

	// Fill the allocation budget (250% of balance = 2500 notional) with an
	// existing position carrying negligible heat.
	m.Account().Restore(Position{
		TradeID:    "t1",
		Symbol:     "ETHUSDT",
		Notional:   decimal.NewFromInt(2400),
		RiskAmount: decimal.NewFromInt(1),
	})

	_, rejection := m.Size(buyInput(), profile, decimal.NewFromInt(50000))
	require.NotNil(t, rejection)
	assert.Equal(t, ReasonAllocationExceeded, rejection.Reason)
}

func TestSizeHeatExceeded(t *testing.T) {
	m := newTestManager(1000)
	profile, _ := m.Profile(TierLow)

	// Heat ceiling is 15% of balance = 150. Existing at-risk 120 plus a new
	// 50 breaches it while notional stays inside the allocation budget.
	m.Account().Restore(Position{
		TradeID:    "t1",
		Symbol:     "ETHUSDT",
		Notional:   decimal.NewFromInt(100),
		RiskAmount: decimal.NewFromInt(120),
	})

	_, rejection := m.Size(buyInput(), profile, decimal.NewFromInt(50000))
	require.NotNil(t, rejection)
	assert.Equal(t, ReasonHeatExceeded, rejection.Reason)
}

func TestReserveAndReleaseAppliesPnL(t *testing.T) {
	m := newTestManager(1000)
	profile, _ := m.Profile(TierLow)

	order, rejection := m.Size(buyInput(), profile, decimal.NewFromInt(50000))
	require.Nil(t, rejection)

	require.Nil(t, m.Reserve(order, "trade-1"))

	// Double reservation for the same trade must be refused.
	dup := m.Reserve(order, "trade-1")
	require.NotNil(t, dup)
	assert.Equal(t, ReasonDuplicate, dup.Reason)

	m.Release("trade-1", decimal.NewFromInt(25))
	assert.True(t, m.Account().Balance().Equal(decimal.NewFromInt(1025)),
		"balance = %s", m.Account().Balance())

	_, notional, atRisk := m.Account().Exposure()
	assert.True(t, notional.IsZero())
	assert.True(t, atRisk.IsZero())
}

func TestRestoreRecoversRiskAmount(t *testing.T) {
	m := newTestManager(1000)
	profile, _ := m.Profile(TierLow)

	m.Restore("trade-1", "BTCUSDT", decimal.NewFromInt(2000), profile)

	_, notional, atRisk := m.Account().Exposure()
	assert.True(t, notional.Equal(decimal.NewFromInt(2000)))
	// 2000 x 2.5% stop = the original 50 at risk.
	assert.True(t, atRisk.Equal(decimal.NewFromInt(50)), "atRisk = %s", atRisk)
}

func TestParseTier(t *testing.T) {
	for _, s := range []string{"low", "medium", "high"} {
		if _, err := ParseTier(s); err != nil {
			t.Fatalf("ParseTier(%q) should succeed: %v", s, err)
		}
	}
	if _, err := ParseTier("extreme"); err == nil {
		t.Fatal("unknown tier should fail")
	}
}
