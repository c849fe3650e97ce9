package risk

import (
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ensemble-trader/internal/strategy"
)

// Rejection reasons. Rejections are ordinary outcomes callers branch on,
// never errors.
const (
	ReasonNotActionable      = "not_actionable"
	ReasonAllocationExceeded = "allocation_exceeded"
	ReasonHeatExceeded       = "heat_exceeded"
	ReasonDuplicate          = "duplicate_reservation"
)

// Rejection explains why sizing or reservation refused an order.
type Rejection struct {
	Reason string
	Detail string
}

// DecisionInput is the slice of a filtered decision the risk manager needs.
type DecisionInput struct {
	Symbol      string
	Side        strategy.Side
	Confidence  float64
	Unavailable bool
	Ref         string
}

// SizedOrder is a decision converted into a concrete position with stop-loss
// and take-profit prices, prior to execution.
type SizedOrder struct {
	Symbol          string
	Side            strategy.Side
	Size            decimal.Decimal
	EntryPrice      decimal.Decimal
	StopLossPrice   decimal.Decimal
	TakeProfitPrice decimal.Decimal
	Currency        string
	Tier            Tier
	RiskAmount      decimal.Decimal
	Confidence      float64
	DecisionRef     string
}

// Options tune the risk manager.
type Options struct {
	// HeatCeilingPct caps total at-risk capital across open positions as a
	// percent of balance.
	HeatCeilingPct float64
}

// Manager converts approved decisions into sized orders and enforces the
// portfolio-level exposure limits.
type Manager struct {
	account  *Account
	profiles map[Tier]Profile
	opts     Options
	logger   zerolog.Logger
}

// NewManager constructs a Manager with the built-in tier profiles.
func NewManager(account *Account, opts Options, logger zerolog.Logger) *Manager {
	if opts.HeatCeilingPct <= 0 {
		opts.HeatCeilingPct = 15
	}
	return &Manager{
		account:  account,
		profiles: DefaultProfiles(),
		opts:     opts,
		logger:   logger.With().Str("component", "risk_manager").Logger(),
	}
}

// Account exposes the managed account.
func (m *Manager) Account() *Account {
	return m.account
}

// Profile looks up a tier profile.
func (m *Manager) Profile(tier Tier) (Profile, bool) {
	p, ok := m.profiles[tier]
	return p, ok
}

// Size converts an approved decision into a sized order.
//
// riskAmount = balance x effective risk percent; size is the notional such
// that a move equal to the stop-loss percent loses exactly riskAmount. The
// allocation and heat checks here are advisory; Reserve re-validates them
// atomically before capital is committed.
func (m *Manager) Size(decision DecisionInput, profile Profile, price decimal.Decimal) (SizedOrder, *Rejection) {
	if decision.Unavailable || decision.Side == strategy.Hold {
		return SizedOrder{}, &Rejection{
			Reason: ReasonNotActionable,
			Detail: "decision side is hold or unavailable",
		}
	}

	balance, openNotional, openRisk := m.account.Exposure()

	riskAmount := balance.Mul(decimal.NewFromFloat(profile.EffectiveRiskPercent())).Div(decimal.NewFromInt(100))
	stopFraction := decimal.NewFromFloat(profile.StopLossPercent).Div(decimal.NewFromInt(100))
	size := riskAmount.Div(stopFraction)

	stopLoss, takeProfit := ProtectivePrices(decision.Side, price, profile)

	order := SizedOrder{
		Symbol:          decision.Symbol,
		Side:            decision.Side,
		Size:            size,
		EntryPrice:      price,
		StopLossPrice:   stopLoss,
		TakeProfitPrice: takeProfit,
		Currency:        m.account.Currency(),
		Tier:            profile.Tier,
		RiskAmount:      riskAmount,
		Confidence:      decision.Confidence,
		DecisionRef:     decision.Ref,
	}

	maxNotional := m.maxNotional(balance, profile)
	if openNotional.Add(size).GreaterThan(maxNotional) {
		return SizedOrder{}, &Rejection{
			Reason: ReasonAllocationExceeded,
			Detail: "open notional would exceed volatile allocation budget",
		}
	}

	if openRisk.Add(riskAmount).GreaterThan(m.maxRisk(balance)) {
		return SizedOrder{}, &Rejection{
			Reason: ReasonHeatExceeded,
			Detail: "portfolio heat would exceed configured ceiling",
		}
	}

	return order, nil
}

// Reserve atomically claims the order's risk budget for a trade. Must be
// called before any capital is committed; Release undoes it.
func (m *Manager) Reserve(order SizedOrder, tradeID string) *Rejection {
	profile, ok := m.Profile(order.Tier)
	if !ok {
		return &Rejection{Reason: ReasonNotActionable, Detail: "unknown tier " + string(order.Tier)}
	}

	balance := m.account.Balance()
	return m.account.Reserve(Position{
		TradeID:    tradeID,
		Symbol:     order.Symbol,
		Notional:   order.Size,
		RiskAmount: order.RiskAmount,
	}, m.maxNotional(balance, profile), m.maxRisk(balance))
}

// Restore re-reserves the budget of a trade resumed from the ledger. The
// risk amount is recovered from the sizing identity: a stop-loss move against
// the full notional loses exactly the amount originally put at risk.
func (m *Manager) Restore(tradeID, symbol string, notional decimal.Decimal, profile Profile) {
	stopFraction := decimal.NewFromFloat(profile.StopLossPercent).Div(decimal.NewFromInt(100))
	m.account.Restore(Position{
		TradeID:    tradeID,
		Symbol:     symbol,
		Notional:   notional,
		RiskAmount: notional.Mul(stopFraction),
	})
}

// Release drops a trade's reservation and applies its realized P&L.
func (m *Manager) Release(tradeID string, realizedPnL decimal.Decimal) {
	m.account.Release(tradeID, realizedPnL)
}

func (m *Manager) maxNotional(balance decimal.Decimal, profile Profile) decimal.Decimal {
	return balance.Mul(decimal.NewFromFloat(profile.MaxVolatileAllocationPct)).Div(decimal.NewFromInt(100))
}

func (m *Manager) maxRisk(balance decimal.Decimal) decimal.Decimal {
	return balance.Mul(decimal.NewFromFloat(m.opts.HeatCeilingPct)).Div(decimal.NewFromInt(100))
}

// ProtectivePrices places the stop on the loss side and the take on the
// profit side of entry for the given direction.
func ProtectivePrices(side strategy.Side, entry decimal.Decimal, profile Profile) (stopLoss, takeProfit decimal.Decimal) {
	one := decimal.NewFromInt(1)
	stopFrac := decimal.NewFromFloat(profile.StopLossPercent).Div(decimal.NewFromInt(100))
	takeFrac := decimal.NewFromFloat(profile.TakeProfitPercent).Div(decimal.NewFromInt(100))

	if side == strategy.Buy {
		return entry.Mul(one.Sub(stopFrac)), entry.Mul(one.Add(takeFrac))
	}
	return entry.Mul(one.Add(stopFrac)), entry.Mul(one.Sub(takeFrac))
}
