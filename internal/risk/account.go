package risk

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Position tracks the capital reserved by one open trade.
type Position struct {
	TradeID    string
	Symbol     string
	Notional   decimal.Decimal
	RiskAmount decimal.Decimal
}

// Account holds the balance and the open-position reservation set. All
// methods are atomic with respect to each other: concurrent sizing and trade
// transitions never both assume the full remaining risk budget.
type Account struct {
	mu        sync.Mutex
	balance   decimal.Decimal
	currency  string
	positions map[string]Position
}

// NewAccount seeds an account with a starting balance.
func NewAccount(balance decimal.Decimal, currency string) *Account {
	return &Account{
		balance:   balance,
		currency:  currency,
		positions: make(map[string]Position),
	}
}

// Balance returns the current balance.
func (a *Account) Balance() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

// Currency returns the account currency.
func (a *Account) Currency() string {
	return a.currency
}

// OpenPositions returns a copy of the reservation set.
func (a *Account) OpenPositions() []Position {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Position, 0, len(a.positions))
	for _, p := range a.positions {
		out = append(out, p)
	}
	return out
}

// Exposure reports the current balance, aggregate open notional, and
// aggregate at-risk amount as one consistent snapshot.
func (a *Account) Exposure() (balance, notional, atRisk decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance, a.totalNotionalLocked(), a.totalRiskLocked()
}

// Reserve atomically re-validates the allocation and heat caps and records
// the position. It returns a Rejection when admitting the position would
// breach either cap.
func (a *Account) Reserve(pos Position, maxNotional, maxRisk decimal.Decimal) *Rejection {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.positions[pos.TradeID]; exists {
		return &Rejection{Reason: ReasonDuplicate, Detail: "position already reserved for trade " + pos.TradeID}
	}

	if a.totalNotionalLocked().Add(pos.Notional).GreaterThan(maxNotional) {
		return &Rejection{
			Reason: ReasonAllocationExceeded,
			Detail: "open notional would exceed volatile allocation budget",
		}
	}

	if a.totalRiskLocked().Add(pos.RiskAmount).GreaterThan(maxRisk) {
		return &Rejection{
			Reason: ReasonHeatExceeded,
			Detail: "portfolio heat would exceed configured ceiling",
		}
	}

	a.positions[pos.TradeID] = pos
	return nil
}

// Restore re-admits a position without cap checks. Used when resuming trades
// that already hold capital; the caps were enforced when they were placed.
func (a *Account) Restore(pos Position) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.positions[pos.TradeID] = pos
}

// Release drops a reservation, applying realized P&L to the balance.
func (a *Account) Release(tradeID string, realizedPnL decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.positions, tradeID)
	a.balance = a.balance.Add(realizedPnL)
}

func (a *Account) totalNotionalLocked() decimal.Decimal {
	total := decimal.Zero
	for _, p := range a.positions {
		total = total.Add(p.Notional)
	}
	return total
}

func (a *Account) totalRiskLocked() decimal.Decimal {
	total := decimal.Zero
	for _, p := range a.positions {
		total = total.Add(p.RiskAmount)
	}
	return total
}
