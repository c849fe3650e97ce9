package engine

import (
	"github.com/shopspring/decimal"

	"ensemble-trader/internal/risk"
	"ensemble-trader/internal/storage"
	"ensemble-trader/internal/strategy"
)

// Restore preloads trades into the working set from ledger rows, re-reserving
// the risk budget of trades still holding capital. Terminal trades are loaded
// for querying only. Pending trades get their protective prices rebuilt from
// the given profile so they remain executable.
func (e *Engine) Restore(trades []Trade, profile risk.Profile, currency string) {
	for i := range trades {
		trade := trades[i]

		e.mu.Lock()
		if _, exists := e.trades[trade.ID]; exists {
			e.mu.Unlock()
			continue
		}
		e.trades[trade.ID] = &trade
		if trade.Status == StatusPending {
			e.orders[trade.ID] = rebuildOrder(trade, profile, currency)
		}
		e.mu.Unlock()

		if trade.Status == StatusPending || trade.Status == StatusOpen {
			e.riskMgr.Restore(trade.ID, trade.Symbol, trade.Notional, profile)
		}
	}
}

// LatestTrades folds an append-only ledger into the most recent state of each
// trade. Rows must be ordered newest first, as ListRecentTradeEvents returns
// them.
func LatestTrades(events []storage.TradeEvent) []Trade {
	seen := make(map[string]bool, len(events))
	var trades []Trade
	for _, event := range events {
		if seen[event.TradeID] {
			continue
		}
		seen[event.TradeID] = true
		trades = append(trades, tradeFromEvent(event))
	}
	return trades
}

func tradeFromEvent(event storage.TradeEvent) Trade {
	trade := Trade{
		ID:          event.TradeID,
		Symbol:      event.Symbol,
		Side:        strategy.Side(event.Side),
		Size:        event.Size,
		Notional:    event.Notional,
		EntryPrice:  event.EntryPrice,
		Status:      Status(event.Status),
		OpenedAt:    event.OccurredAt,
		RealizedPnL: event.RealizedPnL,
		DecisionRef: event.DecisionRef,
	}
	if event.ExitPrice != nil {
		exit := *event.ExitPrice
		trade.ExitPrice = &exit
		closedAt := event.OccurredAt
		trade.ClosedAt = &closedAt
	}
	return trade
}

func rebuildOrder(trade Trade, profile risk.Profile, currency string) risk.SizedOrder {
	stopLoss, takeProfit := risk.ProtectivePrices(trade.Side, trade.EntryPrice, profile)
	stopFraction := decimal.NewFromFloat(profile.StopLossPercent).Div(decimal.NewFromInt(100))

	return risk.SizedOrder{
		Symbol:          trade.Symbol,
		Side:            trade.Side,
		Size:            trade.Notional,
		EntryPrice:      trade.EntryPrice,
		StopLossPrice:   stopLoss,
		TakeProfitPrice: takeProfit,
		Currency:        currency,
		Tier:            profile.Tier,
		RiskAmount:      trade.Notional.Mul(stopFraction),
		DecisionRef:     trade.DecisionRef,
	}
}
