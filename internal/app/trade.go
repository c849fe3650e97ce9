package app

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"ensemble-trader/internal/engine"
	"ensemble-trader/internal/filter"
	"ensemble-trader/internal/market"
	"ensemble-trader/internal/risk"
)

// TradeOptions select the instrument for a simulate/execute request.
type TradeOptions struct {
	Symbol   string
	Category string
}

// TradeOutcome is the structured result of a simulate or execute request.
// Exactly one of Rejection, Simulation, or Trade is populated on success
// paths; a downgraded decision is reported via Decision.Unavailable.
type TradeOutcome struct {
	Decision   filter.Filtered
	Order      *risk.SizedOrder
	Rejection  *risk.Rejection
	Simulation *engine.SimulationResult
	Trade      *engine.Trade
}

// SimulateTrade evaluates a symbol and computes the expected outcome of the
// resulting order without committing capital.
func (a *App) SimulateTrade(ctx context.Context, opts TradeOptions) (*TradeOutcome, error) {
	p, outcome, err := a.prepareOrder(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer p.close()

	if outcome.Order == nil {
		return outcome, nil
	}

	result := engine.Simulate(*outcome.Order, p.profile)
	outcome.Simulation = &result
	return outcome, nil
}

// ExecuteTrade evaluates a symbol, sizes the order, and submits it to the
// broker. Risk rejections and downgraded decisions come back as values.
func (a *App) ExecuteTrade(ctx context.Context, opts TradeOptions) (*TradeOutcome, error) {
	p, outcome, err := a.prepareOrder(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer p.close()

	if outcome.Order == nil {
		return outcome, nil
	}

	if err := a.resumeTrades(ctx, p); err != nil {
		return nil, err
	}

	trade, rejection, err := p.engine.ExecuteOrder(ctx, *outcome.Order)
	if err != nil {
		return nil, err
	}
	if rejection != nil {
		outcome.Rejection = rejection
		return outcome, nil
	}

	outcome.Trade = trade
	return outcome, nil
}

// CloseTrade closes an open trade. With a zero exit price the current market
// price is fetched and used.
func (a *App) CloseTrade(ctx context.Context, tradeID string, exitPrice decimal.Decimal) (*engine.Trade, error) {
	p, err := a.buildPipeline(ctx)
	if err != nil {
		return nil, err
	}
	defer p.close()

	if err := a.resumeTrades(ctx, p); err != nil {
		return nil, err
	}

	if exitPrice.Sign() <= 0 {
		trade, ok := p.engine.Get(tradeID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", engine.ErrTradeNotFound, tradeID)
		}
		quote, err := p.source.FetchQuote(ctx, trade.Symbol, a.marketKind(trade.Symbol))
		if err != nil {
			return nil, fmt.Errorf("fetch exit price: %w", err)
		}
		exitPrice = quote.Price
	}

	return p.engine.Close(ctx, tradeID, exitPrice)
}

// CancelTrade aborts a pending trade.
func (a *App) CancelTrade(ctx context.Context, tradeID string) (*engine.Trade, error) {
	p, err := a.buildPipeline(ctx)
	if err != nil {
		return nil, err
	}
	defer p.close()

	if err := a.resumeTrades(ctx, p); err != nil {
		return nil, err
	}

	return p.engine.Cancel(ctx, tradeID)
}

// prepareOrder runs the evaluate-and-size prefix shared by simulate and
// execute. The returned outcome has Order nil when the decision was
// downgraded or sizing rejected; the pipeline is returned open either way.
func (a *App) prepareOrder(ctx context.Context, opts TradeOptions) (*pipeline, *TradeOutcome, error) {
	kind, err := market.ParseKind(opts.Category)
	if err != nil {
		return nil, nil, err
	}

	p, err := a.buildPipeline(ctx)
	if err != nil {
		return nil, nil, err
	}

	quote, closes, err := a.snapshot(ctx, p, opts.Symbol, kind)
	if err != nil {
		p.close()
		return nil, nil, err
	}

	filtered := p.service.Evaluate(ctx, opts.Symbol, closes)
	outcome := &TradeOutcome{Decision: filtered}

	if !filtered.Actionable() {
		return p, outcome, nil
	}

	order, rejection := p.service.Size(filtered, quote.Price)
	if rejection != nil {
		outcome.Rejection = rejection
		return p, outcome, nil
	}

	outcome.Order = &order
	return p, outcome, nil
}

// marketKind resolves a symbol's configured market, defaulting to crypto for
// symbols not in the watch list.
func (a *App) marketKind(symbol string) market.Kind {
	for _, sym := range a.Config.Trading.Symbols {
		if sym.Symbol == symbol {
			if kind, err := market.ParseKind(sym.Market); err == nil {
				return kind
			}
		}
	}
	return market.KindCrypto
}
