package app

import (
	"context"
	"fmt"

	"ensemble-trader/internal/filter"
	"ensemble-trader/internal/market"
	"ensemble-trader/internal/quota"
)

// SignalOptions select one on-demand signal request.
type SignalOptions struct {
	Symbol   string
	Category string
	User     string
	// AdsWatched converts into bonus signals before the quota check, capped
	// by quota.max_bonus_ads.
	AdsWatched int
}

// SignalResult is the structured outcome of a signal request. Quota
// exhaustion and downgraded decisions are normal results, not errors.
type SignalResult struct {
	Symbol         string
	Quote          market.Quote
	Decision       filter.Filtered
	Quota          quota.Status
	QuotaExhausted bool
}

// GetSignal runs one on-demand evaluation cycle for a symbol after consuming
// a signal from the user's daily quota.
func (a *App) GetSignal(ctx context.Context, opts SignalOptions) (*SignalResult, error) {
	kind, err := market.ParseKind(opts.Category)
	if err != nil {
		return nil, err
	}
	user := resolveUser(opts.User)

	p, err := a.buildPipeline(ctx)
	if err != nil {
		return nil, err
	}
	defer p.close()

	if opts.AdsWatched > 0 {
		ads := opts.AdsWatched
		if ads > a.Config.Quota.MaxBonusAds {
			ads = a.Config.Quota.MaxBonusAds
		}
		p.quota.GrantBonus(user, opts.Category, ads*a.Config.Quota.BonusPerAd)
	}

	if status := p.quota.Remaining(user, opts.Category); status.Exhausted() {
		return &SignalResult{
			Symbol:         opts.Symbol,
			Quota:          status,
			QuotaExhausted: true,
		}, nil
	}

	quote, closes, err := a.snapshot(ctx, p, opts.Symbol, kind)
	if err != nil {
		return nil, err
	}

	// The signal is spent only once market data is in hand; an upstream
	// failure never burns the daily allowance.
	status, ok := p.quota.Consume(user, opts.Category)
	if !ok {
		return &SignalResult{
			Symbol:         opts.Symbol,
			Quota:          status,
			QuotaExhausted: true,
		}, nil
	}

	filtered := p.service.Evaluate(ctx, opts.Symbol, closes)

	return &SignalResult{
		Symbol:   opts.Symbol,
		Quote:    quote,
		Decision: filtered,
		Quota:    status,
	}, nil
}

// DailyQuota reports the user's remaining allowance without consuming it.
func (a *App) DailyQuota(category, user string) quota.Status {
	return a.quota.Remaining(resolveUser(user), category)
}

// snapshot fetches the current quote plus the lookback window the evaluators
// need, with the fresh price appended as the latest close.
func (a *App) snapshot(ctx context.Context, p *pipeline, symbol string, kind market.Kind) (market.Quote, []float64, error) {
	closes, err := p.source.FetchHistory(ctx, symbol, kind, a.Config.Quotes.HistoryWindow)
	if err != nil {
		return market.Quote{}, nil, fmt.Errorf("fetch history: %w", err)
	}

	quote, err := p.source.FetchQuote(ctx, symbol, kind)
	if err != nil {
		return market.Quote{}, nil, fmt.Errorf("fetch quote: %w", err)
	}

	closes = append(closes, quote.Price.InexactFloat64())
	return quote, closes, nil
}

func resolveUser(user string) string {
	if user == "" {
		return "local"
	}
	return user
}
