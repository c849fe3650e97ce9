package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ensemble-trader/internal/config"
	"ensemble-trader/internal/engine"
	"ensemble-trader/internal/ensemble"
	"ensemble-trader/internal/filter"
	"ensemble-trader/internal/market"
	"ensemble-trader/internal/notify"
	"ensemble-trader/internal/poller"
	"ensemble-trader/internal/quota"
	"ensemble-trader/internal/risk"
	"ensemble-trader/internal/service"
	"ensemble-trader/internal/storage"
	"ensemble-trader/internal/strategy"
)

// resumeWindow bounds how many ledger rows are replayed to rebuild the trade
// working set on start-up.
const resumeWindow = 500

// App aggregates configuration and shared dependencies for the CLI commands.
// The quota service lives here, not in the per-command pipeline, so every
// command in the process draws from the same daily allowance.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	quota  *quota.Service
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config: cfg,
		Logger: logger.With().Str("component", "app").Logger(),
		quota:  quota.NewService(cfg.Quota.DailyLimit, nil),
	}
}

// pipeline bundles the wired collaborators one command invocation works with.
type pipeline struct {
	store   *storage.Store
	source  market.Source
	service *service.Service
	engine  *engine.Engine
	riskMgr *risk.Manager
	quota   *quota.Service
	sink    notify.Sink
	profile risk.Profile
	close   func()
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newSource() market.Source {
	return market.NewHTTPSource(market.HTTPSourceOptions{
		BaseURL:       a.Config.Quotes.BaseURL,
		Timeout:       a.Config.Quotes.RequestTimeout,
		RatePerSecond: a.Config.Quotes.RatePerSecond,
		UserAgent:     a.Config.Quotes.UserAgent,
	}, a.Logger)
}

func (a *App) newOracle() filter.Oracle {
	if !a.Config.Filter.Oracle.Enabled {
		return nil
	}
	return filter.NewHTTPOracle(filter.HTTPOracleOptions{
		BaseURL: a.Config.Filter.Oracle.BaseURL,
		Timeout: a.Config.Filter.Oracle.RequestTimeout,
	}, a.Logger)
}

func (a *App) newBroker() engine.Broker {
	if a.Config.Broker.BaseURL == "" {
		return nil
	}
	return engine.NewHTTPBroker(engine.HTTPBrokerOptions{
		BaseURL:     a.Config.Broker.BaseURL,
		Timeout:     a.Config.Broker.RequestTimeout,
		MaxFailures: a.Config.Broker.MaxFailures,
		OpenTimeout: a.Config.Broker.OpenTimeout,
	}, a.Logger)
}

func (a *App) newSink() notify.Sink {
	var sinks []notify.Sink
	if a.Config.Notifications.Telegram.Enabled {
		cfg := a.Config.Notifications.Telegram
		sinks = append(sinks, notify.NewTelegramSink(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger))
	}
	return notify.NewMultiSink(a.Logger, sinks...)
}

func (a *App) newRegistry() (*strategy.Registry, error) {
	registry := strategy.DefaultRegistry()
	for name, weight := range a.Config.Ensemble.Weights {
		if err := registry.SetWeight(name, weight); err != nil {
			return nil, fmt.Errorf("apply ensemble weight: %w", err)
		}
	}
	return registry, nil
}

// buildPipeline wires every collaborator for one command. The caller must
// invoke the returned pipeline's close func.
func (a *App) buildPipeline(ctx context.Context) (*pipeline, error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	cleanup := func() {
		if closeStore != nil {
			closeStore()
		}
	}

	registry, err := a.newRegistry()
	if err != nil {
		cleanup()
		return nil, err
	}

	agg := ensemble.New(registry, ensemble.Options{
		EvaluatorTimeout: a.Config.Ensemble.EvaluatorTimeout,
	}, a.Logger)

	fil := filter.New(a.newOracle(), filter.Options{
		ConfidenceThreshold: a.Config.Filter.ConfidenceThreshold,
		OracleTimeout:       a.Config.Filter.Oracle.RequestTimeout,
	}, a.Logger)

	account := risk.NewAccount(decimal.NewFromFloat(a.Config.Account.Balance), a.Config.Account.Currency)
	riskMgr := risk.NewManager(account, risk.Options{
		HeatCeilingPct: a.Config.Risk.HeatCeilingPct,
	}, a.Logger)

	tier, err := risk.ParseTier(a.Config.Risk.Tier)
	if err != nil {
		cleanup()
		return nil, err
	}
	profile, ok := riskMgr.Profile(tier)
	if !ok {
		cleanup()
		return nil, fmt.Errorf("no profile for tier %s", tier)
	}

	sink := a.newSink()

	var tradeStore storage.TradeStore
	var decisionStore storage.DecisionStore
	if store != nil {
		tradeStore = store
		decisionStore = store
	}

	eng := engine.New(riskMgr, a.newBroker(), sink, tradeStore, a.Logger)

	svc, err := service.New(a.Config, agg, fil, riskMgr, eng, decisionStore, sink, a.Logger)
	if err != nil {
		cleanup()
		return nil, err
	}

	return &pipeline{
		store:   store,
		source:  a.newSource(),
		service: svc,
		engine:  eng,
		riskMgr: riskMgr,
		quota:   a.quota,
		sink:    sink,
		profile: profile,
		close:   cleanup,
	}, nil
}

// resumeTrades reloads the trade working set from the ledger so commands in a
// fresh process can act on trades placed earlier.
func (a *App) resumeTrades(ctx context.Context, p *pipeline) error {
	if p.store == nil {
		return nil
	}

	events, err := p.store.ListRecentTradeEvents(ctx, resumeWindow)
	if err != nil {
		return fmt.Errorf("load trade ledger: %w", err)
	}

	trades := engine.LatestTrades(events)
	p.engine.Restore(trades, p.profile, a.Config.Account.Currency)

	if len(trades) > 0 {
		a.Logger.Debug().Int("trades", len(trades)).Msg("trade working set resumed from ledger")
	}
	return nil
}

// Run starts the polling pipeline for every configured symbol and blocks
// until the context is cancelled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if len(a.Config.Trading.Symbols) == 0 {
		return fmt.Errorf("trading.symbols is empty; nothing to watch")
	}

	p, err := a.buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.close()

	if p.store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if err := a.resumeTrades(ctx, p); err != nil {
		return err
	}

	watch := poller.New(p.source, poller.Options{
		Interval:      a.Config.Poller.Interval,
		FetchTimeout:  a.Config.Poller.FetchTimeout,
		MaxFailures:   a.Config.Poller.MaxFailures,
		Cooldown:      a.Config.Poller.Cooldown,
		HistoryWindow: a.Config.Quotes.HistoryWindow,
	}, p.service.Cycle, a.Logger)

	for _, sym := range a.Config.Trading.Symbols {
		kind, err := market.ParseKind(sym.Market)
		if err != nil {
			return err
		}
		if err := watch.Watch(ctx, sym.Symbol, kind); err != nil {
			return err
		}
		a.Logger.Info().Str("symbol", sym.Symbol).Str("market", sym.Market).Msg("watching symbol")
	}

	a.Logger.Info().
		Str("mode", a.Config.Trading.Mode).
		Str("tier", a.Config.Risk.Tier).
		Msg("pipeline started")

	<-ctx.Done()
	watch.StopAll()
	a.Logger.Info().Msg("pipeline stopped")
	return nil
}
