package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ensemble-trader/internal/config"
	"ensemble-trader/internal/engine"
	"ensemble-trader/internal/ensemble"
	"ensemble-trader/internal/filter"
	"ensemble-trader/internal/market"
	"ensemble-trader/internal/risk"
	"ensemble-trader/internal/storage"
	"ensemble-trader/internal/strategy"
)

type memoryDecisionStore struct {
	mu      sync.Mutex
	records []storage.DecisionRecord
}

func (m *memoryDecisionStore) AppendDecision(ctx context.Context, record storage.DecisionRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record.ID = int64(len(m.records) + 1)
	m.records = append(m.records, record)
	return record.ID, nil
}

func (m *memoryDecisionStore) ListDecisionsBetween(ctx context.Context, from, to time.Time) ([]storage.DecisionRecord, error) {
	return nil, nil
}

func (m *memoryDecisionStore) ListRecentDecisions(ctx context.Context, limit int) ([]storage.DecisionRecord, error) {
	return nil, nil
}

func (m *memoryDecisionStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type stubBroker struct{}

func (stubBroker) SubmitOrder(ctx context.Context, order risk.SizedOrder) (engine.Fill, error) {
	return engine.Fill{OrderID: "ord-1", FillPrice: order.EntryPrice}, nil
}

func testConfig(mode string) *config.Config {
	return &config.Config{
		Risk:    config.RiskConfig{Tier: "low", HeatCeilingPct: 15},
		Trading: config.TradingConfig{Mode: mode},
	}
}

func buyRegistry(strength float64) *strategy.Registry {
	reg := strategy.NewRegistry()
	_ = reg.Register("steady", 1, func(closes []float64) strategy.Signal {
		return strategy.Signal{Strategy: "steady", Side: strategy.Buy, Strength: strength}
	})
	return reg
}

func newTestService(t *testing.T, mode string, reg *strategy.Registry, broker engine.Broker, decisions storage.DecisionStore) (*Service, *engine.Engine) {
	t.Helper()

	account := risk.NewAccount(decimal.NewFromInt(1000), "USDT")
	riskMgr := risk.NewManager(account, risk.Options{HeatCeilingPct: 15}, zerolog.Nop())
	eng := engine.New(riskMgr, broker, nil, nil, zerolog.Nop())

	agg := ensemble.New(reg, ensemble.Options{}, zerolog.Nop())
	fil := filter.New(nil, filter.Options{ConfidenceThreshold: 0.5}, zerolog.Nop())

	svc, err := New(testConfig(mode), agg, fil, riskMgr, eng, decisions, nil, zerolog.Nop())
	require.NoError(t, err)
	return svc, eng
}

func testQuote() market.Quote {
	return market.Quote{
		Symbol:    "BTCUSDT",
		Market:    market.KindCrypto,
		Price:     decimal.NewFromInt(50000),
		Timestamp: time.Now().UTC(),
	}
}

func TestEvaluateRecordsEveryDecision(t *testing.T) {
	store := &memoryDecisionStore{}
	svc, _ := newTestService(t, config.ModeObserve, buyRegistry(0.9), nil, store)

	filtered := svc.Evaluate(context.Background(), "BTCUSDT", []float64{1, 2, 3})
	require.True(t, filtered.Actionable())
	assert.Equal(t, int64(1), filtered.ID)
	assert.Equal(t, "1", filtered.Ref())
	assert.Equal(t, 1, store.count())

	// Downgraded decisions are recorded too.
	svcLow, _ := newTestService(t, config.ModeObserve, buyRegistry(0.2), nil, store)
	downgraded := svcLow.Evaluate(context.Background(), "BTCUSDT", []float64{1, 2, 3})
	assert.False(t, downgraded.Actionable())
	assert.Equal(t, 2, store.count())
}

func TestCycleObserveModePlacesNoTrades(t *testing.T) {
	svc, eng := newTestService(t, config.ModeObserve, buyRegistry(0.9), stubBroker{}, nil)

	svc.Cycle(context.Background(), testQuote(), []float64{1, 2, 3})

	assert.Empty(t, eng.List(), "observe mode must not trade")
}

func TestCycleSimulateModePlacesNoTrades(t *testing.T) {
	svc, eng := newTestService(t, config.ModeSimulate, buyRegistry(0.9), stubBroker{}, nil)

	svc.Cycle(context.Background(), testQuote(), []float64{1, 2, 3})

	assert.Empty(t, eng.List(), "simulate mode must not commit capital")
}

func TestCycleLiveModeExecutes(t *testing.T) {
	svc, eng := newTestService(t, config.ModeLive, buyRegistry(0.9), stubBroker{}, nil)

	svc.Cycle(context.Background(), testQuote(), []float64{1, 2, 3})

	trades := eng.List()
	require.Len(t, trades, 1)
	assert.Equal(t, engine.StatusOpen, trades[0].Status)
	assert.Equal(t, "BTCUSDT", trades[0].Symbol)
}

func TestCycleDowngradedDecisionNeverTrades(t *testing.T) {
	svc, eng := newTestService(t, config.ModeLive, buyRegistry(0.2), stubBroker{}, nil)

	svc.Cycle(context.Background(), testQuote(), []float64{1, 2, 3})

	assert.Empty(t, eng.List(), "below-threshold decision must not trade")
}

func TestSizeUsesConfiguredTier(t *testing.T) {
	svc, _ := newTestService(t, config.ModeObserve, buyRegistry(0.9), nil, nil)

	filtered := svc.Evaluate(context.Background(), "BTCUSDT", []float64{1, 2, 3})
	order, rejection := svc.Size(filtered, decimal.NewFromInt(50000))
	require.Nil(t, rejection)

	assert.Equal(t, risk.TierLow, order.Tier)
	assert.True(t, order.Size.Equal(decimal.NewFromInt(2000)), "size = %s", order.Size)
}
