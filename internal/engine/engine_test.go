package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ensemble-trader/internal/risk"
	"ensemble-trader/internal/strategy"
)

type stubBroker struct {
	fill Fill
	err  error
}

func (b stubBroker) SubmitOrder(ctx context.Context, order risk.SizedOrder) (Fill, error) {
	return b.fill, b.err
}

func newTestEngine(broker Broker) (*Engine, *risk.Manager) {
	account := risk.NewAccount(decimal.NewFromInt(1000), "USDT")
	riskMgr := risk.NewManager(account, risk.Options{HeatCeilingPct: 15}, zerolog.Nop())
	eng := New(riskMgr, broker, nil, nil, zerolog.Nop())
	return eng, riskMgr
}

func testOrder() risk.SizedOrder {
	return risk.SizedOrder{
		Symbol:          "BTCUSDT",
		Side:            strategy.Buy,
		Size:            decimal.NewFromInt(2000),
		EntryPrice:      decimal.NewFromInt(50000),
		StopLossPrice:   decimal.NewFromInt(48750),
		TakeProfitPrice: decimal.NewFromInt(52500),
		Currency:        "USDT",
		Tier:            risk.TierLow,
		RiskAmount:      decimal.NewFromInt(50),
		Confidence:      0.8,
	}
}

func TestPlaceCreatesPendingTrade(t *testing.T) {
	eng, riskMgr := newTestEngine(nil)

	trade, rejection := eng.Place(context.Background(), testOrder())
	require.Nil(t, rejection)
	assert.Equal(t, StatusPending, trade.Status)
	assert.False(t, trade.IsOpen())

	_, notional, _ := riskMgr.Account().Exposure()
	assert.True(t, notional.Equal(decimal.NewFromInt(2000)), "placement must reserve budget")
}

func TestExecuteOpensAtFillPrice(t *testing.T) {
	fill := Fill{OrderID: "ord-1", FillPrice: decimal.NewFromInt(50100)}
	eng, _ := newTestEngine(stubBroker{fill: fill})

	trade, rejection := eng.Place(context.Background(), testOrder())
	require.Nil(t, rejection)

	executed, err := eng.Execute(context.Background(), trade.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, executed.Status)
	assert.True(t, executed.IsOpen())
	assert.True(t, executed.EntryPrice.Equal(fill.FillPrice))
	// Size becomes the base quantity: notional / fill price.
	expected := decimal.NewFromInt(2000).Div(fill.FillPrice)
	assert.True(t, executed.Size.Equal(expected), "size = %s", executed.Size)
	assert.Nil(t, executed.ExitPrice)
}

func TestExecuteBrokerFailureReleasesBudget(t *testing.T) {
	eng, riskMgr := newTestEngine(stubBroker{err: errors.New("venue down")})

	trade, rejection := eng.Place(context.Background(), testOrder())
	require.Nil(t, rejection)

	_, err := eng.Execute(context.Background(), trade.ID)
	require.ErrorIs(t, err, ErrExecutionFailed)

	failed, ok := eng.Get(trade.ID)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, failed.Status)

	_, notional, _ := riskMgr.Account().Exposure()
	assert.True(t, notional.IsZero(), "failed execution must not hold budget")
	assert.True(t, riskMgr.Account().Balance().Equal(decimal.NewFromInt(1000)),
		"failed execution must not move the balance")
}

func TestExecuteWithoutBroker(t *testing.T) {
	eng, _ := newTestEngine(nil)

	trade, rejection := eng.Place(context.Background(), testOrder())
	require.Nil(t, rejection)

	_, err := eng.Execute(context.Background(), trade.ID)
	require.ErrorIs(t, err, ErrExecutionFailed)
}

func TestCloseRealizesPnLBuy(t *testing.T) {
	fill := Fill{OrderID: "ord-1", FillPrice: decimal.NewFromInt(50000)}
	eng, riskMgr := newTestEngine(stubBroker{fill: fill})

	trade, _, err := eng.ExecuteOrder(context.Background(), testOrder())
	require.NoError(t, err)

	closed, err := eng.Close(context.Background(), trade.ID, decimal.NewFromInt(51000))
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, closed.Status)
	require.NotNil(t, closed.ExitPrice)

	// (51000 - 50000) x (2000/50000) = 40.
	assert.True(t, closed.RealizedPnL.Equal(decimal.NewFromInt(40)), "pnl = %s", closed.RealizedPnL)
	assert.True(t, riskMgr.Account().Balance().Equal(decimal.NewFromInt(1040)))
}

func TestCloseRealizesPnLSell(t *testing.T) {
	fill := Fill{OrderID: "ord-1", FillPrice: decimal.NewFromInt(50000)}
	eng, riskMgr := newTestEngine(stubBroker{fill: fill})

	order := testOrder()
	order.Side = strategy.Sell
	trade, _, err := eng.ExecuteOrder(context.Background(), order)
	require.NoError(t, err)

	closed, err := eng.Close(context.Background(), trade.ID, decimal.NewFromInt(51000))
	require.NoError(t, err)

	// Short against a rising price loses: -(51000-50000) x 0.04 = -40.
	assert.True(t, closed.RealizedPnL.Equal(decimal.NewFromInt(-40)), "pnl = %s", closed.RealizedPnL)
	assert.True(t, riskMgr.Account().Balance().Equal(decimal.NewFromInt(960)))
}

func TestCloseRequiresOpenTrade(t *testing.T) {
	eng, _ := newTestEngine(nil)

	trade, rejection := eng.Place(context.Background(), testOrder())
	require.Nil(t, rejection)

	_, err := eng.Close(context.Background(), trade.ID, decimal.NewFromInt(100))
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = eng.Close(context.Background(), "missing", decimal.NewFromInt(100))
	require.ErrorIs(t, err, ErrTradeNotFound)

	_, err = eng.Close(context.Background(), trade.ID, decimal.Zero)
	require.Error(t, err)
}

func TestCancelPendingOnly(t *testing.T) {
	fill := Fill{OrderID: "ord-1", FillPrice: decimal.NewFromInt(50000)}
	eng, riskMgr := newTestEngine(stubBroker{fill: fill})

	trade, rejection := eng.Place(context.Background(), testOrder())
	require.Nil(t, rejection)

	cancelled, err := eng.Cancel(context.Background(), trade.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	_, notional, _ := riskMgr.Account().Exposure()
	assert.True(t, notional.IsZero(), "cancellation must release budget")

	opened, _, err := eng.ExecuteOrder(context.Background(), testOrder())
	require.NoError(t, err)
	_, err = eng.Cancel(context.Background(), opened.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

// gatedBroker signals when a submission arrives and holds it until released.
type gatedBroker struct {
	entered chan struct{}
	release chan struct{}
	fill    Fill
}

func (b *gatedBroker) SubmitOrder(ctx context.Context, order risk.SizedOrder) (Fill, error) {
	close(b.entered)
	<-b.release
	return b.fill, nil
}

func TestCancelRejectedWhileOrderInFlight(t *testing.T) {
	broker := &gatedBroker{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		fill:    Fill{OrderID: "ord-1", FillPrice: decimal.NewFromInt(50000)},
	}
	eng, riskMgr := newTestEngine(broker)

	trade, rejection := eng.Place(context.Background(), testOrder())
	require.Nil(t, rejection)

	done := make(chan struct{})
	var executed *Trade
	var execErr error
	go func() {
		executed, execErr = eng.Execute(context.Background(), trade.ID)
		close(done)
	}()

	<-broker.entered
	inFlight, ok := eng.Get(trade.ID)
	require.True(t, ok)
	assert.Equal(t, StatusSubmitting, inFlight.Status)

	_, err := eng.Cancel(context.Background(), trade.ID)
	require.ErrorIs(t, err, ErrInvalidTransition, "a trade in flight at the broker must not be cancellable")

	close(broker.release)
	<-done
	require.NoError(t, execErr)
	assert.Equal(t, StatusOpen, executed.Status)

	_, notional, _ := riskMgr.Account().Exposure()
	assert.True(t, notional.Equal(decimal.NewFromInt(2000)), "the fill must keep its reserved budget")
}

func TestSimulateIsPureAndRepeatable(t *testing.T) {
	order := testOrder()
	profile := risk.DefaultProfiles()[risk.TierLow]

	first := Simulate(order, profile)
	second := Simulate(order, profile)

	assert.Equal(t, first, second, "identical inputs must yield identical results")
	assert.Equal(t, 2.0, first.RiskReward) // take 5% over stop 2.5%.
	assert.InDelta(t, 0.5+0.4*0.8, first.WinProbability, 1e-9)
}

func TestSimulateDoesNotTouchAccount(t *testing.T) {
	_, riskMgr := newTestEngine(nil)

	before := riskMgr.Account().Balance()
	for i := 0; i < 10; i++ {
		Simulate(testOrder(), risk.DefaultProfiles()[risk.TierLow])
	}
	assert.True(t, riskMgr.Account().Balance().Equal(before))
	_, notional, _ := riskMgr.Account().Exposure()
	assert.True(t, notional.IsZero())
}

func TestHTTPBrokerSubmit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "BTCUSDT", req["symbol"])
		assert.Equal(t, "buy", req["side"])
		_ = json.NewEncoder(w).Encode(map[string]string{"orderId": "ord-9", "fillPrice": "50123.5"})
	}))
	defer srv.Close()

	broker := NewHTTPBroker(HTTPBrokerOptions{BaseURL: srv.URL, Timeout: time.Second}, zerolog.Nop())
	fill, err := broker.SubmitOrder(context.Background(), testOrder())
	require.NoError(t, err)
	assert.Equal(t, "ord-9", fill.OrderID)
	assert.True(t, fill.FillPrice.Equal(decimal.RequireFromString("50123.5")))
}

func TestHTTPBrokerCircuitOpens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	broker := NewHTTPBroker(HTTPBrokerOptions{
		BaseURL:     srv.URL,
		Timeout:     time.Second,
		MaxFailures: 2,
		OpenTimeout: time.Minute,
	}, zerolog.Nop())

	for i := 0; i < 2; i++ {
		_, err := broker.SubmitOrder(context.Background(), testOrder())
		require.Error(t, err)
	}

	// Circuit is now open; submissions are shed without reaching the venue.
	_, err := broker.SubmitOrder(context.Background(), testOrder())
	require.Error(t, err)
}
