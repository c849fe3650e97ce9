package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ensemble-trader/internal/config"
)

func testApp(baseURL string, dailyLimit int) *App {
	cfg := &config.Config{
		Quotes: config.QuotesConfig{
			BaseURL:        baseURL,
			RequestTimeout: time.Second,
			RatePerSecond:  100,
			HistoryWindow:  60,
		},
		Filter:  config.FilterConfig{ConfidenceThreshold: 0.5},
		Risk:    config.RiskConfig{Tier: "low", HeatCeilingPct: 15},
		Account: config.AccountConfig{Balance: 1000, Currency: "USDT"},
		Trading: config.TradingConfig{Mode: config.ModeObserve},
		Quota:   config.QuotaConfig{DailyLimit: dailyLimit, BonusPerAd: 1, MaxBonusAds: 3},
	}
	return NewApp(cfg, zerolog.Nop())
}

func marketServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/history":
			closes := make([]float64, 60)
			for i := range closes {
				closes[i] = 50000 + float64(i)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"symbol": "BTCUSDT",
				"closes": closes,
			})
		case "/v1/quote":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"symbol":    "BTCUSDT",
				"market":    "crypto",
				"price":     "50060",
				"timestamp": time.Now().Unix(),
			})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestGetSignalEnforcesQuotaAcrossCalls(t *testing.T) {
	srv := marketServer()
	defer srv.Close()
	a := testApp(srv.URL, 1)

	opts := SignalOptions{Symbol: "BTCUSDT", Category: "crypto"}

	first, err := a.GetSignal(context.Background(), opts)
	require.NoError(t, err)
	assert.False(t, first.QuotaExhausted)
	assert.Equal(t, 1, first.Quota.Used)
	assert.Equal(t, 0, first.Quota.Remaining)

	second, err := a.GetSignal(context.Background(), opts)
	require.NoError(t, err)
	assert.True(t, second.QuotaExhausted, "second signal against a limit of one must be refused")
}

func TestDailyQuotaReflectsConsumption(t *testing.T) {
	srv := marketServer()
	defer srv.Close()
	a := testApp(srv.URL, 2)

	before := a.DailyQuota("crypto", "")
	assert.Equal(t, 0, before.Used)

	_, err := a.GetSignal(context.Background(), SignalOptions{Symbol: "BTCUSDT", Category: "crypto"})
	require.NoError(t, err)

	after := a.DailyQuota("crypto", "")
	assert.Equal(t, 1, after.Used)
	assert.Equal(t, 1, after.Remaining)
}

func TestGetSignalFetchFailureKeepsQuota(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	a := testApp(srv.URL, 1)

	_, err := a.GetSignal(context.Background(), SignalOptions{Symbol: "BTCUSDT", Category: "crypto"})
	require.Error(t, err)

	status := a.DailyQuota("crypto", "")
	assert.Equal(t, 0, status.Used, "a failed fetch must not burn the allowance")
	assert.False(t, status.Exhausted())
}
