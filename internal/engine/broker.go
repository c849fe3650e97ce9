package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"ensemble-trader/internal/risk"
)

// Fill is the broker's confirmation of a submitted order.
type Fill struct {
	OrderID   string
	FillPrice decimal.Decimal
}

// Broker submits sized orders to an external venue.
type Broker interface {
	SubmitOrder(ctx context.Context, order risk.SizedOrder) (Fill, error)
}

// HTTPBrokerOptions parameterise the HTTP broker adapter.
type HTTPBrokerOptions struct {
	BaseURL string
	Timeout time.Duration
	// MaxFailures consecutive submission failures trip the circuit; it
	// half-opens after OpenTimeout.
	MaxFailures uint32
	OpenTimeout time.Duration
}

// HTTPBroker submits orders over JSON, guarded by a circuit breaker so a
// down venue sheds submissions fast instead of queueing timeouts.
type HTTPBroker struct {
	opts    HTTPBrokerOptions
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger
	baseURL string
}

// NewHTTPBroker constructs the HTTP broker adapter.
func NewHTTPBroker(opts HTTPBrokerOptions, logger zerolog.Logger) *HTTPBroker {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxFailures := opts.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	openTimeout := opts.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = time.Minute
	}

	settings := gobreaker.Settings{Name: "broker"}
	settings.Timeout = openTimeout
	settings.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= maxFailures
	}

	return &HTTPBroker{
		opts:    opts,
		client:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger.With().Str("component", "broker").Logger(),
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

type orderRequest struct {
	Symbol          string `json:"symbol"`
	Side            string `json:"side"`
	Notional        string `json:"notional"`
	Currency        string `json:"currency"`
	StopLossPrice   string `json:"stop_loss_price"`
	TakeProfitPrice string `json:"take_profit_price"`
}

type orderResponse struct {
	OrderID   string `json:"orderId"`
	FillPrice string `json:"fillPrice"`
}

// SubmitOrder posts the order for execution. Transport errors, non-2xx
// responses, and an open circuit all surface as errors; callers mark the
// trade failed and release its budget.
func (b *HTTPBroker) SubmitOrder(ctx context.Context, order risk.SizedOrder) (Fill, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.submit(ctx, order)
	})
	if err != nil {
		return Fill{}, err
	}
	return result.(Fill), nil
}

func (b *HTTPBroker) submit(ctx context.Context, order risk.SizedOrder) (Fill, error) {
	payload, err := json.Marshal(orderRequest{
		Symbol:          order.Symbol,
		Side:            string(order.Side),
		Notional:        order.Size.String(),
		Currency:        order.Currency,
		StopLossPrice:   order.StopLossPrice.String(),
		TakeProfitPrice: order.TakeProfitPrice.String(),
	})
	if err != nil {
		return Fill{}, fmt.Errorf("marshal order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/orders", bytes.NewReader(payload))
	if err != nil {
		return Fill{}, fmt.Errorf("create order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return Fill{}, fmt.Errorf("send order request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Fill{}, fmt.Errorf("broker status %d", resp.StatusCode)
	}

	var res orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return Fill{}, fmt.Errorf("decode order response: %w", err)
	}

	fillPrice, err := decimal.NewFromString(res.FillPrice)
	if err != nil {
		return Fill{}, fmt.Errorf("parse fill price: %w", err)
	}
	if fillPrice.Sign() <= 0 {
		return Fill{}, fmt.Errorf("broker returned non-positive fill price")
	}

	return Fill{OrderID: res.OrderID, FillPrice: fillPrice}, nil
}

var _ Broker = (*HTTPBroker)(nil)
