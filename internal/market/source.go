package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	quotePath   = "/v1/quote"
	historyPath = "/v1/history"
)

// Source supplies point-in-time quotes and rolling price history.
type Source interface {
	FetchQuote(ctx context.Context, symbol string, kind Kind) (Quote, error)
	FetchHistory(ctx context.Context, symbol string, kind Kind, limit int) ([]float64, error)
}

// HTTPSourceOptions parameterise the HTTP quote source.
type HTTPSourceOptions struct {
	BaseURL       string
	Timeout       time.Duration
	RatePerSecond float64
	UserAgent     string
}

// HTTPSource fetches quotes from the market-data API.
type HTTPSource struct {
	opts    HTTPSourceOptions
	logger  zerolog.Logger
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
}

// NewHTTPSource constructs an HTTP quote source.
func NewHTTPSource(opts HTTPSourceOptions, logger zerolog.Logger) *HTTPSource {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	perSecond := opts.RatePerSecond
	if perSecond <= 0 {
		perSecond = 5
	}

	return &HTTPSource{
		opts:    opts,
		logger:  logger.With().Str("component", "quote_source").Logger(),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

type quoteResponse struct {
	Symbol       string  `json:"symbol"`
	Market       string  `json:"market"`
	Price        string  `json:"price"`
	ChangePct24h float64 `json:"change_pct_24h"`
	Volume24h    float64 `json:"volume_24h"`
	Timestamp    int64   `json:"timestamp"`
}

type historyResponse struct {
	Symbol string    `json:"symbol"`
	Closes []float64 `json:"closes"`
}

// FetchQuote retrieves the current quote for a symbol.
func (s *HTTPSource) FetchQuote(ctx context.Context, symbol string, kind Kind) (Quote, error) {
	if symbol == "" {
		return Quote{}, errors.New("symbol required")
	}

	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("market", string(kind))

	var res quoteResponse
	if err := s.getJSON(ctx, quotePath, query, &res); err != nil {
		return Quote{}, fmt.Errorf("%w: %s: %v", ErrDataUnavailable, symbol, err)
	}

	price, err := decimal.NewFromString(res.Price)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: parse price for %s: %v", ErrDataUnavailable, symbol, err)
	}
	if price.Sign() <= 0 {
		return Quote{}, fmt.Errorf("%w: non-positive price for %s", ErrDataUnavailable, symbol)
	}

	ts := time.Now().UTC()
	if res.Timestamp > 0 {
		ts = time.Unix(res.Timestamp, 0).UTC()
	}

	return Quote{
		Symbol:       symbol,
		Market:       kind,
		Price:        price,
		ChangePct24h: decimal.NewFromFloat(res.ChangePct24h),
		Volume24h:    decimal.NewFromFloat(res.Volume24h),
		Timestamp:    ts,
	}, nil
}

// FetchHistory retrieves up to limit historical closes, oldest first.
func (s *HTTPSource) FetchHistory(ctx context.Context, symbol string, kind Kind, limit int) ([]float64, error) {
	if symbol == "" {
		return nil, errors.New("symbol required")
	}
	if limit <= 0 {
		return nil, errors.New("limit must be greater than zero")
	}

	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("market", string(kind))
	query.Set("limit", strconv.Itoa(limit))

	var res historyResponse
	if err := s.getJSON(ctx, historyPath, query, &res); err != nil {
		return nil, fmt.Errorf("%w: history for %s: %v", ErrDataUnavailable, symbol, err)
	}

	if len(res.Closes) == 0 {
		return nil, fmt.Errorf("%w: empty history for %s", ErrDataUnavailable, symbol)
	}

	return res.Closes, nil
}

func (s *HTTPSource) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint := s.baseURL + path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(s.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return parseHTTPError(resp.StatusCode, payload)
	}

	return json.Unmarshal(payload, out)
}

type errorResponse struct {
	ErrorType   string `json:"errorType"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Description != "" {
			return fmt.Errorf("quote api error (%d): %s", status, apiErr.Description)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("quote api error (%d): %s", status, apiErr.Message)
		}
	}
	return fmt.Errorf("quote api error: status %d", status)
}

var _ Source = (*HTTPSource)(nil)
