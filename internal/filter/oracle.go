package filter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ensemble-trader/internal/ensemble"
)

// OracleScore is the external scoring oracle's verdict on a decision.
type OracleScore struct {
	Approve    bool
	Confidence float64
}

// Oracle scores a consensus decision. Implementations are external
// collaborators; any error must be treated as a veto by callers.
type Oracle interface {
	Score(ctx context.Context, symbol string, decision ensemble.Decision) (OracleScore, error)
}

// HTTPOracleOptions parameterise the HTTP oracle client.
type HTTPOracleOptions struct {
	BaseURL string
	Timeout time.Duration
}

// HTTPOracle calls a remote scoring service over JSON.
type HTTPOracle struct {
	opts    HTTPOracleOptions
	client  *http.Client
	logger  zerolog.Logger
	baseURL string
}

// NewHTTPOracle constructs the HTTP oracle client.
func NewHTTPOracle(opts HTTPOracleOptions, logger zerolog.Logger) *HTTPOracle {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &HTTPOracle{
		opts:    opts,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "oracle").Logger(),
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

type scoreRequest struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Confidence float64 `json:"confidence"`
}

type scoreResponse struct {
	Approve    bool    `json:"approve"`
	Confidence float64 `json:"confidence"`
}

// Score posts the decision for scoring. Non-2xx responses and transport
// errors are returned as errors so the quality filter can fail closed.
func (o *HTTPOracle) Score(ctx context.Context, symbol string, decision ensemble.Decision) (OracleScore, error) {
	payload, err := json.Marshal(scoreRequest{
		Symbol:     symbol,
		Side:       string(decision.Side),
		Confidence: decision.Confidence,
	})
	if err != nil {
		return OracleScore{}, fmt.Errorf("marshal score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/score", bytes.NewReader(payload))
	if err != nil {
		return OracleScore{}, fmt.Errorf("create score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return OracleScore{}, fmt.Errorf("send score request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return OracleScore{}, fmt.Errorf("oracle status %d", resp.StatusCode)
	}

	var res scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return OracleScore{}, fmt.Errorf("decode score response: %w", err)
	}

	return OracleScore{Approve: res.Approve, Confidence: res.Confidence}, nil
}

var _ Oracle = (*HTTPOracle)(nil)
