// Package scorer is the HTTP client for the external credit scoring service.
package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mbd888/streamvault/internal/circuitbreaker"
	"github.com/mbd888/streamvault/internal/logging"
	"github.com/mbd888/streamvault/internal/retry"
	"github.com/mbd888/streamvault/internal/risk"
)

// BreakerKey is the circuit breaker key used for scorer calls.
const BreakerKey = "scorer"

const maxResponseBytes = 1 << 20

var requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "streamvault",
	Subsystem: "scorer",
	Name:      "requests_total",
	Help:      "HTTP attempts against the scoring service by result.",
}, []string{"result"}) // "ok", "retryable", "rejected", "transport", "decode"

func init() {
	prometheus.MustRegister(requestsTotal)
}

// Config holds scorer client settings.
type Config struct {
	BaseURL     string        // e.g. "http://localhost:8000"
	Timeout     time.Duration // per attempt; default 10s
	MaxAttempts int           // default 2
	BaseDelay   time.Duration // first backoff; default 250ms
}

// Client implements risk.Scorer over POST {base}/score-business.
type Client struct {
	cfg        Config
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
}

// New creates a scoring client. breaker may be nil.
func New(cfg Config, breaker *circuitbreaker.Breaker) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 2
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 250 * time.Millisecond
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    breaker,
	}
}

// Breaker returns the client's circuit breaker, or nil.
func (c *Client) Breaker() *circuitbreaker.Breaker { return c.breaker }

// Score calls the scoring service. Transport errors and 502/503/504 are
// retried; any other non-2xx fails at once. Every failure wraps
// risk.ErrScoringUnavailable.
func (c *Client) Score(ctx context.Context, req risk.ScoreRequest) (*risk.ScoreResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("scorer: marshal request: %w", err)
	}

	var out *risk.ScoreResponse
	call := func() error {
		policy := retry.Policy{
			MaxAttempts: c.cfg.MaxAttempts,
			BaseDelay:   c.cfg.BaseDelay,
			MaxDelay:    2 * time.Second,
			OnRetry: func(attempt int, err error) {
				logging.L(ctx).Warn("scorer call failed, retrying", "attempt", attempt, "error", err)
			},
		}
		return policy.Do(ctx, func(ctx context.Context) error {
			resp, err := c.post(ctx, body)
			if err != nil {
				return err
			}
			out = resp
			return nil
		})
	}

	if c.breaker != nil {
		err = c.breaker.Execute(BreakerKey, call, countable)
	} else {
		err = call()
	}
	if err != nil {
		if errors.Is(err, risk.ErrScoringUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", risk.ErrScoringUnavailable, err)
	}
	return out, nil
}

// countable keeps caller cancellations from tripping the breaker.
func countable(err error) bool {
	return !errors.Is(err, context.Canceled)
}

func (c *Client) post(ctx context.Context, body []byte) (*risk.ScoreResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/score-business", bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("scorer: create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if id := logging.RequestID(ctx); id != "" {
		httpReq.Header.Set("X-Request-ID", id)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		requestsTotal.WithLabelValues("transport").Inc()
		if ctx.Err() != nil {
			return nil, retry.Permanent(err)
		}
		return nil, fmt.Errorf("scorer: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		requestsTotal.WithLabelValues("transport").Inc()
		return nil, fmt.Errorf("scorer: read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusGatewayTimeout:
		requestsTotal.WithLabelValues("retryable").Inc()
		return nil, fmt.Errorf("%w: status %d", risk.ErrScoringUnavailable, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		requestsTotal.WithLabelValues("rejected").Inc()
		return nil, retry.Permanent(fmt.Errorf("%w: status %d: %s",
			risk.ErrScoringUnavailable, resp.StatusCode, snippet(raw)))
	}

	var out risk.ScoreResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		requestsTotal.WithLabelValues("decode").Inc()
		return nil, retry.Permanent(fmt.Errorf("%w: decode response: %v", risk.ErrScoringUnavailable, err))
	}
	requestsTotal.WithLabelValues("ok").Inc()
	return &out, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
