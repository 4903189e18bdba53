package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mbd888/streamvault/internal/idgen"
	"github.com/mbd888/streamvault/internal/logging"
	"github.com/mbd888/streamvault/internal/risk"
)

// DefaultTimeout bounds every API call. Evaluations wait on the scorer, so
// this is longer than a scorer attempt.
const DefaultTimeout = 30 * time.Second

// Config holds the configuration for connecting to a streamvault API.
type Config struct {
	APIURL  string // Base URL, e.g. "http://localhost:8080"
	Timeout time.Duration
}

// Client is a pure HTTP client for the streamvault API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a new client for the streamvault API.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the API and returns the response body.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	requestID := logging.RequestID(ctx)
	if requestID == "" {
		requestID = idgen.RequestID()
	}
	req.Header.Set(logging.RequestIDHeader, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d, %s): %s", resp.StatusCode, apiErr.Error, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// GetBusinessRisk returns the stored signed risk record for a business.
func (c *Client) GetBusinessRisk(ctx context.Context, address string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/api/business/"+url.PathEscape(address)+"/risk", nil, nil)
}

// EvaluateBusinessRisk scores a business, signs the result and stores it.
func (c *Client) EvaluateBusinessRisk(ctx context.Context, address string, overrides risk.Overrides) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/api/business/"+url.PathEscape(address)+"/risk", nil, overrides)
}

// ListPools returns derived metrics for every configured pool.
func (c *Client) ListPools(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/api/pools", nil, nil)
}

// GetPoolMetrics returns derived metrics for one pool.
func (c *Client) GetPoolMetrics(ctx context.Context, id string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/api/pools/"+url.PathEscape(id)+"/metrics", nil, nil)
}
