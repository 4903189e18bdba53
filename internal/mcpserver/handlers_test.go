package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/streamvault/internal/logging"
)

const testAddr = "0x1111111111111111111111111111111111111111"

// --- Test helpers ---

func newTestSetup(handler http.Handler) (*Handlers, func()) {
	ts := httptest.NewServer(handler)
	client := NewClient(Config{APIURL: ts.URL})
	return NewHandlers(client), ts.Close
}

func makeRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	if args == nil {
		args = map[string]any{}
	}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content block")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var storedRisk = map[string]any{
	"score":       42,
	"band":        "MEDIUM",
	"bandIndex":   1,
	"lastUpdated": 1700000000,
	"signature":   "0xsig",
	"rationale":   "steady revenue",
}

// ============================================================
// Client tests
// ============================================================

func TestClient_PropagatesRequestID(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(logging.RequestIDHeader)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewClient(Config{APIURL: ts.URL})
	ctx := logging.WithRequestID(context.Background(), "req-abc")
	_, err := client.ListPools(ctx)
	require.NoError(t, err)
	assert.Equal(t, "req-abc", got)

	_, err = client.ListPools(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 32)
}

func TestClient_DoRequest_HTTPError_WithAPIMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":   "scoring_unavailable",
			"message": "Risk scoring service is unavailable",
		})
	}))
	defer ts.Close()

	client := NewClient(Config{APIURL: ts.URL})
	_, err := client.GetBusinessRisk(context.Background(), testAddr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "scoring_unavailable")
	assert.Contains(t, err.Error(), "Risk scoring service is unavailable")
}

func TestClient_DoRequest_HTTPError_RawBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer ts.Close()

	client := NewClient(Config{APIURL: ts.URL})
	_, err := client.ListPools(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestClient_DefaultTimeout(t *testing.T) {
	assert.Equal(t, DefaultTimeout, NewClient(Config{}).httpClient.Timeout)
}

func TestClient_EvaluateSendsOverrides(t *testing.T) {
	var method, path string
	var body map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		writeJSON(w, http.StatusOK, map[string]any{"risk": storedRisk, "signer": "0xsigner"})
	}))
	defer ts.Close()

	h := NewHandlers(NewClient(Config{APIURL: ts.URL}))
	result, err := h.HandleEvaluateBusinessRisk(context.Background(), makeRequest(map[string]any{
		"address":         testAddr,
		"monthly_revenue": float64(90000),
		"missed_payments": float64(2),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "/api/business/"+testAddr+"/risk", path)
	assert.Equal(t, float64(90000), body["monthlyRevenue"])
	assert.Equal(t, float64(2), body["missedPayments"])
	assert.NotContains(t, body, "revenueVolatility")

	text := resultText(t, result)
	assert.Contains(t, text, "MEDIUM (score 42/100)")
	assert.Contains(t, text, "Signer: 0xsigner")
}

// ============================================================
// Handler tests
// ============================================================

func TestHandleCalculateAccrual(t *testing.T) {
	h := NewHandlers(NewClient(Config{APIURL: "http://unused.invalid"}))

	result, err := h.HandleCalculateAccrual(context.Background(), makeRequest(map[string]any{
		"total_amount": "1000",
		"start_time":   "0",
		"duration":     float64(1000),
		"timestamp":    "500",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	text := resultText(t, result)
	assert.Contains(t, text, "Claimable: 500")
	assert.Contains(t, text, "Vested: 500 (50.00%)")
	assert.Contains(t, text, "Stream end: 1000")
}

func TestHandleCalculateAccrual_Tranches(t *testing.T) {
	h := NewHandlers(NewClient(Config{}))

	result, err := h.HandleCalculateAccrual(context.Background(), makeRequest(map[string]any{
		"total_amount":    "1000",
		"start_time":      "0",
		"duration":        "1000",
		"paused_duration": "200",
		"timestamp":       "700",
		"tranches": []any{
			map[string]any{"token": "0xa", "totalAmount": "1000"},
			map[string]any{"token": "0xb", "totalAmount": "2000", "pauseAccumulated": "200"},
		},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	text := resultText(t, result)
	assert.Contains(t, text, "1. 0xa claimable 500 (paused 200s)")
	assert.Contains(t, text, "2. 0xb claimable 1400 (paused 0s)")
}

func TestHandleCalculateAccrual_Errors(t *testing.T) {
	h := NewHandlers(NewClient(Config{}))

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing total", map[string]any{"start_time": "0", "duration": "10", "timestamp": "5"}, "total_amount is required"},
		{"bad number", map[string]any{"total_amount": "ten", "start_time": "0", "duration": "10", "timestamp": "5"}, "totalAmount"},
		{"fractional", map[string]any{"total_amount": float64(1.5), "start_time": "0", "duration": "10", "timestamp": "5"}, "totalAmount"},
		{"bad tranches", map[string]any{"total_amount": "1", "start_time": "0", "duration": "10", "timestamp": "5", "tranches": "nope"}, "tranches"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleCalculateAccrual(context.Background(), makeRequest(tt.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, resultText(t, result), tt.want)
		})
	}
}

func TestHandleGetBusinessRisk(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/business/"+testAddr+"/risk", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{"risk": storedRisk, "scored": true})
	}))
	defer cleanup()

	result, err := h.HandleGetBusinessRisk(context.Background(), makeRequest(map[string]any{"address": testAddr}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Risk: MEDIUM (score 42/100)")
	assert.Contains(t, text, "Rationale: steady revenue")
	assert.Contains(t, text, "Signature: 0xsig")
}

func TestHandleGetBusinessRisk_NotScored(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"risk": nil, "scored": false})
	}))
	defer cleanup()

	result, err := h.HandleGetBusinessRisk(context.Background(), makeRequest(map[string]any{"address": testAddr}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "has not been scored yet")
}

func TestHandleGetBusinessRisk_MissingAddress(t *testing.T) {
	h := NewHandlers(NewClient(Config{}))

	result, err := h.HandleGetBusinessRisk(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "address is required")
}

func TestHandleEvaluateBusinessRisk_InvalidOverrides(t *testing.T) {
	var called bool
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer cleanup()

	result, err := h.HandleEvaluateBusinessRisk(context.Background(), makeRequest(map[string]any{
		"address":            testAddr,
		"revenue_volatility": float64(150),
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "revenueVolatility")
	assert.False(t, called, "invalid overrides must not reach the API")
}

func TestHandleEvaluateBusinessRisk_APIError(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": "scoring_unavailable", "message": "Risk scoring service is unavailable"})
	}))
	defer cleanup()

	result, err := h.HandleEvaluateBusinessRisk(context.Background(), makeRequest(map[string]any{"address": testAddr}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Failed to evaluate risk")
}

func TestHandleListPools(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/pools", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{
			"pools": []map[string]any{
				{"id": "coffee-revenue", "name": "Coffee Shop Revenue Pool", "symbol": "COFFEE", "tvl": "250000", "apy": "11.00", "investors": 42, "risk": "MEDIUM"},
				{"id": "bakery-revenue", "name": "Bakery Revenue Pool", "symbol": "BAKE", "tvl": "120000", "apy": "8.50", "investors": 17, "risk": "LOW"},
			},
			"count": 2,
		})
	}))
	defer cleanup()

	result, err := h.HandleListPools(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Found 2 pools")
	assert.Contains(t, text, "1. Coffee Shop Revenue Pool (COFFEE) [coffee-revenue]")
	assert.Contains(t, text, "APY: 11.00%")
	assert.Contains(t, text, "Risk: LOW")
}

func TestHandleListPools_SinglePool(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/pools/coffee-revenue/metrics", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{
			"metrics": map[string]any{"id": "coffee-revenue", "name": "Coffee Shop Revenue Pool", "symbol": "COFFEE", "risk": "HIGH"},
		})
	}))
	defer cleanup()

	result, err := h.HandleListPools(context.Background(), makeRequest(map[string]any{"pool_id": "coffee-revenue"}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Risk: HIGH")
}

func TestHandleListPools_Empty(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"pools": []any{}, "count": 0})
	}))
	defer cleanup()

	result, err := h.HandleListPools(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "No pools configured.", resultText(t, result))
}

func TestNewMCPServer(t *testing.T) {
	s := NewMCPServer(Config{APIURL: "http://localhost:8080"})
	require.NotNil(t, s)
}

func TestGetString(t *testing.T) {
	m := map[string]any{"a": " 12 ", "b": float64(1700000000), "c": true}
	assert.Equal(t, "12", getString(m, "a"))
	assert.Equal(t, "1700000000", getString(m, "b"))
	assert.Equal(t, "", getString(m, "c"))
	assert.Equal(t, "12", getString(m, "missing", "a"))
}
