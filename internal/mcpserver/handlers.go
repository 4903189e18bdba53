package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbd888/streamvault/internal/accrual"
	"github.com/mbd888/streamvault/internal/risk"
	"github.com/mbd888/streamvault/internal/riskstore"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *Client
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *Client) *Handlers {
	return &Handlers{client: client}
}

// HandleCalculateAccrual evaluates a stream locally.
func (h *Handlers) HandleCalculateAccrual(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state, err := stateFromArgs(req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid stream state: %v", err)), nil
	}

	sum, err := state.Evaluate()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to calculate accrual: %v", err)), nil
	}
	return mcp.NewToolResultText(formatAccrual(sum)), nil
}

// HandleGetBusinessRisk fetches the stored risk record.
func (h *Handlers) HandleGetBusinessRisk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address := req.GetString("address", "")
	if address == "" {
		return mcp.NewToolResultError("address is required"), nil
	}

	raw, err := h.client.GetBusinessRisk(ctx, address)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get risk: %v", err)), nil
	}

	var resp struct {
		Risk   *riskstore.RiskRecord `json:"risk"`
		Scored bool                  `json:"scored"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse risk: %v", err)), nil
	}
	if !resp.Scored || resp.Risk == nil {
		return mcp.NewToolResultText(fmt.Sprintf("Business %s has not been scored yet. Use evaluate_business_risk to score it.", address)), nil
	}
	return mcp.NewToolResultText(formatRisk(address, resp.Risk, "")), nil
}

// HandleEvaluateBusinessRisk asks the service to re-score a business.
func (h *Handlers) HandleEvaluateBusinessRisk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address := req.GetString("address", "")
	if address == "" {
		return mcp.NewToolResultError("address is required"), nil
	}

	args := req.GetArguments()
	var overrides risk.Overrides
	if v, ok := getFloat(args, "monthly_revenue"); ok {
		overrides.MonthlyRevenue = &v
	}
	if v, ok := getFloat(args, "revenue_volatility"); ok {
		overrides.RevenueVolatility = &v
	}
	if v, ok := getFloat(args, "missed_payments"); ok {
		n := int(v)
		overrides.MissedPayments = &n
	}
	if err := overrides.Validate(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	raw, err := h.client.EvaluateBusinessRisk(ctx, address, overrides)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to evaluate risk: %v", err)), nil
	}

	var resp struct {
		Risk   *riskstore.RiskRecord `json:"risk"`
		Signer string                `json:"signer"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Risk == nil {
		return mcp.NewToolResultError(fmt.Sprintf("Unexpected evaluation response: %s", formatJSON(raw))), nil
	}
	return mcp.NewToolResultText(formatRisk(address, resp.Risk, resp.Signer)), nil
}

// HandleListPools lists pools, or one pool when pool_id is set.
func (h *Handlers) HandleListPools(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if id := req.GetString("pool_id", ""); id != "" {
		raw, err := h.client.GetPoolMetrics(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get pool: %v", err)), nil
		}
		var resp struct {
			Metrics *riskstore.PoolMetrics `json:"metrics"`
		}
		if err := json.Unmarshal(raw, &resp); err != nil || resp.Metrics == nil {
			return mcp.NewToolResultError(fmt.Sprintf("Unexpected pool response: %s", formatJSON(raw))), nil
		}
		return mcp.NewToolResultText(formatPools([]*riskstore.PoolMetrics{resp.Metrics})), nil
	}

	raw, err := h.client.ListPools(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list pools: %v", err)), nil
	}
	var resp struct {
		Pools []*riskstore.PoolMetrics `json:"pools"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse pools: %v", err)), nil
	}
	return mcp.NewToolResultText(formatPools(resp.Pools)), nil
}

// --- argument parsing ---

func stateFromArgs(req mcp.CallToolRequest) (accrual.StateRequest, error) {
	args := req.GetArguments()
	state := accrual.StateRequest{
		TotalAmount:    getString(args, "total_amount"),
		ClaimedAmount:  getString(args, "claimed_amount"),
		StartTime:      getString(args, "start_time"),
		Duration:       getString(args, "duration"),
		LastClaimed:    getString(args, "last_claimed"),
		StopTime:       getString(args, "stop_time"),
		PauseStart:     getString(args, "pause_start"),
		PausedDuration: getString(args, "paused_duration"),
		Timestamp:      getString(args, "timestamp"),
	}
	if b, ok := args["is_paused"].(bool); ok {
		state.IsPaused = b
	}

	for _, name := range []string{"total_amount", "start_time", "duration", "timestamp"} {
		if getString(args, name) == "" {
			return state, fmt.Errorf("%s is required", name)
		}
	}

	if raw, ok := args["tranches"]; ok && raw != nil {
		// Round-trip through JSON so camelCase keys land on TrancheRequest.
		data, err := json.Marshal(raw)
		if err != nil {
			return state, fmt.Errorf("tranches: %w", err)
		}
		if err := json.Unmarshal(data, &state.Tranches); err != nil {
			return state, fmt.Errorf("tranches must be an array of objects: %w", err)
		}
	}
	return state, nil
}

// --- formatting ---

func formatAccrual(sum *accrual.SummaryResponse) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Claimable: %s\n", sum.Claimable)
	fmt.Fprintf(&sb, "Vested: %s (%s%%)\n", sum.Vested, sum.Progress)
	fmt.Fprintf(&sb, "Remaining: %s\n", sum.Remaining)
	fmt.Fprintf(&sb, "Accrual point: %s\n", sum.AccrualPoint)
	fmt.Fprintf(&sb, "Stream end: %s\n", sum.StreamEnd)
	if len(sum.Tranches) > 0 {
		sb.WriteString("\nTranches:\n")
		for i, t := range sum.Tranches {
			fmt.Fprintf(&sb, "%d. %s claimable %s (paused %ss)\n", i+1, t.Token, t.Claimable, t.PausedDuration)
		}
	}
	return sb.String()
}

func formatRisk(address string, rec *riskstore.RiskRecord, signer string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Business: %s\n", address)
	fmt.Fprintf(&sb, "Risk: %s (score %d/100)\n", rec.Band, rec.Score)
	fmt.Fprintf(&sb, "Last updated: %d\n", rec.LastUpdated)
	if rec.Rationale != "" {
		fmt.Fprintf(&sb, "Rationale: %s\n", rec.Rationale)
	}
	if signer != "" {
		fmt.Fprintf(&sb, "Signer: %s\n", signer)
	}
	fmt.Fprintf(&sb, "Signature: %s\n", rec.Signature)
	return sb.String()
}

func formatPools(pools []*riskstore.PoolMetrics) string {
	if len(pools) == 0 {
		return "No pools configured."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d pools:\n\n", len(pools))
	for i, p := range pools {
		fmt.Fprintf(&sb, "%d. %s (%s) [%s]\n", i+1, p.Name, p.Symbol, p.ID)
		fmt.Fprintf(&sb, "   TVL: %s | APY: %s%% | Investors: %d | Risk: %s\n", p.TVL, p.APY, p.Investors, p.Risk)
	}
	return sb.String()
}

func formatJSON(raw json.RawMessage) string {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return string(raw)
	}
	return pretty.String()
}

// getString extracts a string value from a map, trying multiple key names.
// Numbers are rendered without an exponent.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return strings.TrimSpace(s)
			}
			if f, ok := v.(float64); ok {
				return strconv.FormatFloat(f, 'f', -1, 64)
			}
		}
	}
	return ""
}

// getFloat extracts a float64 value from a map, trying multiple key names.
func getFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if f, ok := v.(float64); ok {
				return f, true
			}
		}
	}
	return 0, false
}
