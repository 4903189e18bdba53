package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the streamvault MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolCalculateAccrual = mcp.NewTool("calculate_accrual",
	mcp.WithDescription(
		"Compute how much of a token stream is claimable at a given timestamp. "+
			"Runs locally with exact 256-bit integer arithmetic, so no server is needed. "+
			"All amounts and times are decimal strings or 0x-prefixed hex."),
	mcp.WithString("total_amount",
		mcp.Required(),
		mcp.Description("Total tokens in the stream, in base units")),
	mcp.WithString("claimed_amount",
		mcp.Description("Tokens already claimed, in base units. Defaults to 0.")),
	mcp.WithString("start_time",
		mcp.Required(),
		mcp.Description("Stream start, unix seconds")),
	mcp.WithString("duration",
		mcp.Required(),
		mcp.Description("Stream length in seconds")),
	mcp.WithString("last_claimed",
		mcp.Description("Unix seconds of the last claim, or 0 if never claimed")),
	mcp.WithString("stop_time",
		mcp.Description("Unix seconds the stream was stopped early, or 0")),
	mcp.WithBoolean("is_paused",
		mcp.Description("Whether the stream is currently paused")),
	mcp.WithString("pause_start",
		mcp.Description("Unix seconds the current pause began, when is_paused is true")),
	mcp.WithString("paused_duration",
		mcp.Description("Total seconds of completed pauses")),
	mcp.WithString("timestamp",
		mcp.Required(),
		mcp.Description("Evaluate the stream at this unix time")),
	mcp.WithArray("tranches",
		mcp.Description("Optional per-token tranches: objects with token, totalAmount, claimedAmount, pauseAccumulated and pauseCarry"),
		mcp.Items(map[string]any{"type": "object"})),
)

var ToolGetBusinessRisk = mcp.NewTool("get_business_risk",
	mcp.WithDescription(
		"Get the latest signed risk assessment for a business revenue token. "+
			"Shows the 0-100 score, the LOW/MEDIUM/HIGH band, when it was scored, and the signature."),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("The business token address (e.g. '0x1234...')")),
)

var ToolEvaluateBusinessRisk = mcp.NewTool("evaluate_business_risk",
	mcp.WithDescription(
		"Re-score a business with the external risk model, sign the result with the service key, and store it. "+
			"Optional overrides replace the registered profile values for this evaluation only."),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("The business token address (e.g. '0x1234...')")),
	mcp.WithNumber("monthly_revenue",
		mcp.Description("Override monthly revenue in USD")),
	mcp.WithNumber("revenue_volatility",
		mcp.Description("Override revenue volatility as a percentage between 0 and 100")),
	mcp.WithNumber("missed_payments",
		mcp.Description("Override the count of missed payments")),
)

var ToolListPools = mcp.NewTool("list_pools",
	mcp.WithDescription(
		"List the revenue investment pools with TVL, APY, investor count, and the risk band of the business behind each pool."),
	mcp.WithString("pool_id",
		mcp.Description("Only return this pool (e.g. 'coffee-revenue')")),
)
