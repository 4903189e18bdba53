package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// Version is reported to MCP clients during initialization.
var Version = "dev"

// NewMCPServer creates a configured MCP server with all streamvault tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("streamvault", Version)
	client := NewClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolCalculateAccrual, h.HandleCalculateAccrual)
	s.AddTool(ToolGetBusinessRisk, h.HandleGetBusinessRisk)
	s.AddTool(ToolEvaluateBusinessRisk, h.HandleEvaluateBusinessRisk)
	s.AddTool(ToolListPools, h.HandleListPools)

	return s
}
