// streamvault MCP server - exposes accrual math and business risk as MCP tools for LLMs
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/mbd888/streamvault/internal/mcpserver"
)

// Version is set by ldflags
var Version = "dev"

func main() {
	cfg := mcpserver.Config{
		APIURL: envOrDefault("STREAMVAULT_API_URL", "http://localhost:8080"),
	}
	if v := os.Getenv("STREAMVAULT_API_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid STREAMVAULT_API_TIMEOUT: %v\n", err)
			os.Exit(1)
		}
		cfg.Timeout = d
	}

	mcpserver.Version = Version
	s := mcpserver.NewMCPServer(cfg)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
