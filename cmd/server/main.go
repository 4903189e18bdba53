// Command server runs the streamvault HTTP API: local stream accrual, signed
// business risk records and revenue pool metrics.
package main

import (
	"context"
	"log/slog"
	"os"
	"runtime"

	"github.com/mbd888/streamvault/internal/config"
	"github.com/mbd888/streamvault/internal/logging"
	"github.com/mbd888/streamvault/internal/server"
)

// Set by ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// text at info until LOG_LEVEL and LOG_FORMAT are read
	logger := logging.New("info", "text")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid streamvault configuration", "error", err)
		os.Exit(1)
	}

	logger = logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info("streamvault starting",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
		"go", runtime.Version(),
	)
	logStartup(logger, cfg)

	server.Version = Version
	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to build risk service", "error", err)
		os.Exit(1)
	}

	if err := srv.Run(context.Background()); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// logStartup records the settings that decide where state lives and how
// evaluations behave. The signing key and database credentials are never logged.
func logStartup(logger *slog.Logger, cfg *config.Config) {
	attrs := []any{
		"env", cfg.Env,
		"port", cfg.Port,
		"store_backend", cfg.StoreBackend,
		"scorer_url", cfg.ScorerURL,
		"scorer_timeout", cfg.ScorerTimeout.String(),
		"scorer_max_attempts", cfg.ScorerMaxAttempts,
		"rate_limit_per_minute", cfg.RateLimitPerMinute,
		"tracing", cfg.OTLPEndpoint != "",
	}
	switch cfg.StoreBackend {
	case config.BackendBolt:
		attrs = append(attrs, "bolt_path", cfg.BoltPath)
	case config.BackendPostgres:
	default:
		attrs = append(attrs, "data_file", cfg.DataFile)
	}
	if cfg.PoolsFile != "" {
		attrs = append(attrs, "pools_file", cfg.PoolsFile)
	}
	logger.Info("risk service configuration", attrs...)
}
