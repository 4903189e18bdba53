package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/mbd888/streamvault/internal/config"
	"github.com/mbd888/streamvault/internal/riskstore"
	"github.com/mbd888/streamvault/migrations"
)

func newStoreCmd() *cobra.Command {
	storeCmd := &cobra.Command{
		Use:   "store",
		Short: "Inspect and migrate persisted state",
	}

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Copy a JSON snapshot into a bolt or postgres store",
		Long: "Reads a JSON store document (DATA_FILE of the json backend) and writes every " +
			"business, risk record and pool snapshot into the target backend. Existing keys are overwritten.",
		Args: cobra.NoArgs,
		RunE: runStoreImport,
	}
	importCmd.Flags().String("from", config.DefaultDataFile, "source JSON snapshot")
	importCmd.Flags().String("backend", config.BackendBolt, "target backend (json, bolt, postgres)")
	importCmd.Flags().String("bolt-path", config.DefaultBoltPath, "bolt database path")
	importCmd.Flags().String("database-url", os.Getenv("DATABASE_URL"), "postgres DSN")
	importCmd.Flags().String("data-file", "", "target JSON file for the json backend")
	importCmd.Flags().Duration("timeout", 5*time.Minute, "overall import timeout")

	storeCmd.AddCommand(importCmd)
	return storeCmd
}

func runStoreImport(cmd *cobra.Command, _ []string) error {
	logger := newLogger(cmd)
	from, _ := cmd.Flags().GetString("from")
	backend, _ := cmd.Flags().GetString("backend")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	snap, err := riskstore.ReadSnapshotFile(from)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dst, err := openTarget(ctx, cmd, backend, logger)
	if err != nil {
		return err
	}
	defer func() { _ = dst.Close() }()

	stats, err := riskstore.Import(ctx, snap, dst)
	if err != nil {
		return err
	}
	logger.Info("snapshot imported",
		"from", from,
		"backend", backend,
		"businesses", stats.Businesses,
		"risks", stats.Risks,
		"pools", stats.Pools,
	)
	return printJSON(cmd, stats)
}

func openTarget(ctx context.Context, cmd *cobra.Command, backend string, logger *slog.Logger) (riskstore.Store, error) {
	switch backend {
	case config.BackendBolt:
		path, _ := cmd.Flags().GetString("bolt-path")
		return riskstore.OpenBoltStore(path)

	case config.BackendJSON:
		path, _ := cmd.Flags().GetString("data-file")
		if path == "" {
			return nil, errors.New("--data-file is required for the json backend")
		}
		return riskstore.OpenJSONStore(path, logger)

	case config.BackendPostgres:
		dsn, _ := cmd.Flags().GetString("database-url")
		if dsn == "" {
			return nil, errors.New("--database-url (or DATABASE_URL) is required for the postgres backend")
		}
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("connect database: %w", err)
		}
		if err := migrations.Up(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		return riskstore.NewPostgresStore(db), nil

	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}
