package main

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mbd888/streamvault/internal/config"
)

func TestLogStartup(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	logStartup(logger, &config.Config{
		Env:              "production",
		StoreBackend:     config.BackendBolt,
		BoltPath:         "/var/lib/streamvault/risk.db",
		DatabaseURL:      "postgres://sv:secret@db:5432/sv",
		SignerPrivateKey: "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291",
		PoolsFile:        "pools.json",
		OTLPEndpoint:     "otel:4317",
	})

	out := buf.String()
	assert.Contains(t, out, `"bolt_path":"/var/lib/streamvault/risk.db"`)
	assert.Contains(t, out, `"pools_file":"pools.json"`)
	assert.Contains(t, out, `"tracing":true`)
	assert.NotContains(t, out, "data_file")
	assert.NotContains(t, out, "secret")
	assert.NotContains(t, out, "b71c71a6")
}
