//go:build integration

package riskstore

import (
	"testing"

	"github.com/mbd888/streamvault/internal/testutil"
)

func TestPostgresStore(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	exerciseStore(t, NewPostgresStore(db))
}
