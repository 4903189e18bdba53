package traces

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/streamvault/internal/logging"
)

func TestInit_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), "", "test", logging.Discard())
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestStartSpan(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "risk.Evaluate", Subject("0xabc"), Score(42))
	defer span.End()
	assert.NotNil(t, ctx)
	assert.NotNil(t, span)
}

func TestAttributes(t *testing.T) {
	assert.Equal(t, "risk.subject", string(Subject("0xabc").Key))
	assert.Equal(t, "MEDIUM", Band("MEDIUM").Value.AsString())
	assert.Equal(t, int64(42), Score(42).Value.AsInt64())
	assert.Equal(t, "pool.id", string(PoolID("coffee-revenue").Key))
}
