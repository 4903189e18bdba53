package pools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/streamvault/internal/riskstore"
)

var now = time.Unix(1700000000, 0).UTC()

func testConfig() Config {
	return Config{
		ID:           "p1",
		Name:         "Pool One",
		Symbol:       "P1",
		RevenueToken: "0xAbCdEf0123456789aBcDeF0123456789AbCdEf01",
		BaseTVL:      decimal.RequireFromString("1000000"),
		BaseAPY:      decimal.RequireFromString("8.5"),
		Investors:    10,
	}
}

func TestDerive(t *testing.T) {
	tests := []struct {
		band    string
		wantAPY string
	}{
		{"LOW", "8.50"},
		{"MEDIUM", "11.00"},
		{"HIGH", "14.50"},
	}
	for _, tt := range tests {
		t.Run(tt.band, func(t *testing.T) {
			m := Derive(testConfig(), &riskstore.RiskRecord{Score: 55, Band: tt.band}, now)
			assert.Equal(t, tt.band, m.Risk)
			assert.Equal(t, tt.wantAPY, m.APY)
			assert.Equal(t, "1000000", m.TVL)
			assert.Equal(t, 10, m.Investors)
			require.NotNil(t, m.RiskScore)
			assert.Equal(t, uint8(55), *m.RiskScore)
		})
	}
}

func TestDerive_Unrated(t *testing.T) {
	m := Derive(testConfig(), nil, now)
	assert.Equal(t, Unrated, m.Risk)
	assert.Equal(t, "8.50", m.APY)
	assert.Nil(t, m.RiskScore)
	assert.Equal(t, now, m.UpdatedAt)
}

func TestDerive_RoundsToTwoPlaces(t *testing.T) {
	cfg := testConfig()
	cfg.BaseAPY = decimal.RequireFromString("6.125")
	m := Derive(cfg, &riskstore.RiskRecord{Band: "MEDIUM"}, now)
	assert.Equal(t, "8.63", m.APY)
}

func TestLoadConfigs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pools.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id":"a","name":"A","symbol":"A","revenueToken":"0x1111111111111111111111111111111111111111","baseTvl":"500","baseApy":7.25,"investors":3}
	]`), 0o600))

	cfgs, err := LoadConfigs(path)
	require.NoError(t, err)
	require.Len(t, cfgs, 1)
	assert.Equal(t, "7.25", cfgs[0].BaseAPY.String())
	assert.Equal(t, "500", cfgs[0].BaseTVL.String())

	bad := map[string]string{
		"not json":  `{`,
		"no id":     `[{"revenueToken":"0x1111111111111111111111111111111111111111"}]`,
		"bad token": `[{"id":"a","revenueToken":"0x12"}]`,
		"duplicate": `[{"id":"a","revenueToken":"0x1111111111111111111111111111111111111111"},{"id":"a","revenueToken":"0x1111111111111111111111111111111111111111"}]`,
		"negative":  `[{"id":"a","revenueToken":"0x1111111111111111111111111111111111111111","baseApy":"-1"}]`,
	}
	for name, body := range bad {
		t.Run(name, func(t *testing.T) {
			p := filepath.Join(dir, name+".json")
			require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
			_, err := LoadConfigs(p)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestDefaultConfigsAreValid(t *testing.T) {
	for _, c := range DefaultConfigs() {
		assert.NoError(t, c.Validate(), c.ID)
	}
}

func TestService_ListWritesThrough(t *testing.T) {
	ctx := context.Background()
	store := riskstore.NewMemoryStore()
	cfg := testConfig()
	require.NoError(t, store.PutRisk(ctx, cfg.RevenueToken, &riskstore.RiskRecord{Score: 80, Band: "HIGH"}))

	other := testConfig()
	other.ID = "p2"
	other.RevenueToken = "0x2222222222222222222222222222222222222222"

	svc := NewService(store, []Config{cfg, other})
	svc.now = func() time.Time { return now }

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "HIGH", list[0].Risk)
	assert.Equal(t, Unrated, list[1].Risk)

	stored, err := store.GetPool(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "14.50", stored.APY)

	all, err := store.ListPools(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestService_MetricsNotFound(t *testing.T) {
	svc := NewService(riskstore.NewMemoryStore(), []Config{testConfig()})
	_, err := svc.Metrics(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(NewService(riskstore.NewMemoryStore(), []Config{testConfig()})).RegisterRoutes(r.Group("/api"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/pools", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Pools []riskstore.PoolMetrics `json:"pools"`
		Count int                     `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, "p1", list.Pools[0].ID)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/pools/p1/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/pools/nope/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
