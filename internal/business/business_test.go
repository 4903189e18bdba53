package business

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/streamvault/internal/riskstore"
	"github.com/mbd888/streamvault/internal/validation"
)

const addr = "0xAbCdEf0123456789aBcDeF0123456789AbCdEf01"

func validRequest() RegisterRequest {
	return RegisterRequest{
		Address:           addr,
		Name:              "Acme Coffee",
		Industry:          "food",
		MonthlyRevenue:    42000,
		RevenueVolatility: 12,
		ContactEmail:      "ops@acme.io",
	}
}

type recorder struct{ profiles []*riskstore.BusinessProfile }

func (r *recorder) BusinessRegistered(_ context.Context, p *riskstore.BusinessProfile) {
	r.profiles = append(r.profiles, p)
}

func TestService_RegisterKeepsCreatedAt(t *testing.T) {
	store := riskstore.NewMemoryStore()
	svc := NewService(store)
	first := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc.now = func() time.Time { return first }

	p, err := svc.Register(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, first, p.CreatedAt)

	svc.now = func() time.Time { return first.Add(24 * time.Hour) }
	req := validRequest()
	req.Address = strings.ToLower(addr)
	req.MonthlyRevenue = 90000
	p, err = svc.Register(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, p.CreatedAt)

	got, err := svc.Get(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, 90000.0, got.MonthlyRevenue)
	assert.Equal(t, first, got.CreatedAt)
}

func TestService_RegisterTwiceIsOneRecord(t *testing.T) {
	path := t.TempDir() + "/data.json"
	store, err := riskstore.OpenJSONStore(path, nil)
	require.NoError(t, err)
	svc := NewService(store)

	_, err = svc.Register(context.Background(), validRequest())
	require.NoError(t, err)
	_, err = svc.Register(context.Background(), validRequest())
	require.NoError(t, err)

	snap, err := riskstore.ReadSnapshotFile(path)
	require.NoError(t, err)
	require.Len(t, snap.Businesses, 1)
	assert.Contains(t, snap.Businesses, strings.ToLower(addr))
}

func TestService_RegisterValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RegisterRequest)
		field  string
	}{
		{"missing address", func(r *RegisterRequest) { r.Address = "" }, "address"},
		{"bad address", func(r *RegisterRequest) { r.Address = "0x123" }, "address"},
		{"missing name", func(r *RegisterRequest) { r.Name = "   " }, "name"},
		{"long name", func(r *RegisterRequest) { r.Name = strings.Repeat("a", 101) }, "name"},
		{"long industry", func(r *RegisterRequest) { r.Industry = strings.Repeat("b", 101) }, "industry"},
		{"negative revenue", func(r *RegisterRequest) { r.MonthlyRevenue = -1 }, "monthlyRevenue"},
		{"volatility too high", func(r *RegisterRequest) { r.RevenueVolatility = 100.5 }, "revenueVolatility"},
		{"bad email", func(r *RegisterRequest) { r.ContactEmail = "not-an-email" }, "contactEmail"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := riskstore.NewMemoryStore()
			svc := NewService(store)
			req := validRequest()
			tt.mutate(&req)

			_, err := svc.Register(context.Background(), req)
			var verrs validation.ValidationErrors
			require.ErrorAs(t, err, &verrs)
			assert.Equal(t, tt.field, verrs[0].Field)

			got, _ := store.GetBusiness(context.Background(), addr)
			assert.Nil(t, got, "no write on validation failure")
		})
	}
}

func TestService_RegisterNotifies(t *testing.T) {
	rec := &recorder{}
	svc := NewService(riskstore.NewMemoryStore()).WithNotifier(rec)
	_, err := svc.Register(context.Background(), validRequest())
	require.NoError(t, err)
	require.Len(t, rec.profiles, 1)
	assert.Equal(t, "Acme Coffee", rec.profiles[0].Name)
}

func TestService_Get(t *testing.T) {
	svc := NewService(riskstore.NewMemoryStore())

	_, err := svc.Get(context.Background(), addr)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Get(context.Background(), "0xnope")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func setupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(NewService(riskstore.NewMemoryStore())).RegisterRoutes(r.Group("/api"))
	return r
}

func TestHandler_RegisterAndGet(t *testing.T) {
	r := setupRouter()

	body, _ := json.Marshal(validRequest())
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/business/register", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/business/"+strings.ToLower(addr), nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Business riskstore.BusinessProfile `json:"business"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Acme Coffee", resp.Business.Name)
}

func TestHandler_Errors(t *testing.T) {
	r := setupRouter()

	tests := []struct {
		method, path, body string
		status             int
		code               string
	}{
		{"POST", "/api/business/register", `{bad`, http.StatusBadRequest, "invalid_request"},
		{"POST", "/api/business/register", `{"address":"0x1"}`, http.StatusBadRequest, "validation_error"},
		{"GET", "/api/business/0x1", "", http.StatusBadRequest, "invalid_address"},
		{"GET", "/api/business/" + addr, "", http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		assert.Equal(t, tt.status, w.Code, tt.path)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, tt.code, resp["error"])
	}
}
