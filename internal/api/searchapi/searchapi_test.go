package searchapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BearBump/ScanDock/internal/api"
	"github.com/BearBump/ScanDock/internal/integrations/packagesapi"
	"github.com/BearBump/ScanDock/internal/models"
	"github.com/BearBump/ScanDock/internal/services/search"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type fakeClient struct{}

func (f *fakeClient) TrackingMatches(ctx context.Context, query string) ([]*models.Package, error) {
	return []*models.Package{{ID: 1, TrackingCode: "TBA123"}}, nil
}

func (f *fakeClient) ListByClient(ctx context.Context, query string, page, pageSize int) (*packagesapi.ClientPage, error) {
	return &packagesapi.ClientPage{
		Items:      []*models.Package{{ID: 2, CreatedBy: "Maria Gonzalez"}},
		TotalCount: 1,
	}, nil
}

func (f *fakeClient) Metadata(ctx context.Context, kind string) (json.RawMessage, error) {
	return json.RawMessage(`[{"id":1,"name":"Miami"}]`), nil
}

type fakeLimiter struct {
	n     int64
	limit int64
}

func (f *fakeLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	f.n++
	return f.n <= f.limit, f.n, nil
}

func newTestRouter(rl RateLimiter, perMin int) chi.Router {
	svc := search.New(&fakeClient{}, nil, 0, 0)
	r := chi.NewRouter()
	r.Use(api.Recover)
	New(svc).WithRateLimit(rl, perMin).Register(r)
	return r
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func TestSearch(t *testing.T) {
	r := newTestRouter(nil, 0)

	rec, env := get(t, r, "/api/packages/search?q=TBA123")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, env["success"])

	res := env["result"].(map[string]any)
	require.Equal(t, "tracking", res["kind"])
	require.EqualValues(t, 1, res["total_found"])
}

func TestSearch_EmptyQuery(t *testing.T) {
	r := newTestRouter(nil, 0)

	rec, env := get(t, r, "/api/packages/search?q=")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, false, env["success"])
	require.Equal(t, "validation_error", env["error"])
}

func TestMetadata(t *testing.T) {
	r := newTestRouter(nil, 0)

	rec, env := get(t, r, "/api/packages/metadata/states")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "states", env["kind"])
	require.Len(t, env["items"].([]any), 1)

	rec, env = get(t, r, "/api/packages/metadata/bogus")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "validation_error", env["error"])
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:4242"
	require.Equal(t, "10.0.0.1", clientIP(req))

	// XFF-список: ключ лимитера строится по первому (клиентскому) адресу
	req.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.2, 10.0.0.3")
	require.Equal(t, "1.2.3.4", clientIP(req))

	req.Header.Set("X-Forwarded-For", "5.6.7.8")
	require.Equal(t, "5.6.7.8", clientIP(req))
}

func TestSearch_RateLimited(t *testing.T) {
	r := newTestRouter(&fakeLimiter{limit: 2}, 2)

	for i := 0; i < 2; i++ {
		rec, _ := get(t, r, "/api/packages/search?q=TBA123")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec, env := get(t, r, "/api/packages/search?q=TBA123")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "rate_limited", env["error"])
}
