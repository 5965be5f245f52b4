package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edulms/api-gateway/internal/config"
	"github.com/edulms/api-gateway/internal/router"
	"github.com/edulms/api-gateway/internal/services"
)

func newTestCacheMiddleware(t *testing.T) (*CacheMiddleware, *miniredis.Miniredis, *services.MetricsCollector) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	routes, err := router.New([]config.RouteEntry{
		{Path: "/api/v1/courses", Method: "GET", Target: "http://course-service:8082/courses", CacheTTL: 2 * time.Minute},
	})
	require.NoError(t, err)

	metrics := services.NewMetricsCollector()
	cacheService := services.NewCacheService(client, time.Minute)
	return NewCacheMiddleware(cacheService, routes, metrics, nil), mr, metrics
}

func TestCacheMissThenHit(t *testing.T) {
	m, _, metrics := newTestCacheMiddleware(t)

	calls := 0
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[]}`))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/courses", nil))
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, 1, calls)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/courses", nil))
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"items":[]}`, rec.Body.String())
	assert.Equal(t, 1, calls, "second request must be served from cache")

	snapshot := metrics.GetSnapshot()
	assert.InDelta(t, 0.5, snapshot.CacheHitRate, 0.001)
}

func TestCacheRespectsRouteTTL(t *testing.T) {
	m, mr, _ := newTestCacheMiddleware(t)

	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/courses", nil))
	require.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	// The entry outlives the one-minute default because the route says 2m.
	mr.FastForward(90 * time.Second)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/courses", nil))
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))

	mr.FastForward(time.Minute)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/courses", nil))
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
}

func TestCacheSkipsNonGET(t *testing.T) {
	m, _, _ := newTestCacheMiddleware(t)

	calls := 0
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte("created"))
	}))

	for range 2 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/courses", nil))
		assert.Empty(t, rec.Header().Get("X-Cache"))
	}
	assert.Equal(t, 2, calls)
}

func TestCacheSkipsErrorResponses(t *testing.T) {
	m, _, _ := newTestCacheMiddleware(t)

	calls := 0
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("downstream broke"))
	}))

	for range 2 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/courses", nil))
		assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	}
	assert.Equal(t, 2, calls, "error responses must not be cached")
}
