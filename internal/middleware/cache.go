package middleware

import (
	"bytes"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/edulms/api-gateway/internal/models"
	"github.com/edulms/api-gateway/internal/router"
	"github.com/edulms/api-gateway/internal/services"
)

// CacheMiddleware serves cached copies of successful GET responses. The TTL
// comes from the matched route when it declares one, otherwise the cache
// service default applies. Cache errors never fail the request; they just
// skip the cache.
type CacheMiddleware struct {
	cacheService *services.CacheService
	routes       *router.Router
	metrics      *services.MetricsCollector
	logger       *zap.Logger
}

// NewCacheMiddleware creates the response cache middleware.
func NewCacheMiddleware(cacheService *services.CacheService, routes *router.Router, metrics *services.MetricsCollector, logger *zap.Logger) *CacheMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheMiddleware{
		cacheService: cacheService,
		routes:       routes,
		metrics:      metrics,
		logger:       logger,
	}
}

// responseWriter captures the downstream response so it can be cached.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
		body:           &bytes.Buffer{},
	}
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}

// Middleware wraps next with GET response caching.
func (m *CacheMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		cacheKey := m.cacheService.GenerateCacheKey(r.Method, r.URL.Path, r.URL.RawQuery)

		cached, err := m.cacheService.Get(r.Context(), cacheKey)
		if err != nil {
			m.logger.Warn("cache lookup failed", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		if cached != nil {
			if m.metrics != nil {
				m.metrics.RecordCacheHit()
			}
			w.Header().Set("X-Cache", "HIT")
			if cached.ContentType != "" {
				w.Header().Set("Content-Type", cached.ContentType)
			}
			w.WriteHeader(cached.StatusCode)
			_, _ = w.Write(cached.Body)
			return
		}

		if m.metrics != nil {
			m.metrics.RecordCacheMiss()
		}
		w.Header().Set("X-Cache", "MISS")

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		if rw.statusCode != http.StatusOK || rw.body.Len() == 0 {
			return
		}

		entry := &services.CachedResponse{
			StatusCode:  rw.statusCode,
			ContentType: rw.Header().Get("Content-Type"),
			Body:        rw.body.Bytes(),
		}
		if err := m.cacheService.Set(r.Context(), cacheKey, entry, m.routeTTL(r)); err != nil {
			m.logger.Warn("couldn't cache response", zap.Error(err))
		}
	})
}

// routeTTL returns the matched route's cache TTL, or zero for the default.
func (m *CacheMiddleware) routeTTL(r *http.Request) time.Duration {
	if m.routes == nil {
		return 0
	}
	method, err := models.ParseMethod(r.Method)
	if err != nil {
		return 0
	}
	res, err := m.routes.Resolve(r.URL.Path, method)
	if err != nil {
		return 0
	}
	return res.CacheTTL
}
