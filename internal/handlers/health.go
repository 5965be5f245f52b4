package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/edulms/api-gateway/internal/httputil"
	"github.com/edulms/api-gateway/internal/ratelimit"
	"github.com/edulms/api-gateway/internal/services"
)

// Pinger is the connectivity probe the health check runs against the
// database. *database.DB satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness and metrics endpoints.
type HealthHandler struct {
	db      Pinger
	redis   *redis.Client
	limiter *ratelimit.Limiter
	metrics *services.MetricsCollector
	logger  *zap.Logger
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(db Pinger, redisClient *redis.Client, limiter *ratelimit.Limiter, metrics *services.MetricsCollector, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		db:      db,
		redis:   redisClient,
		limiter: limiter,
		metrics: metrics,
		logger:  logger,
	}
}

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

// HealthCheck probes the gateway's dependencies. Any unhealthy dependency
// degrades the overall status and turns the response into a 503 so load
// balancers stop sending traffic here.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
		Services:  make(map[string]string),
	}

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			health.Services["postgresql"] = "unhealthy: " + err.Error()
			health.Status = "degraded"
			h.logger.Warn("postgres health check failed", zap.Error(err))
		} else {
			health.Services["postgresql"] = "healthy"
		}
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			health.Services["redis"] = "unhealthy: " + err.Error()
			health.Status = "degraded"
			h.logger.Warn("redis health check failed", zap.Error(err))
		} else {
			health.Services["redis"] = "healthy"
		}
	}

	if h.limiter != nil && h.limiter.Degraded() {
		health.Services["rate_limiter"] = "degraded: local fallback active"
		health.Status = "degraded"
	}

	status := http.StatusOK
	if health.Status == "degraded" {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteData(w, status, health)
}

// GetMetrics returns the in-process counters.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	httputil.WriteData(w, http.StatusOK, h.metrics.GetSnapshot())
}
