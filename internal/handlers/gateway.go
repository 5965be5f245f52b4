package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/edulms/api-gateway/internal/httputil"
	"github.com/edulms/api-gateway/internal/middleware"
	"github.com/edulms/api-gateway/internal/models"
	"github.com/edulms/api-gateway/internal/proxy"
	"github.com/edulms/api-gateway/internal/router"
	"github.com/edulms/api-gateway/internal/services"
)

// RequestLogger persists audit records. *database.DB satisfies it.
type RequestLogger interface {
	LogRequest(ctx context.Context, log *models.RequestLog) error
}

// GatewayHandler is the proxy core: it resolves the route for an inbound
// request and forwards it. Authentication and rate limiting have already
// run in the middleware chain by the time a request lands here.
type GatewayHandler struct {
	routes    *router.Router
	forwarder *proxy.Forwarder
	audits    RequestLogger
	metrics   *services.MetricsCollector
	logger    *zap.Logger
}

// NewGatewayHandler creates the proxy handler.
func NewGatewayHandler(routes *router.Router, forwarder *proxy.Forwarder, audits RequestLogger, metrics *services.MetricsCollector, logger *zap.Logger) *GatewayHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GatewayHandler{
		routes:    routes,
		forwarder: forwarder,
		audits:    audits,
		metrics:   metrics,
		logger:    logger,
	}
}

// ServeHTTP implements the per-request pipeline.
func (h *GatewayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	method, err := models.ParseMethod(r.Method)
	if err != nil {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		h.audit(r, http.StatusMethodNotAllowed, time.Since(start))
		return
	}

	resolution, err := h.routes.Resolve(r.URL.Path, method)
	if err != nil {
		status := h.writeRoutingError(w, err)
		h.audit(r, status, time.Since(start))
		return
	}

	status := h.forwarder.Forward(w, r, resolution.Endpoint, callerIdentity(r))

	h.audit(r, status, time.Since(start))
}

// callerIdentity lifts the authenticated caller out of the request context
// so downstream services see who the gateway vouched for.
func callerIdentity(r *http.Request) proxy.Identity {
	id := proxy.Identity{UserID: middleware.GetUserID(r.Context())}
	if claims := middleware.GetClaims(r.Context()); claims != nil {
		id.Role = claims.Custom["role"]
	}
	return id
}

func (h *GatewayHandler) writeRoutingError(w http.ResponseWriter, err error) int {
	switch {
	case errors.Is(err, router.ErrRouteNotFound):
		httputil.WriteError(w, http.StatusNotFound, "Route not found")
		return http.StatusNotFound
	case errors.Is(err, router.ErrServiceUnavailable):
		httputil.WriteError(w, http.StatusServiceUnavailable, "Service unavailable")
		return http.StatusServiceUnavailable
	default:
		h.logger.Error("route resolution failed", zap.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "Internal gateway error")
		return http.StatusInternalServerError
	}
}

// audit records the request in the structured log, the metrics collector,
// and the audit table. The audit write runs on its own deadline because
// the request context may already be done.
func (h *GatewayHandler) audit(r *http.Request, status int, duration time.Duration) {
	durationMs := int(duration.Milliseconds())

	userID := middleware.GetUserID(r.Context())
	apiKey := middleware.GetAPIKey(r.Context())

	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Int("duration_ms", durationMs),
		zap.String("client_ip", httputil.ClientIP(r)),
	}
	if userID != "" {
		fields = append(fields, zap.String("user_id", userID))
	}
	if apiKey != nil {
		fields = append(fields, zap.String("api_key", apiKey.Name))
	}

	switch {
	case status >= 500:
		h.logger.Error("proxied request", fields...)
	case status >= 400:
		h.logger.Warn("proxied request", fields...)
	default:
		h.logger.Info("proxied request", fields...)
	}

	if h.metrics != nil {
		h.metrics.RecordRequest(durationMs, status)
	}

	if h.audits == nil {
		return
	}

	entry := &models.RequestLog{
		Method:         r.Method,
		Path:           r.URL.Path,
		StatusCode:     status,
		ResponseTimeMs: durationMs,
		IPAddress:      httputil.ClientIP(r),
		UserAgent:      r.UserAgent(),
		UserID:         userID,
	}
	if apiKey != nil {
		entry.APIKeyID = &apiKey.ID
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.audits.LogRequest(ctx, entry); err != nil {
		h.logger.Warn("couldn't write audit record", zap.Error(err))
	}
}
