package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edulms/api-gateway/internal/httputil"
	"github.com/edulms/api-gateway/internal/models"
	"github.com/edulms/api-gateway/internal/router"
	"github.com/edulms/api-gateway/internal/services"
)

// APIKeyManager is the credential persistence surface the admin API needs.
// *database.DB satisfies it.
type APIKeyManager interface {
	CreateAPIKey(ctx context.Context, apiKey *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]models.APIKey, error)
	DeleteAPIKey(ctx context.Context, id uuid.UUID) error
	ToggleAPIKey(ctx context.Context, id uuid.UUID) error
}

// AdminHandler serves the management endpoints: API key lifecycle, backend
// health flags, and cache invalidation.
type AdminHandler struct {
	keys   APIKeyManager
	routes *router.Router
	cache  *services.CacheService
	logger *zap.Logger
}

// NewAdminHandler creates the admin handler.
func NewAdminHandler(keys APIKeyManager, routes *router.Router, cache *services.CacheService, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{
		keys:   keys,
		routes: routes,
		cache:  cache,
		logger: logger,
	}
}

type createAPIKeyRequest struct {
	Name               string `json:"name"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute"`
}

// CreateAPIKey mints a new API key. The key value is generated server-side
// and returned exactly once, in the creation response.
func (h *AdminHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req createAPIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		httputil.WriteError(w, http.StatusBadRequest, "Validation failed", "name is required")
		return
	}
	if req.RateLimitPerMinute <= 0 {
		req.RateLimitPerMinute = 100
	}

	apiKey := &models.APIKey{
		Key:                uuid.New().String(),
		Name:               req.Name,
		RateLimitPerMinute: req.RateLimitPerMinute,
		IsActive:           true,
		CreatedAt:          time.Now(),
	}

	if err := h.keys.CreateAPIKey(r.Context(), apiKey); err != nil {
		h.logger.Error("couldn't create API key", zap.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "Internal gateway error")
		return
	}

	h.logger.Info("created API key", zap.String("name", apiKey.Name), zap.String("id", apiKey.ID.String()))
	httputil.WriteData(w, http.StatusCreated, apiKey)
}

// ListAPIKeys returns all API keys, active and disabled.
func (h *AdminHandler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	keys, err := h.keys.ListAPIKeys(r.Context())
	if err != nil {
		h.logger.Error("couldn't list API keys", zap.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "Internal gateway error")
		return
	}

	httputil.WriteData(w, http.StatusOK, keys)
}

// DeleteAPIKey removes an API key by id.
func (h *AdminHandler) DeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	id, ok := h.keyID(w, r)
	if !ok {
		return
	}

	if err := h.keys.DeleteAPIKey(r.Context(), id); err != nil {
		h.logger.Error("couldn't delete API key", zap.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "Internal gateway error")
		return
	}

	h.logger.Info("deleted API key", zap.String("id", id.String()))
	httputil.WriteData(w, http.StatusOK, map[string]string{"message": "API key deleted"})
}

// ToggleAPIKey flips an API key between active and disabled.
func (h *AdminHandler) ToggleAPIKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	id, ok := h.keyID(w, r)
	if !ok {
		return
	}

	if err := h.keys.ToggleAPIKey(r.Context(), id); err != nil {
		h.logger.Error("couldn't toggle API key", zap.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "Internal gateway error")
		return
	}

	h.logger.Info("toggled API key", zap.String("id", id.String()))
	httputil.WriteData(w, http.StatusOK, map[string]string{"message": "API key toggled"})
}

func (h *AdminHandler) keyID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idStr := r.URL.Query().Get("id")
	if idStr == "" {
		httputil.WriteError(w, http.StatusBadRequest, "Validation failed", "id is required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "Validation failed", "id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// Backends reports the health flag of every backend host the route table
// points at.
func (h *AdminHandler) Backends(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	httputil.WriteData(w, http.StatusOK, h.routes.Hosts())
}

// SetBackendHealth marks a backend host healthy or unhealthy. Requests
// routed to an unhealthy host are rejected with 503 without being forwarded.
func (h *AdminHandler) SetBackendHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	host := r.URL.Query().Get("host")
	if host == "" {
		httputil.WriteError(w, http.StatusBadRequest, "Validation failed", "host is required")
		return
	}
	healthy, err := strconv.ParseBool(r.URL.Query().Get("healthy"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "Validation failed", "healthy must be true or false")
		return
	}

	if !h.routes.SetHealth(host, healthy) {
		httputil.WriteError(w, http.StatusNotFound, "Unknown backend host")
		return
	}

	h.logger.Info("backend health changed", zap.String("host", host), zap.Bool("healthy", healthy))
	httputil.WriteData(w, http.StatusOK, map[string]any{"host": host, "healthy": healthy})
}

// ClearCache drops every cached response.
func (h *AdminHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := h.cache.Clear(r.Context()); err != nil {
		h.logger.Error("couldn't clear cache", zap.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "Internal gateway error")
		return
	}

	h.logger.Info("response cache cleared")
	httputil.WriteData(w, http.StatusOK, map[string]string{"message": "Cache cleared"})
}
