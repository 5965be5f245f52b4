package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/edulms/api-gateway/internal/httputil"
	"github.com/edulms/api-gateway/internal/models"
	"github.com/edulms/api-gateway/internal/services"
	"github.com/edulms/api-gateway/internal/token"
)

// APIKeyStore resolves API key credentials. *database.DB satisfies it.
type APIKeyStore interface {
	GetAPIKeyByKey(ctx context.Context, key string) (*models.APIKey, error)
}

// AuthMiddleware authenticates callers before they reach the proxy. Two
// credential kinds are accepted: a Bearer access token validated by the
// token service, or an X-API-Key header validated against the key store.
// Paths listed as public pass through unauthenticated.
type AuthMiddleware struct {
	tokens      *token.Service
	keys        APIKeyStore
	metrics     *services.MetricsCollector
	publicPaths []string
	logger      *zap.Logger
}

// NewAuthMiddleware creates the authentication middleware.
func NewAuthMiddleware(tokens *token.Service, keys APIKeyStore, metrics *services.MetricsCollector, publicPaths []string, logger *zap.Logger) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{
		tokens:      tokens,
		keys:        keys,
		metrics:     metrics,
		publicPaths: publicPaths,
		logger:      logger,
	}
}

// Middleware wraps next with authentication.
func (m *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.isPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if apiKey := r.Header.Get("X-API-Key"); apiKey != "" && m.keys != nil {
			m.authenticateAPIKey(w, r, next, apiKey)
			return
		}

		accessToken, ok := BearerToken(r)
		if !ok {
			m.reject(w, r, "missing credentials")
			return
		}

		claims, err := m.tokens.Validate(r.Context(), accessToken)
		if err != nil {
			m.reject(w, r, "token validation failed")
			return
		}

		ctx := context.WithValue(r.Context(), userIDContextKey, claims.UserID)
		ctx = context.WithValue(ctx, claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) authenticateAPIKey(w http.ResponseWriter, r *http.Request, next http.Handler, apiKey string) {
	key, err := m.keys.GetAPIKeyByKey(r.Context(), apiKey)
	if err != nil {
		m.logger.Error("API key lookup failed", zap.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "Internal gateway error")
		return
	}
	if key == nil || !key.IsActive {
		m.reject(w, r, "unknown or inactive API key")
		return
	}

	ctx := context.WithValue(r.Context(), apiKeyContextKey, key)
	next.ServeHTTP(w, r.WithContext(ctx))
}

// reject answers 401. The body never says which check failed; the detail
// stays in the log.
func (m *AuthMiddleware) reject(w http.ResponseWriter, r *http.Request, reason string) {
	m.logger.Warn("rejected request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("reason", reason))
	if m.metrics != nil {
		m.metrics.RecordAuthFailure()
	}
	httputil.WriteError(w, http.StatusUnauthorized, "Invalid or missing token")
}

func (m *AuthMiddleware) isPublic(path string) bool {
	for _, p := range m.publicPaths {
		if path == p || strings.HasPrefix(path, strings.TrimSuffix(p, "/")+"/") {
			return true
		}
	}
	return false
}

// BearerToken extracts the access token from the Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	value, found := strings.CutPrefix(header, "Bearer ")
	if !found || value == "" {
		return "", false
	}
	return value, true
}
