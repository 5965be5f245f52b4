package middleware

import (
	"context"

	"github.com/edulms/api-gateway/internal/models"
	"github.com/edulms/api-gateway/internal/token"
)

type contextKey string

const (
	userIDContextKey contextKey = "user_id"
	claimsContextKey contextKey = "claims"
	apiKeyContextKey contextKey = "api_key"
)

// GetUserID returns the authenticated user id, or "" for unauthenticated
// and API-key callers.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDContextKey).(string); ok {
		return id
	}
	return ""
}

// GetClaims returns the validated access token claims, if any.
func GetClaims(ctx context.Context) *token.Claims {
	if claims, ok := ctx.Value(claimsContextKey).(*token.Claims); ok {
		return claims
	}
	return nil
}

// GetAPIKey returns the authenticated API key, if the caller used one.
func GetAPIKey(ctx context.Context) *models.APIKey {
	if key, ok := ctx.Value(apiKeyContextKey).(*models.APIKey); ok {
		return key
	}
	return nil
}
