package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/edulms/api-gateway/internal/httputil"
	"github.com/edulms/api-gateway/internal/middleware"
	"github.com/edulms/api-gateway/internal/models"
	"github.com/edulms/api-gateway/internal/token"
)

// AuthHandler adapts the auth endpoints onto the identity service: it
// forwards credential checks downstream and wraps successful results in
// gateway-issued token pairs.
type AuthHandler struct {
	tokens         *token.Service
	client         *http.Client
	authServiceURL string
	userServiceURL string
	logger         *zap.Logger
}

// NewAuthHandler creates the auth handler. authServiceURL receives login
// forwards; userServiceURL serves the /me lookup.
func NewAuthHandler(tokens *token.Service, client *http.Client, authServiceURL, userServiceURL string, logger *zap.Logger) *AuthHandler {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{
		tokens:         tokens,
		client:         client,
		authServiceURL: authServiceURL,
		userServiceURL: userServiceURL,
		logger:         logger,
	}
}

// tokenPayload is the wire shape of an issued token pair.
type tokenPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
}

func newTokenPayload(t models.JwtToken) tokenPayload {
	return tokenPayload{
		AccessToken:  t.AccessToken(),
		RefreshToken: t.RefreshToken(),
		TokenType:    "Bearer",
		ExpiresIn:    int64(t.ExpiresIn().Seconds()),
		ExpiresAt:    t.ExpiresAt().Unix(),
	}
}

// identityUser is the part of the identity service's response the gateway
// needs; the full user object is echoed back to the client untouched.
type identityUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Login forwards credentials to the identity service and issues a token
// pair for the authenticated user.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, h.authServiceURL+"/login", bytes.NewReader(body))
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "Internal gateway error")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Warn("identity service unreachable", zap.Error(err))
		httputil.WriteError(w, http.StatusServiceUnavailable, "Service unavailable")
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "Service unavailable")
		return
	}

	if resp.StatusCode != http.StatusOK {
		httputil.WriteError(w, resp.StatusCode, downstreamMessage(respBody, "Invalid credentials"))
		return
	}

	var authResult struct {
		User json.RawMessage `json:"user"`
	}
	var user identityUser
	if err := json.Unmarshal(respBody, &authResult); err != nil || authResult.User == nil {
		h.logger.Error("unexpected identity service response", zap.Error(err))
		httputil.WriteError(w, http.StatusBadGateway, "Service error")
		return
	}
	if err := json.Unmarshal(authResult.User, &user); err != nil || user.ID == "" {
		h.logger.Error("identity response missing user id")
		httputil.WriteError(w, http.StatusBadGateway, "Service error")
		return
	}

	pair, err := h.tokens.Generate(r.Context(), user.ID, map[string]string{
		"email": user.Email,
		"role":  user.Role,
	})
	if err != nil {
		h.logger.Error("token generation failed", zap.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "Internal gateway error")
		return
	}

	httputil.WriteData(w, http.StatusOK, map[string]any{
		"user":  authResult.User,
		"token": newTokenPayload(pair),
	})
}

// Refresh rotates a refresh token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		httputil.WriteError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	pair, err := h.tokens.Refresh(r.Context(), req.RefreshToken)
	if errors.Is(err, token.ErrInvalidToken) {
		httputil.WriteError(w, http.StatusUnauthorized, "Invalid or missing token")
		return
	}
	if err != nil {
		h.logger.Error("token refresh failed", zap.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "Internal gateway error")
		return
	}

	httputil.WriteData(w, http.StatusOK, map[string]any{
		"token": newTokenPayload(pair),
	})
}

// Logout blacklists the caller's access token. Logging out without a token
// is not an error; the outcome is the same.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if accessToken, ok := middleware.BearerToken(r); ok {
		if err := h.tokens.Blacklist(r.Context(), accessToken); err != nil {
			h.logger.Error("couldn't blacklist token", zap.Error(err))
			httputil.WriteError(w, http.StatusInternalServerError, "Internal gateway error")
			return
		}
	}

	httputil.WriteData(w, http.StatusOK, map[string]string{
		"message": "Successfully logged out",
	})
}

// Me returns the caller's profile from the user service.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	accessToken, ok := middleware.BearerToken(r)
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "Invalid or missing token")
		return
	}
	claims, err := h.tokens.Validate(r.Context(), accessToken)
	if err != nil {
		httputil.WriteError(w, http.StatusUnauthorized, "Invalid or missing token")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, h.userServiceURL+"/users/"+claims.UserID, nil)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "Internal gateway error")
		return
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Warn("user service unreachable", zap.Error(err))
		httputil.WriteError(w, http.StatusServiceUnavailable, "Service unavailable")
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "Service unavailable")
		return
	}

	if resp.StatusCode != http.StatusOK {
		httputil.WriteError(w, resp.StatusCode, downstreamMessage(respBody, "Service error"))
		return
	}

	httputil.WriteData(w, http.StatusOK, map[string]any{
		"user": json.RawMessage(respBody),
	})
}

// downstreamMessage pulls the message field from a downstream error body,
// falling back when the body has some other shape.
func downstreamMessage(body []byte, fallback string) string {
	var parsed struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Message != "" {
		return parsed.Message
	}
	return fallback
}
