package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKey is a machine caller credential with its own rate limit. API keys
// authenticate via the X-API-Key header and are limited through a
// KeyTypeAPIKey bucket instead of a per-user one.
type APIKey struct {
	ID                 uuid.UUID `json:"id"`
	Key                string    `json:"key"`
	Name               string    `json:"name"`
	RateLimitPerMinute int       `json:"rate_limit_per_minute"`
	IsActive           bool      `json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
}

// RequestLog is one audit record of a proxied request.
type RequestLog struct {
	ID             uuid.UUID  `json:"id"`
	APIKeyID       *uuid.UUID `json:"api_key_id,omitempty"` // nil for JWT or anonymous callers
	UserID         string     `json:"user_id,omitempty"`
	Method         string     `json:"method"`
	Path           string     `json:"path"`
	StatusCode     int        `json:"status_code"`
	ResponseTimeMs int        `json:"response_time_ms"`
	IPAddress      string     `json:"ip_address"`
	UserAgent      string     `json:"user_agent"`
	CreatedAt      time.Time  `json:"created_at"`
}
