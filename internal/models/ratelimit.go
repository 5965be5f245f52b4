package models

import (
	"errors"
	"fmt"
	"time"
)

// Rate limit value object errors.
var (
	ErrEmptyRateLimitIdentifier = errors.New("rate limit identifier must be non-empty")
	ErrInvalidRateLimitResult   = errors.New("invalid rate limit result")
)

// RateLimitKeyType scopes a rate-limit bucket.
type RateLimitKeyType string

const (
	KeyTypeUser   RateLimitKeyType = "user"
	KeyTypeIP     RateLimitKeyType = "ip"
	KeyTypeAPIKey RateLimitKeyType = "api_key"
	KeyTypeGlobal RateLimitKeyType = "global"
)

// RateLimitKey identifies a rate-limit bucket. It is a pure lookup key;
// counter state lives in the shared store, addressed by CacheKey.
type RateLimitKey struct {
	identifier string
	keyType    RateLimitKeyType
}

// UserKey builds a per-user bucket key.
func UserKey(userID string) (RateLimitKey, error) {
	return newRateLimitKey(userID, KeyTypeUser)
}

// IPKey builds a per-client-IP bucket key.
func IPKey(ip string) (RateLimitKey, error) {
	return newRateLimitKey(ip, KeyTypeIP)
}

// APIKeyKey builds a per-API-key bucket key.
func APIKeyKey(apiKey string) (RateLimitKey, error) {
	return newRateLimitKey(apiKey, KeyTypeAPIKey)
}

// GlobalKey returns the single gateway-wide bucket key.
func GlobalKey() RateLimitKey {
	return RateLimitKey{identifier: "global", keyType: KeyTypeGlobal}
}

func newRateLimitKey(identifier string, keyType RateLimitKeyType) (RateLimitKey, error) {
	if identifier == "" {
		return RateLimitKey{}, ErrEmptyRateLimitIdentifier
	}
	return RateLimitKey{identifier: identifier, keyType: keyType}, nil
}

// Identifier returns the key's identifier.
func (k RateLimitKey) Identifier() string {
	return k.identifier
}

// Type returns the key's scope.
func (k RateLimitKey) Type() RateLimitKeyType {
	return k.keyType
}

// CacheKey derives the string that addresses this bucket in the counter
// store: "rate_limit:{type}:{identifier}".
func (k RateLimitKey) CacheKey() string {
	return fmt.Sprintf("rate_limit:%s:%s", k.keyType, k.identifier)
}

// RateLimitResult is the outcome of one rate-limit evaluation. Built only
// via AllowResult and DenyResult so that remaining ≤ limit always holds and
// denials always carry remaining == 0 with a reason.
type RateLimitResult struct {
	allowed   bool
	limit     int
	remaining int
	resetsAt  time.Time
	reason    string
}

// AllowResult builds a passing result. remaining must lie in [0, limit].
func AllowResult(limit, remaining int, resetsAt time.Time) (RateLimitResult, error) {
	if limit < 0 {
		return RateLimitResult{}, fmt.Errorf("%w: negative limit %d", ErrInvalidRateLimitResult, limit)
	}
	if remaining < 0 || remaining > limit {
		return RateLimitResult{}, fmt.Errorf("%w: remaining %d outside [0, %d]", ErrInvalidRateLimitResult, remaining, limit)
	}
	return RateLimitResult{
		allowed:   true,
		limit:     limit,
		remaining: remaining,
		resetsAt:  resetsAt,
	}, nil
}

// DenyResult builds a denial with remaining forced to zero.
func DenyResult(limit int, resetsAt time.Time, reason string) (RateLimitResult, error) {
	if limit < 0 {
		return RateLimitResult{}, fmt.Errorf("%w: negative limit %d", ErrInvalidRateLimitResult, limit)
	}
	if reason == "" {
		reason = "rate limit exceeded"
	}
	return RateLimitResult{
		allowed:   false,
		limit:     limit,
		remaining: 0,
		resetsAt:  resetsAt,
		reason:    reason,
	}, nil
}

// Allowed reports whether the request may proceed.
func (r RateLimitResult) Allowed() bool { return r.allowed }

// Limit returns the bucket's request ceiling for the window.
func (r RateLimitResult) Limit() int { return r.limit }

// Remaining returns how many requests are left in the window.
func (r RateLimitResult) Remaining() int { return r.remaining }

// ResetsAt returns when the bucket's window rolls over.
func (r RateLimitResult) ResetsAt() time.Time { return r.resetsAt }

// Reason returns the human-readable denial reason, empty when allowed.
func (r RateLimitResult) Reason() string { return r.reason }
