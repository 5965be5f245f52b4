package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/edulms/api-gateway/internal/httputil"
	"github.com/edulms/api-gateway/internal/models"
	"github.com/edulms/api-gateway/internal/ratelimit"
	"github.com/edulms/api-gateway/internal/services"
)

// RateLimitMiddleware enforces per-caller rate limits. The bucket key is
// chosen from the caller's strongest identity: API key, then authenticated
// user, then client IP.
type RateLimitMiddleware struct {
	limiter      *ratelimit.Limiter
	metrics      *services.MetricsCollector
	storeTimeout time.Duration
	logger       *zap.Logger
}

// NewRateLimitMiddleware creates the rate limit middleware. storeTimeout
// bounds the counter store round-trip so a slow store can't stall the
// request pool.
func NewRateLimitMiddleware(limiter *ratelimit.Limiter, metrics *services.MetricsCollector, storeTimeout time.Duration, logger *zap.Logger) *RateLimitMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimitMiddleware{
		limiter:      limiter,
		metrics:      metrics,
		storeTimeout: storeTimeout,
		logger:       logger,
	}
}

// Middleware wraps next with rate limiting. Requests that match no policy
// at all pass through without X-RateLimit-* headers, so an unlimited caller
// is never mistaken for an exhausted one.
func (m *RateLimitMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), m.storeTimeout)
		defer cancel()

		result, limited, err := m.check(ctx, r)
		if err != nil {
			m.logger.Error("rate limit check failed", zap.Error(err))
			httputil.WriteError(w, http.StatusInternalServerError, "Internal gateway error")
			return
		}
		if !limited {
			next.ServeHTTP(w, r)
			return
		}

		setRateLimitHeaders(w, result)

		if !result.Allowed() {
			m.logger.Warn("rate limit exceeded",
				zap.String("path", r.URL.Path),
				zap.String("reason", result.Reason()))
			if m.metrics != nil {
				m.metrics.RecordRateLimitHit()
			}
			httputil.WriteError(w, http.StatusTooManyRequests, result.Reason())
			return
		}

		next.ServeHTTP(w, r)
	})
}

// check evaluates the gateway-wide bucket, then the caller's own bucket.
// The reported result is the caller's where one applies, so the headers
// reflect the tightest per-caller budget; a global denial wins outright.
func (m *RateLimitMiddleware) check(ctx context.Context, r *http.Request) (models.RateLimitResult, bool, error) {
	var result models.RateLimitResult
	limited := false

	// Every request shares the gateway-wide bucket when one is configured.
	if policy, ok := m.limiter.PolicyFor(models.KeyTypeGlobal); ok {
		res, err := m.limiter.CheckWithPolicy(ctx, models.GlobalKey(), policy)
		if err != nil {
			return models.RateLimitResult{}, false, err
		}
		if !res.Allowed() {
			return res, true, nil
		}
		result, limited = res, true
	}

	if apiKey := GetAPIKey(r.Context()); apiKey != nil {
		key, err := models.APIKeyKey(apiKey.Key)
		if err != nil {
			return models.RateLimitResult{}, false, err
		}
		// API keys carry their own per-minute budget.
		res, err := m.limiter.CheckWithPolicy(ctx, key, ratelimit.Policy{
			Limit:  apiKey.RateLimitPerMinute,
			Window: time.Minute,
		})
		return res, true, err
	}

	if userID := GetUserID(r.Context()); userID != "" {
		if _, ok := m.limiter.PolicyFor(models.KeyTypeUser); ok {
			key, err := models.UserKey(userID)
			if err != nil {
				return models.RateLimitResult{}, false, err
			}
			res, err := m.limiter.Check(ctx, key)
			return res, true, err
		}
		return result, limited, nil
	}

	if _, ok := m.limiter.PolicyFor(models.KeyTypeIP); ok {
		key, err := models.IPKey(httputil.ClientIP(r))
		if err != nil {
			return models.RateLimitResult{}, false, err
		}
		res, err := m.limiter.Check(ctx, key)
		return res, true, err
	}
	return result, limited, nil
}

// setRateLimitHeaders writes the X-RateLimit-* trio, allowed or denied.
func setRateLimitHeaders(w http.ResponseWriter, result models.RateLimitResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit()))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining()))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetsAt().Unix(), 10))
}
