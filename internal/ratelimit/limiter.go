package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/edulms/api-gateway/internal/models"
)

// Policy is the request ceiling for one key type over one window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Limiter evaluates rate-limit checks against the shared counter store,
// with per-key-type policies. When the store is unreachable it degrades to
// an in-process token bucket per key rather than failing closed, and
// resumes distributed counting as soon as the store answers again.
type Limiter struct {
	store    CounterStore
	policies map[models.RateLimitKeyType]Policy
	logger   *zap.Logger

	degraded atomic.Bool

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// New builds a limiter. Key types without a policy are not limited.
func New(store CounterStore, policies map[models.RateLimitKeyType]Policy, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{
		store:    store,
		policies: policies,
		logger:   logger,
		buckets:  make(map[string]*rate.Limiter),
	}
}

// PolicyFor returns the configured policy for a key type. Callers can skip
// the check (and the rate-limit headers) entirely when no policy exists.
func (l *Limiter) PolicyFor(t models.RateLimitKeyType) (Policy, bool) {
	policy, ok := l.policies[t]
	if !ok || policy.Limit <= 0 {
		return Policy{}, false
	}
	return policy, true
}

// Check evaluates the key against its type's configured policy.
func (l *Limiter) Check(ctx context.Context, key models.RateLimitKey) (models.RateLimitResult, error) {
	policy, ok := l.PolicyFor(key.Type())
	if !ok {
		// No policy for this scope: pass through.
		return models.AllowResult(0, 0, time.Now())
	}
	return l.CheckWithPolicy(ctx, key, policy)
}

// CheckWithPolicy evaluates the key against an explicit policy, used for
// callers with per-credential limits such as API keys.
func (l *Limiter) CheckWithPolicy(ctx context.Context, key models.RateLimitKey, policy Policy) (models.RateLimitResult, error) {
	count, ttl, err := l.store.Incr(ctx, key.CacheKey(), policy.Window)
	if err != nil {
		if l.degraded.CompareAndSwap(false, true) {
			l.logger.Warn("counter store unreachable, degrading to local rate limiting", zap.Error(err))
		}
		return l.checkLocal(key, policy)
	}

	if l.degraded.CompareAndSwap(true, false) {
		l.logger.Info("counter store recovered, resuming distributed rate limiting")
	}

	resetsAt := time.Now().Add(ttl)
	if count > int64(policy.Limit) {
		return models.DenyResult(policy.Limit, resetsAt, denialReason(key))
	}

	remaining := policy.Limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return models.AllowResult(policy.Limit, remaining, resetsAt)
}

// checkLocal approximates the policy with an in-process token bucket. The
// bucket refills at Limit/Window and bursts to the full limit.
func (l *Limiter) checkLocal(key models.RateLimitKey, policy Policy) (models.RateLimitResult, error) {
	l.mu.Lock()
	bucket, ok := l.buckets[key.CacheKey()]
	if !ok {
		perSecond := rate.Limit(float64(policy.Limit) / policy.Window.Seconds())
		bucket = rate.NewLimiter(perSecond, policy.Limit)
		l.buckets[key.CacheKey()] = bucket
	}
	l.mu.Unlock()

	resetsAt := time.Now().Add(policy.Window)
	if !bucket.Allow() {
		return models.DenyResult(policy.Limit, resetsAt, denialReason(key))
	}

	remaining := int(bucket.Tokens())
	if remaining < 0 {
		remaining = 0
	}
	if remaining > policy.Limit {
		remaining = policy.Limit
	}
	return models.AllowResult(policy.Limit, remaining, resetsAt)
}

// Degraded reports whether the limiter is currently running on local
// fallback buckets.
func (l *Limiter) Degraded() bool {
	return l.degraded.Load()
}

func denialReason(key models.RateLimitKey) string {
	switch key.Type() {
	case models.KeyTypeUser:
		return "per-user rate limit exceeded"
	case models.KeyTypeIP:
		return "per-IP rate limit exceeded"
	case models.KeyTypeAPIKey:
		return "API key rate limit exceeded"
	default:
		return "global rate limit exceeded"
	}
}
