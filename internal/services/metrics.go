package services

import (
	"sync"
	"time"
)

// MetricsCollector keeps in-process gateway counters. It is shared by every
// request handler, so all access goes through the mutex.
type MetricsCollector struct {
	mu sync.RWMutex

	totalRequests   int64
	errorRequests   int64
	cacheHits       int64
	cacheMisses     int64
	rateLimitHits   int64
	authFailures    int64
	downstreamFails int64

	totalResponseTime int64

	startTime time.Time
}

// NewMetricsCollector creates a collector anchored at the current time.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		startTime: time.Now(),
	}
}

// RecordRequest tallies one completed request.
func (mc *MetricsCollector) RecordRequest(responseTimeMs int, statusCode int) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.totalRequests++
	mc.totalResponseTime += int64(responseTimeMs)

	if statusCode >= 400 {
		mc.errorRequests++
	}
	if statusCode == 503 || statusCode == 502 {
		mc.downstreamFails++
	}
}

// RecordCacheHit tallies a response served from cache.
func (mc *MetricsCollector) RecordCacheHit() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.cacheHits++
}

// RecordCacheMiss tallies a cache miss.
func (mc *MetricsCollector) RecordCacheMiss() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.cacheMisses++
}

// RecordRateLimitHit tallies a 429 denial.
func (mc *MetricsCollector) RecordRateLimitHit() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.rateLimitHits++
}

// RecordAuthFailure tallies a rejected credential.
func (mc *MetricsCollector) RecordAuthFailure() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.authFailures++
}

// MetricsSnapshot is a point-in-time view of the collector.
type MetricsSnapshot struct {
	UptimeSeconds     int64   `json:"uptime_seconds"`
	TotalRequests     int64   `json:"total_requests"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
	ErrorRate         float64 `json:"error_rate"`
	CacheHitRate      float64 `json:"cache_hit_rate"`
	RateLimitHits     int64   `json:"rate_limit_hits"`
	AuthFailures      int64   `json:"auth_failures"`
	DownstreamErrors  int64   `json:"downstream_errors"`
	Timestamp         string  `json:"timestamp"`
}

// GetSnapshot returns the current counters with derived rates.
func (mc *MetricsCollector) GetSnapshot() *MetricsSnapshot {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	uptimeSeconds := int64(time.Since(mc.startTime).Seconds())

	snapshot := &MetricsSnapshot{
		UptimeSeconds:    uptimeSeconds,
		TotalRequests:    mc.totalRequests,
		RateLimitHits:    mc.rateLimitHits,
		AuthFailures:     mc.authFailures,
		DownstreamErrors: mc.downstreamFails,
		Timestamp:        time.Now().Format(time.RFC3339),
	}

	if uptimeSeconds > 0 {
		snapshot.RequestsPerSecond = float64(mc.totalRequests) / float64(uptimeSeconds)
	}
	if mc.totalRequests > 0 {
		snapshot.AvgResponseTimeMs = float64(mc.totalResponseTime) / float64(mc.totalRequests)
		snapshot.ErrorRate = float64(mc.errorRequests) / float64(mc.totalRequests)
	}
	if total := mc.cacheHits + mc.cacheMisses; total > 0 {
		snapshot.CacheHitRate = float64(mc.cacheHits) / float64(total)
	}

	return snapshot
}
