package services

import (
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsSnapshot(t *testing.T) {
	t.Parallel()

	mc := NewMetricsCollector()

	mc.RecordRequest(10, http.StatusOK)
	mc.RecordRequest(20, http.StatusNotFound)
	mc.RecordRequest(30, http.StatusServiceUnavailable)
	mc.RecordCacheHit()
	mc.RecordCacheMiss()
	mc.RecordCacheMiss()
	mc.RecordRateLimitHit()
	mc.RecordAuthFailure()

	s := mc.GetSnapshot()

	assert.Equal(t, int64(3), s.TotalRequests)
	assert.InDelta(t, 20.0, s.AvgResponseTimeMs, 0.001)
	assert.InDelta(t, 2.0/3.0, s.ErrorRate, 0.001)
	assert.InDelta(t, 1.0/3.0, s.CacheHitRate, 0.001)
	assert.Equal(t, int64(1), s.RateLimitHits)
	assert.Equal(t, int64(1), s.AuthFailures)
	assert.Equal(t, int64(1), s.DownstreamErrors)
	assert.NotEmpty(t, s.Timestamp)
}

func TestMetricsEmptySnapshot(t *testing.T) {
	t.Parallel()

	s := NewMetricsCollector().GetSnapshot()

	assert.Zero(t, s.TotalRequests)
	assert.Zero(t, s.AvgResponseTimeMs)
	assert.Zero(t, s.ErrorRate)
	assert.Zero(t, s.CacheHitRate)
}

func TestMetricsConcurrentRecording(t *testing.T) {
	t.Parallel()

	mc := NewMetricsCollector()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				mc.RecordRequest(5, http.StatusOK)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1000), mc.GetSnapshot().TotalRequests)
}
