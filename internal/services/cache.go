package services

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheService stores successful GET responses in Redis so hot routes can
// be answered without a downstream round-trip.
type CacheService struct {
	client     *redis.Client
	defaultTTL time.Duration
}

// NewCacheService creates a response cache with the given default TTL.
func NewCacheService(client *redis.Client, defaultTTL time.Duration) *CacheService {
	return &CacheService{
		client:     client,
		defaultTTL: defaultTTL,
	}
}

// CachedResponse is the stored form of a proxied response.
type CachedResponse struct {
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Get returns the cached response for key, or nil on a miss.
func (cs *CacheService) Get(ctx context.Context, key string) (*CachedResponse, error) {
	data, err := cs.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get failed: %w", err)
	}

	var cached CachedResponse
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, fmt.Errorf("corrupt cache entry: %w", err)
	}
	return &cached, nil
}

// Set stores a response under key. A zero ttl uses the default.
func (cs *CacheService) Set(ctx context.Context, key string, response *CachedResponse, ttl time.Duration) error {
	if ttl == 0 {
		ttl = cs.defaultTTL
	}

	data, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("couldn't encode cache entry: %w", err)
	}
	if err := cs.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache set failed: %w", err)
	}
	return nil
}

// GenerateCacheKey derives a stable key from the request line.
func (cs *CacheService) GenerateCacheKey(method, path, query string) string {
	data := fmt.Sprintf("%s:%s:%s", method, path, query)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("cache:%x", hash[:16])
}

// Clear drops every cached response. Used by the admin API after route or
// backend changes.
func (cs *CacheService) Clear(ctx context.Context) error {
	iter := cs.client.Scan(ctx, 0, "cache:*", 0).Iterator()
	for iter.Next(ctx) {
		if err := cs.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
