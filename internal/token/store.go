// Package token issues, validates, refreshes, and revokes the gateway's
// access/refresh token pairs.
package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRefreshNotFound indicates a refresh token is unknown, already used, or
// expired out of the store.
var ErrRefreshNotFound = errors.New("refresh token not found")

const (
	refreshKeyPrefix   = "refresh_token:"
	blacklistKeyPrefix = "token_blacklist:"
)

// Store persists refresh-token metadata and the access-token blacklist.
// Both are shared across gateway instances, so reads observe writes made by
// any instance.
type Store interface {
	// SaveRefresh records a refresh token for later single-use consumption.
	SaveRefresh(ctx context.Context, token, subject string, claims map[string]string, ttl time.Duration) error

	// ConsumeRefresh atomically looks up and removes a refresh token,
	// returning its subject and claims. A second consume of the same token
	// fails with ErrRefreshNotFound: refresh tokens are single-use.
	ConsumeRefresh(ctx context.Context, token string) (subject string, claims map[string]string, err error)

	// BlacklistAccess marks an access token revoked for ttl.
	BlacklistAccess(ctx context.Context, token string, ttl time.Duration) error

	// IsBlacklisted reports whether an access token has been revoked.
	IsBlacklisted(ctx context.Context, token string) (bool, error)
}

// refreshRecord is the JSON value stored per refresh token.
type refreshRecord struct {
	Subject string            `json:"subject"`
	Claims  map[string]string `json:"claims,omitempty"`
}

// RedisStore implements Store on Redis. Single-use rotation relies on
// GETDEL so that concurrent refresh attempts with the same token can never
// both succeed.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed token store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// SaveRefresh implements Store.
func (s *RedisStore) SaveRefresh(ctx context.Context, token, subject string, claims map[string]string, ttl time.Duration) error {
	data, err := json.Marshal(refreshRecord{Subject: subject, Claims: claims})
	if err != nil {
		return fmt.Errorf("couldn't encode refresh record: %w", err)
	}
	if err := s.client.Set(ctx, refreshKeyPrefix+token, data, ttl).Err(); err != nil {
		return fmt.Errorf("couldn't save refresh token: %w", err)
	}
	return nil
}

// ConsumeRefresh implements Store.
func (s *RedisStore) ConsumeRefresh(ctx context.Context, token string) (string, map[string]string, error) {
	data, err := s.client.GetDel(ctx, refreshKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", nil, ErrRefreshNotFound
	}
	if err != nil {
		return "", nil, fmt.Errorf("couldn't consume refresh token: %w", err)
	}

	var rec refreshRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", nil, fmt.Errorf("corrupt refresh record: %w", err)
	}
	return rec.Subject, rec.Claims, nil
}

// BlacklistAccess implements Store.
func (s *RedisStore) BlacklistAccess(ctx context.Context, token string, ttl time.Duration) error {
	if err := s.client.Set(ctx, blacklistKeyPrefix+token, "1", ttl).Err(); err != nil {
		return fmt.Errorf("couldn't blacklist token: %w", err)
	}
	return nil
}

// IsBlacklisted implements Store.
func (s *RedisStore) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	n, err := s.client.Exists(ctx, blacklistKeyPrefix+token).Result()
	if err != nil {
		return false, fmt.Errorf("couldn't check blacklist: %w", err)
	}
	return n > 0, nil
}
