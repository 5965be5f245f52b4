package token

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testSecret = "test-secret-for-unit-tests"
	testIssuer = "lms-gateway"
)

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client)
	return NewService(testSecret, testIssuer, time.Hour, 24*time.Hour, store, zap.NewNop()), mr
}

func TestGenerateIssuesValidPair(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	pair, err := svc.Generate(ctx, "user-42", map[string]string{"role": "admin"})
	require.NoError(t, err)

	assert.NotEmpty(t, pair.AccessToken())
	assert.NotEmpty(t, pair.RefreshToken())
	assert.False(t, pair.IsExpired(time.Now()))

	claims, err := svc.Validate(ctx, pair.AccessToken())
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.UserID)
	assert.Equal(t, "user-42", claims.Subject)
	assert.Equal(t, testIssuer, claims.Issuer)
	assert.Equal(t, "admin", claims.Custom["role"])
}

func TestValidateRejectsForgedToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-42",
			Issuer:    testIssuer,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: "user-42",
	}).SignedString([]byte("some-other-secret"))
	require.NoError(t, err)

	_, err = svc.Validate(ctx, forged)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	pair, err := svc.Generate(ctx, "user-42", nil)
	require.NoError(t, err)

	// Shift the service clock past the access TTL.
	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err = svc.Validate(ctx, pair.AccessToken())
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsGarbage(t *testing.T) {
	svc, _ := newTestService(t)

	for _, in := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := svc.Validate(context.Background(), in)
		assert.ErrorIs(t, err, ErrInvalidToken, "input %q", in)
	}
}

func TestRefreshRotatesSingleUse(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	pair, err := svc.Generate(ctx, "user-42", map[string]string{"role": "student"})
	require.NoError(t, err)

	rotated, err := svc.Refresh(ctx, pair.RefreshToken())
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken(), rotated.RefreshToken())

	// The new access token carries the original subject and claims.
	claims, err := svc.Validate(ctx, rotated.AccessToken())
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.UserID)
	assert.Equal(t, "student", claims.Custom["role"])

	// Second refresh with the consumed token must fail: single-use rotation.
	_, err = svc.Refresh(ctx, pair.RefreshToken())
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshUnknownToken(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Refresh(context.Background(), "never-issued")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshExpiredToken(t *testing.T) {
	svc, mr := newTestService(t)
	ctx := context.Background()

	pair, err := svc.Generate(ctx, "user-42", nil)
	require.NoError(t, err)

	// Let the refresh token's TTL lapse in the store.
	mr.FastForward(25 * time.Hour)

	_, err = svc.Refresh(ctx, pair.RefreshToken())
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestBlacklistRevokesUnexpiredToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	pair, err := svc.Generate(ctx, "user-42", nil)
	require.NoError(t, err)

	_, err = svc.Validate(ctx, pair.AccessToken())
	require.NoError(t, err)

	require.NoError(t, svc.Blacklist(ctx, pair.AccessToken()))

	_, err = svc.Validate(ctx, pair.AccessToken())
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestBlacklistEntryExpiresWithToken(t *testing.T) {
	svc, mr := newTestService(t)
	ctx := context.Background()

	pair, err := svc.Generate(ctx, "user-42", nil)
	require.NoError(t, err)
	require.NoError(t, svc.Blacklist(ctx, pair.AccessToken()))

	// After the token's own expiry the blacklist entry is gone too; the
	// token stays invalid because it is now expired.
	mr.FastForward(2 * time.Hour)
	assert.False(t, mr.Exists(blacklistKeyPrefix+pair.AccessToken()))
}

func TestBlacklistOpaqueValue(t *testing.T) {
	svc, mr := newTestService(t)

	// Logout may hand us something that never was a JWT; it still gets
	// recorded for a full access lifetime.
	require.NoError(t, svc.Blacklist(context.Background(), "token123"))
	assert.True(t, mr.Exists(blacklistKeyPrefix+"token123"))
}

func TestConsumeRefreshIsAtomic(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	pair, err := svc.Generate(ctx, "user-42", nil)
	require.NoError(t, err)

	// Two concurrent rotations of the same refresh token: exactly one wins.
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := svc.Refresh(ctx, pair.RefreshToken())
			results <- err
		}()
	}

	var failures int
	for i := 0; i < 2; i++ {
		if err := <-results; err != nil {
			assert.ErrorIs(t, err, ErrInvalidToken)
			failures++
		}
	}
	assert.Equal(t, 1, failures, "exactly one concurrent refresh must lose")
}
