package models

import (
	"errors"
	"time"
)

// ErrInvalidTokenPair is returned when a token pair violates its invariants.
var ErrInvalidTokenPair = errors.New("invalid token pair")

// JwtToken is an immutable access/refresh token pair. Both token values are
// non-empty and the expiry is strictly positive; a JwtToken is superseded by
// a new instance on refresh, never mutated.
type JwtToken struct {
	accessToken  string
	refreshToken string
	expiresIn    time.Duration
	issuedAt     time.Time
}

// NewJwtToken validates and builds a token pair. expiresIn is the access
// token lifetime measured from issuedAt.
func NewJwtToken(accessToken, refreshToken string, expiresIn time.Duration, issuedAt time.Time) (JwtToken, error) {
	if accessToken == "" || refreshToken == "" {
		return JwtToken{}, errors.Join(ErrInvalidTokenPair, errors.New("token values must be non-empty"))
	}
	if expiresIn <= 0 {
		return JwtToken{}, errors.Join(ErrInvalidTokenPair, errors.New("expiry must be positive"))
	}
	return JwtToken{
		accessToken:  accessToken,
		refreshToken: refreshToken,
		expiresIn:    expiresIn,
		issuedAt:     issuedAt,
	}, nil
}

// AccessToken returns the signed access token value.
func (t JwtToken) AccessToken() string {
	return t.accessToken
}

// RefreshToken returns the opaque refresh token value.
func (t JwtToken) RefreshToken() string {
	return t.refreshToken
}

// ExpiresIn returns the access token lifetime.
func (t JwtToken) ExpiresIn() time.Duration {
	return t.expiresIn
}

// IssuedAt returns the issuance timestamp.
func (t JwtToken) IssuedAt() time.Time {
	return t.issuedAt
}

// ExpiresAt returns the instant the access token stops being valid.
func (t JwtToken) ExpiresAt() time.Time {
	return t.issuedAt.Add(t.expiresIn)
}

// IsExpired reports whether the access token has expired as of now.
func (t JwtToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt())
}
