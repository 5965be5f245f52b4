package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edulms/api-gateway/internal/models"
)

// ErrInvalidToken is the single error kind every validation failure maps
// to: bad signature, expiry, revocation, and unknown refresh tokens are
// indistinguishable to callers so probing can't reveal which check failed.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the access token payload.
type Claims struct {
	jwt.RegisteredClaims
	UserID string            `json:"user_id"`
	Custom map[string]string `json:"custom,omitempty"`
}

// Service signs and validates access tokens and manages refresh-token
// rotation against the shared token store.
type Service struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	store      Store
	logger     *zap.Logger

	now func() time.Time
}

// NewService builds a token service. accessTTL bounds access token
// validity; refreshTTL bounds how long an unused refresh token survives.
func NewService(secret, issuer string, accessTTL, refreshTTL time.Duration, store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		store:      store,
		logger:     logger,
		now:        time.Now,
	}
}

// Generate signs a new access token for subjectID with the given custom
// claims and records a fresh single-use refresh token in the store.
func (s *Service) Generate(ctx context.Context, subjectID string, custom map[string]string) (models.JwtToken, error) {
	issuedAt := s.now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.accessTTL)),
		},
		UserID: subjectID,
		Custom: custom,
	}

	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return models.JwtToken{}, fmt.Errorf("couldn't sign access token: %w", err)
	}

	refresh := uuid.NewString()
	if err := s.store.SaveRefresh(ctx, refresh, subjectID, custom, s.refreshTTL); err != nil {
		return models.JwtToken{}, err
	}

	s.logger.Debug("issued token pair", zap.String("subject", subjectID))

	return models.NewJwtToken(access, refresh, s.accessTTL, issuedAt)
}

// Refresh rotates a refresh token: the old value is consumed atomically and
// a new pair is issued. Unknown, already-used, expired, and revoked refresh
// tokens all fail with ErrInvalidToken.
func (s *Service) Refresh(ctx context.Context, refreshValue string) (models.JwtToken, error) {
	subject, custom, err := s.store.ConsumeRefresh(ctx, refreshValue)
	if errors.Is(err, ErrRefreshNotFound) {
		s.logger.Warn("refresh with unknown or used token")
		return models.JwtToken{}, ErrInvalidToken
	}
	if err != nil {
		return models.JwtToken{}, err
	}

	return s.Generate(ctx, subject, custom)
}

// Blacklist revokes an access token before its natural expiry. The
// blacklist entry lives only as long as the token would have.
func (s *Service) Blacklist(ctx context.Context, accessValue string) error {
	ttl := s.accessTTL

	// Best effort: size the blacklist entry to the token's remaining
	// validity. An unparseable token still gets blacklisted for a full
	// access lifetime.
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	var claims Claims
	if _, _, err := parser.ParseUnverified(accessValue, &claims); err == nil && claims.ExpiresAt != nil {
		if remaining := claims.ExpiresAt.Sub(s.now()); remaining > 0 {
			ttl = remaining
		}
	}

	return s.store.BlacklistAccess(ctx, accessValue, ttl)
}

// Validate verifies an access token's signature and expiry and checks the
// blacklist. Every failure kind surfaces as ErrInvalidToken.
func (s *Service) Validate(ctx context.Context, accessValue string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(accessValue, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tok.Valid {
		return nil, ErrInvalidToken
	}

	revoked, err := s.store.IsBlacklisted(ctx, accessValue)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, fmt.Errorf("%w: revoked", ErrInvalidToken)
	}

	return claims, nil
}
