package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/spark-chat-api/internal/dto"
)

const revokedTokenPrefix = "blacklist:"

// TokenService issues and verifies session tokens.
type TokenService interface {
	Issue(userID, mobile string) (string, error)
	Verify(ctx context.Context, token string) (dto.AuthClaims, error)
	Revoke(ctx context.Context, token string) error
}

type tokenClaims struct {
	UserID string `json:"userId"`
	Mobile string `json:"mobile"`
	jwt.RegisteredClaims
}

type tokenService struct {
	secret []byte
	ttl    time.Duration
	redis  *redis.Client
	logger zerolog.Logger
	now    func() time.Time
}

// NewTokenService creates an HS256 token service. The Redis client backs the
// revocation list and may be nil.
func NewTokenService(secret string, ttl time.Duration, redisClient *redis.Client, logger zerolog.Logger) TokenService {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &tokenService{
		secret: []byte(secret),
		ttl:    ttl,
		redis:  redisClient,
		logger: logger.With().Str("component", "token_service").Logger(),
		now:    time.Now,
	}
}

func (s *tokenService) Issue(userID, mobile string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	now := s.now()
	claims := tokenClaims{
		UserID: userID,
		Mobile: mobile,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify rejects revoked tokens first, then checks signature and expiry.
// Revocation lookups that fail are logged and do not block verification.
func (s *tokenService) Verify(ctx context.Context, token string) (dto.AuthClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return dto.AuthClaims{}, ErrUnauthenticated
	}

	if s.redis != nil {
		exists, err := s.redis.Exists(ctx, revokedTokenPrefix+token).Result()
		switch {
		case err != nil:
			s.logger.Warn().Err(err).Msg("revocation lookup failed")
		case exists > 0:
			return dto.AuthClaims{}, ErrTokenRevoked
		}
	}

	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return dto.AuthClaims{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return dto.AuthClaims{}, fmt.Errorf("%w: token carries no user", ErrUnauthenticated)
	}

	return dto.AuthClaims{UserID: userID, Mobile: claims.Mobile}, nil
}

// Revoke adds the token to the revocation list until it would have expired anyway.
func (s *tokenService) Revoke(ctx context.Context, token string) error {
	if s.redis == nil {
		return errors.New("revocation list unavailable")
	}

	ttl := s.ttl
	claims := &tokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil && claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Sub(s.now())
	}
	if ttl <= 0 {
		return nil
	}

	return s.redis.Set(ctx, revokedTokenPrefix+token, "1", ttl).Err()
}
