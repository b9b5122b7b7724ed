package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token expired")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrMissingSubject   = errors.New("token has no subject")
)

type Service interface {
	GenerateToken(userID string, role Role, ttl time.Duration) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
}

type service struct {
	secret     []byte
	defaultTTL time.Duration
	clock      clockwork.Clock
}

func NewService(secret string, defaultTTL time.Duration, clock clockwork.Clock) Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &service{
		secret:     []byte(secret),
		defaultTTL: defaultTTL,
		clock:      clock,
	}
}

// GenerateToken signs an HS256 token. A zero ttl uses the default.
func (s *service) GenerateToken(userID string, role Role, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", ErrMissingSubject
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	now := s.clock.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Role: string(role),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signedToken, nil
}

func (s *service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSignature
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.clock.Now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, ErrInvalidSignature
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}
