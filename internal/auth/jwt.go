// Package auth verifies the caller-supplied viewer token on the query
// service's RPC surface before any fan-out read is allowed.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTypeViewer is the only token type this service issues or accepts.
const TokenTypeViewer = "viewer"

// Key version constants for tracking which key signed the token.
const (
	KeyVersionCurrent  = "current"
	KeyVersionPrevious = "previous"
)

// ViewerTokenExpiry is the lifetime of a viewer token.
const ViewerTokenExpiry = 15 * time.Minute

// DefaultLeeway is the default clock-skew tolerance for expiry checks.
const DefaultLeeway = 30 * time.Second

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token has expired")
	ErrEmptyViewerID = errors.New("viewerID cannot be empty")
)

// Claims identifies the viewer making a GetInNetworkPosts call.
type Claims struct {
	jwt.RegisteredClaims
	Type string `json:"typ"`
}

// JWTService verifies viewer tokens. Supports dual-key rotation: tokens are
// signed with currentSecret, but validated against either currentSecret or
// previousSecret, so a secret can be rotated without rejecting in-flight
// tokens signed under the old key.
type JWTService struct {
	currentSecret  []byte
	previousSecret []byte
	leeway         time.Duration
	keyVersion     string
}

// NewJWTService creates a JWTService with a single secret.
func NewJWTService(secret string) *JWTService {
	return &JWTService{
		currentSecret: []byte(secret),
		leeway:        DefaultLeeway,
		keyVersion:    KeyVersionCurrent,
	}
}

// NewJWTServiceWithLeeway creates a JWTService with a custom leeway.
func NewJWTServiceWithLeeway(secret string, leeway time.Duration) *JWTService {
	return &JWTService{
		currentSecret: []byte(secret),
		leeway:        leeway,
		keyVersion:    KeyVersionCurrent,
	}
}

// NewJWTServiceWithRotation creates a JWTService with dual-key support.
// Pass an empty previousSecret if no rotation is in progress.
func NewJWTServiceWithRotation(currentSecret, previousSecret string) *JWTService {
	return NewJWTServiceWithRotationAndLeeway(currentSecret, previousSecret, DefaultLeeway)
}

// NewJWTServiceWithRotationAndLeeway creates a JWTService with dual-key
// support and a custom leeway.
func NewJWTServiceWithRotationAndLeeway(currentSecret, previousSecret string, leeway time.Duration) *JWTService {
	svc := &JWTService{
		currentSecret: []byte(currentSecret),
		leeway:        leeway,
		keyVersion:    KeyVersionCurrent,
	}
	if previousSecret != "" {
		svc.previousSecret = []byte(previousSecret)
	}
	return svc
}

// GenerateViewerToken creates a viewer token. Used by tests and by any
// trusted upstream that mints tokens on the service's behalf.
func (s *JWTService) GenerateViewerToken(viewerID string) (string, error) {
	if viewerID == "" {
		return "", ErrEmptyViewerID
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   viewerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ViewerTokenExpiry)),
		},
		Type: TokenTypeViewer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = s.keyVersion
	return token.SignedString(s.currentSecret)
}

// ValidateToken parses and validates a viewer token, trying currentSecret
// first and falling back to previousSecret.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	keyFunc := func(secret []byte) jwt.Keyfunc {
		return func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, ErrInvalidToken
			}
			return secret, nil
		}
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, keyFunc(s.currentSecret), jwt.WithLeeway(s.leeway))
	if err == nil {
		if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.Type == TokenTypeViewer {
			return claims, nil
		}
		return nil, ErrInvalidToken
	}
	firstErr := err

	if s.previousSecret != nil {
		token, err = jwt.ParseWithClaims(tokenString, &Claims{}, keyFunc(s.previousSecret), jwt.WithLeeway(s.leeway))
		if err == nil {
			if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.Type == TokenTypeViewer {
				return claims, nil
			}
		}
		if errors.Is(err, jwt.ErrTokenExpired) || errors.Is(firstErr, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if errors.Is(firstErr, jwt.ErrTokenExpired) {
		return nil, ErrExpiredToken
	}
	return nil, ErrInvalidToken
}
