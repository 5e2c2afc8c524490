package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "wJ6Qk8Qn1v9Qw1Zb2l8Qk9J3p6Qk8Qn1v9Qw1Zb2l8Qk="

func TestGenerateViewerToken(t *testing.T) {
	svc := NewJWTService(testSecret)

	token, err := svc.GenerateViewerToken("viewer-123")
	if err != nil {
		t.Fatalf("GenerateViewerToken() error = %v", err)
	}
	if token == "" {
		t.Fatal("GenerateViewerToken() returned empty token")
	}

	_, err = svc.GenerateViewerToken("")
	if err != ErrEmptyViewerID {
		t.Errorf("GenerateViewerToken(\"\") error = %v, want %v", err, ErrEmptyViewerID)
	}
}

func TestValidateViewerToken(t *testing.T) {
	svc := NewJWTService(testSecret)
	token, err := svc.GenerateViewerToken("viewer-123")
	if err != nil {
		t.Fatalf("GenerateViewerToken() error = %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.Subject != "viewer-123" {
		t.Errorf("Subject = %v, want viewer-123", claims.Subject)
	}
	if claims.Type != TokenTypeViewer {
		t.Errorf("Type = %v, want %v", claims.Type, TokenTypeViewer)
	}

	if _, err := svc.ValidateToken("not-a-token"); err != ErrInvalidToken {
		t.Errorf("ValidateToken(garbage) error = %v, want %v", err, ErrInvalidToken)
	}
}

func TestTamperedToken(t *testing.T) {
	svc := NewJWTService(testSecret)
	token, err := svc.GenerateViewerToken("viewer-123")
	if err != nil {
		t.Fatalf("GenerateViewerToken() error = %v", err)
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("invalid token format")
	}
	tampered := parts[0] + "." + parts[1] + ".tamperedsignature"

	if _, err := svc.ValidateToken(tampered); err != ErrInvalidToken {
		t.Errorf("ValidateToken(tampered) error = %v, want %v", err, ErrInvalidToken)
	}
}

func TestExpiredToken(t *testing.T) {
	svc := NewJWTServiceWithLeeway(testSecret, 0)

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "viewer-expired",
			IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-1 * time.Hour)),
		},
		Type: TokenTypeViewer,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if _, err := svc.ValidateToken(tokenString); err != ErrExpiredToken {
		t.Errorf("ValidateToken() error = %v, want %v", err, ErrExpiredToken)
	}
}

func TestKeyRotation(t *testing.T) {
	currentSecret := "current-secret-key-12345678"
	previousSecret := "previous-secret-key-87654321"

	t.Run("token signed with previous secret still validates", func(t *testing.T) {
		oldSvc := NewJWTService(previousSecret)
		oldToken, err := oldSvc.GenerateViewerToken("viewer-456")
		if err != nil {
			t.Fatalf("GenerateViewerToken() error = %v", err)
		}

		newSvc := NewJWTServiceWithRotation(currentSecret, previousSecret)
		claims, err := newSvc.ValidateToken(oldToken)
		if err != nil {
			t.Fatalf("ValidateToken() error = %v", err)
		}
		if claims.Subject != "viewer-456" {
			t.Errorf("Subject = %v, want viewer-456", claims.Subject)
		}
	})

	t.Run("wrong secret fails", func(t *testing.T) {
		wrongSvc := NewJWTService("wrong-secret-key-99999999")
		wrongToken, err := wrongSvc.GenerateViewerToken("viewer-wrong")
		if err != nil {
			t.Fatalf("GenerateViewerToken() error = %v", err)
		}
		svc := NewJWTServiceWithRotation(currentSecret, previousSecret)
		if _, err := svc.ValidateToken(wrongToken); err != ErrInvalidToken {
			t.Errorf("ValidateToken() error = %v, want %v", err, ErrInvalidToken)
		}
	})
}
