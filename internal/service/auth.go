package service

import (
	"context"
	"errors"
	"strconv"

	"github.com/onnwee/thunderindex/internal/auth"
)

// ErrUnauthenticated is returned when the caller's viewer token is missing
// or fails validation.
var ErrUnauthenticated = errors.New("service: unauthenticated")

// AuthenticateViewer validates a bearer token and returns the viewer id it
// identifies. The subject claim is the decimal-encoded viewer id.
func AuthenticateViewer(ctx context.Context, svc *auth.JWTService, token string) (int64, error) {
	if token == "" {
		return 0, ErrUnauthenticated
	}
	claims, err := svc.ValidateToken(token)
	if err != nil {
		return 0, errors.Join(ErrUnauthenticated, err)
	}
	viewerID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, errors.Join(ErrUnauthenticated, err)
	}
	return viewerID, nil
}
