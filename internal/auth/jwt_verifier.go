package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"memoir/internal/domain"
	"memoir/internal/domain/models"
)

// allowedAlgorithms guards against algorithm confusion
var allowedAlgorithms = []string{"RS256", "ES256"}

// SupabaseJWTVerifier implements JWTVerifier using a JWKS endpoint.
type SupabaseJWTVerifier struct {
	keyfunc jwt.Keyfunc
	cancel  context.CancelFunc
	logger  *slog.Logger
}

// NewJWTVerifier fetches signing keys from jwksURL. keyfunc refreshes them in
// the background until Close.
func NewJWTVerifier(jwksURL string, logger *slog.Logger) (JWTVerifier, error) {
	if jwksURL == "" {
		return nil, errors.New("JWKS URL cannot be empty")
	}

	ctx, cancel := context.WithCancel(context.Background())
	jwks, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create JWKS client: %w", err)
	}

	logger.Info("JWT verifier initialized", "jwks_url", jwksURL)
	return newVerifier(jwks.Keyfunc, cancel, logger), nil
}

func newVerifier(kf jwt.Keyfunc, cancel context.CancelFunc, logger *slog.Logger) *SupabaseJWTVerifier {
	return &SupabaseJWTVerifier{keyfunc: kf, cancel: cancel, logger: logger}
}

// VerifyToken validates signature, expiry, algorithm, subject and role.
func (v *SupabaseJWTVerifier) VerifyToken(tokenString string) (*models.SupabaseClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.SupabaseClaims{}, v.keyfunc,
		jwt.WithValidMethods(allowedAlgorithms),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		v.logger.Debug("token parse failed", "error", err)
		return nil, domain.ErrUnauthorized
	}

	claims, ok := token.Claims.(*models.SupabaseClaims)
	if !ok || claims.Subject == "" {
		v.logger.Debug("token missing subject claim")
		return nil, domain.ErrUnauthorized
	}

	// Anonymous sessions cannot write memoirs
	if claims.Role != "authenticated" {
		v.logger.Warn("token has invalid role", "role", claims.Role, "user_id", claims.Subject)
		return nil, domain.ErrUnauthorized
	}

	return claims, nil
}

// Close stops the background key refresh.
func (v *SupabaseJWTVerifier) Close() error {
	if v.cancel != nil {
		v.cancel()
	}
	v.logger.Info("JWT verifier closed")
	return nil
}
