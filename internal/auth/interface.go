package auth

import "memoir/internal/domain/models"

// JWTVerifier validates bearer tokens for the HTTP API.
type JWTVerifier interface {
	// VerifyToken validates a token and returns its claims, or domain.ErrUnauthorized.
	VerifyToken(tokenString string) (*models.SupabaseClaims, error)

	// Close releases resources held by the verifier.
	Close() error
}
