package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoir/internal/domain"
	"memoir/internal/domain/models"
)

func testVerifier(t *testing.T) (*SupabaseJWTVerifier, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	kf := func(*jwt.Token) (interface{}, error) { return &key.PublicKey, nil }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newVerifier(kf, nil, logger), key
}

func sign(t *testing.T, key *ecdsa.PrivateKey, claims models.SupabaseClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestVerifyToken(t *testing.T) {
	v, key := testVerifier(t)
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))
	past := jwt.NewNumericDate(time.Now().Add(-time.Hour))

	tests := []struct {
		name    string
		claims  models.SupabaseClaims
		wantErr bool
	}{
		{
			name:   "valid",
			claims: models.SupabaseClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", ExpiresAt: future}, Role: "authenticated"},
		},
		{
			name:    "expired",
			claims:  models.SupabaseClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", ExpiresAt: past}, Role: "authenticated"},
			wantErr: true,
		},
		{
			name:    "anonymous role",
			claims:  models.SupabaseClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", ExpiresAt: future}, Role: "anon"},
			wantErr: true,
		},
		{
			name:    "missing subject",
			claims:  models.SupabaseClaims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future}, Role: "authenticated"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := v.VerifyToken(sign(t, key, tt.claims))
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrUnauthorized)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "u1", claims.GetUserID())
		})
	}
}

func TestVerifyToken_RejectsHMAC(t *testing.T) {
	v, _ := testVerifier(t)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, models.SupabaseClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		Role:             "authenticated",
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = v.VerifyToken(token)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
