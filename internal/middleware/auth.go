package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"memoir/internal/auth"
	"memoir/internal/httputil"
)

// DevUserHeader carries the caller's user ID when no JWT verifier is configured
const DevUserHeader = "X-User-ID"

// Auth authenticates /api requests. With a verifier, a valid bearer token is
// required and its subject becomes the user ID. Without one, the X-User-ID
// header is trusted (local development only).
func Auth(verifier auth.JWTVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				userID := r.Header.Get(DevUserHeader)
				if userID == "" {
					userID = "dev-user"
				}
				next.ServeHTTP(w, httputil.WithUserID(r, userID))
				return
			}

			header := r.Header.Get("Authorization")
			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || token == "" {
				httputil.RespondError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims, err := verifier.VerifyToken(token)
			if err != nil {
				logger.Debug("token rejected", "path", r.URL.Path, "error", err)
				httputil.RespondError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			next.ServeHTTP(w, httputil.WithUserID(r, claims.GetUserID()))
		})
	}
}
