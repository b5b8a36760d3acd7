// Package middleware provides HTTP middleware for backend authentication,
// CORS handling, rate limiting, and request context management.
package middleware

import (
	"net/http"
	"strings"

	"github.com/codejam/backend/internal/crypto"
	"github.com/codejam/backend/internal/logging"
)

// BackendAuth admits requests whose Authorization header carries the shared
// backend secret, either bare or as a Bearer token. Returns 401 otherwise.
func BackendAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
			if authHeader == "" {
				logging.LogSecurityEvent(r.Context(), logging.SecurityEventMissingAuth, "missing authorization header")
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			if !crypto.SecretsEqual(secret, token) {
				logging.LogSecurityEvent(r.Context(), logging.SecurityEventBadBackendToken, "invalid backend token")
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
