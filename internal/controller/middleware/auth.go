// Package middleware contains HTTP middleware for the controller.
package middleware

import (
	"net/http"
	"strings"

	"formplane/internal/auth"
)

// RequireToken rejects requests that do not carry "Bearer <token>".
// An empty token disables the check. Only the hashes of the presented and
// configured tokens are compared.
func RequireToken(token string) func(http.Handler) http.Handler {
	want := auth.HashKey(token)
	return func(next http.Handler) http.Handler {
		if strings.TrimSpace(token) == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Missing authorization header", http.StatusUnauthorized)
				return
			}

			presented, ok := auth.ParseBearer(authHeader)
			if !ok {
				http.Error(w, "Invalid authorization header", http.StatusUnauthorized)
				return
			}

			if !auth.TokenMatches(presented, want) {
				http.Error(w, "Invalid authorization token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
