// Package middleware holds the HTTP middleware of the API: bearer
// authentication, the per-request transaction and request logging.
package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/unroll-ai/unroll/internal/api/ctxkeys"
	pkgauth "github.com/unroll-ai/unroll/pkg/auth"
)

// Auth validates the Bearer JWT and binds the caller id to the request
// context. Used on every /api/v1 route.
//
// Flow:
//  1. Read "Authorization: Bearer <token>"
//  2. Reject if missing or not Bearer scheme → 401
//  3. Parse and validate the token → 401 on invalid or expired
//  4. Bind ctxkeys.UserID and call next
func Auth(tokens *pkgauth.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractBearerToken(r)
			if tokenString == "" {
				writeUnauthorized(w, "missing or invalid Authorization header")
				return
			}

			claims, err := tokens.Parse(tokenString)
			if err != nil {
				writeUnauthorized(w, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(ctxkeys.WithUserID(r.Context(), claims.UserID)))
		})
	}
}

// extractBearerToken returns the token from "Authorization: Bearer <token>",
// or "" if the header is missing, uses another scheme, or is empty.
func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeJSONError(w, http.StatusUnauthorized, message)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message}) //nolint:errcheck
}
