package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/pathpredict/pathpredict/internal/api/models"
)

// AdminToken creates middleware that guards operator endpoints with a static
// bearer token. An empty token disables the endpoints entirely.
func AdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				writeForbidden(w, r, "admin endpoints are disabled")
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeUnauthorized(w, r, "missing authorization header")
				return
			}

			// Check for Bearer prefix (case-insensitive)
			const bearerPrefix = "Bearer "
			if len(authHeader) < len(bearerPrefix) ||
				!strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
				writeUnauthorized(w, r, "invalid authorization header format")
				return
			}

			presented := authHeader[len(bearerPrefix):]
			if presented == "" {
				writeUnauthorized(w, r, "missing bearer token")
				return
			}

			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				writeUnauthorized(w, r, "invalid admin token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	models.NewUnauthorized(GetRequestID(r.Context()), detail).Respond(w, r)
}

func writeForbidden(w http.ResponseWriter, r *http.Request, detail string) {
	models.NewForbidden(GetRequestID(r.Context()), detail).Respond(w, r)
}
