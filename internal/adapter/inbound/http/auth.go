package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aisafe-dev/aisafegate/internal/domain/auth"
)

// identityContextKey carries the authenticated identity through the
// request context.
type identityContextKey struct{}

// IdentityKey is the context key for the authenticated identity.
var IdentityKey = identityContextKey{}

// AuthMiddleware verifies the Authorization bearer token against the
// keyring and stores the resolved identity in the request context. The
// health and metrics endpoints stay open for probes and scrapers.
func AuthMiddleware(keyring *auth.Keyring, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/metrics" || r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			rawKey, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, errorDetail{
					Message: "missing bearer token",
					Type:    "authentication_error",
				})
				return
			}

			identity, err := keyring.Resolve(rawKey)
			if err != nil {
				logger.Warn("api key rejected", "path", r.URL.Path)
				writeError(w, http.StatusUnauthorized, errorDetail{
					Message: "invalid api key",
					Type:    "authentication_error",
				})
				return
			}

			ctx := context.WithValue(r.Context(), IdentityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}

// AuthenticatedIdentity returns the identity stored by AuthMiddleware,
// or empty when authentication is disabled.
func AuthenticatedIdentity(ctx context.Context) string {
	if id, ok := ctx.Value(IdentityKey).(string); ok {
		return id
	}
	return ""
}
