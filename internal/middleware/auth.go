package middleware

import (
	"context"
	"net/http"

	"github.com/ChatRelay/go-chat-relay/internal/util"
	"github.com/ChatRelay/go-chat-relay/models"
)

type contextKey string

const identityKey contextKey = "identity"

// IdentityFromContext returns the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (models.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(models.Identity)
	return identity, ok
}

// WithIdentity stamps an identity onto the context. Exposed for tests and
// embedding deployments that authenticate upstream.
func WithIdentity(ctx context.Context, identity models.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// Auth resolves the bearer credential through the verifier and rejects
// anything it cannot resolve. Token issuance lives outside this service;
// the verifier is the single seam to the surrounding auth system.
func Auth(verifier models.IdentityVerifier, logger models.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := util.BearerToken(r)
			if token == "" {
				util.JSONResponse(w, http.StatusUnauthorized, map[string]string{
					"error": "missing bearer token",
				})
				return
			}

			identity, err := verifier.Verify(r.Context(), token)
			if err != nil {
				logger.Debug("token verification failed",
					"error", err,
					"path", r.URL.Path,
				)
				util.JSONResponse(w, http.StatusUnauthorized, map[string]string{
					"error": "invalid credentials",
				})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}
