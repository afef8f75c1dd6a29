package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChatRelay/go-chat-relay/internal/ratelimit"
	"github.com/ChatRelay/go-chat-relay/internal/util"
	"github.com/ChatRelay/go-chat-relay/models"
)

func staticVerifier(t *testing.T) models.IdentityVerifier {
	t.Helper()
	return models.IdentityVerifierFunc(func(ctx context.Context, token string) (models.Identity, error) {
		if token == "token-alice" {
			return models.Identity{UserID: "alice"}, nil
		}
		return models.Identity{}, models.ErrUnauthorized
	})
}

func TestAuth(t *testing.T) {
	var seen models.Identity
	handler := Auth(staticVerifier(t), util.NewMockLogger())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen, _ = IdentityFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		}),
	)

	t.Run("valid token", func(t *testing.T) {
		req := util.CreateMockRequest(http.MethodGet, "/friends", nil, nil, map[string]string{
			"Authorization": "Bearer token-alice",
		})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "alice", seen.UserID)
	})

	t.Run("missing token", func(t *testing.T) {
		req := util.CreateMockRequest(http.MethodGet, "/friends", nil, nil, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("bad token", func(t *testing.T) {
		req := util.CreateMockRequest(http.MethodGet, "/friends", nil, nil, map[string]string{
			"Authorization": "Bearer nope",
		})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	newLimiter := func(t *testing.T, max int) *ratelimit.Limiter {
		t.Helper()
		provider := ratelimit.NewMemoryProvider()
		t.Cleanup(func() { provider.Close() })
		return ratelimit.NewLimiter(models.RateLimitRule{
			Window: time.Minute,
			Max:    max,
			Prefix: "rl:test:",
		}, provider, util.NewMockLogger())
	}

	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("allows under the limit and sets headers", func(t *testing.T) {
		handler := RateLimit(newLimiter(t, 2), nil, util.NewMockLogger())(okHandler)

		req := util.CreateMockRequest(http.MethodPost, "/friends/requests", nil, nil, nil)
		req.RemoteAddr = "10.0.0.1:4242"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))
	})

	t.Run("rejects over the limit with Retry-After", func(t *testing.T) {
		handler := RateLimit(newLimiter(t, 1), nil, util.NewMockLogger())(okHandler)

		req := util.CreateMockRequest(http.MethodPost, "/friends/requests", nil, nil, nil)
		req.RemoteAddr = "10.0.0.1:4242"

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
	})

	t.Run("keys on identity before network origin", func(t *testing.T) {
		handler := RateLimit(newLimiter(t, 1), nil, util.NewMockLogger())(okHandler)

		// Two users behind the same address get independent windows.
		for _, user := range []string{"alice", "bob"} {
			req := util.CreateMockRequest(http.MethodPost, "/friends/requests", nil, nil, nil)
			req.RemoteAddr = "10.0.0.1:4242"
			req = req.WithContext(WithIdentity(req.Context(), models.Identity{UserID: user}))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusOK, rec.Code)
		}
	})
}
