package gochatrelay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	relayconfig "github.com/ChatRelay/go-chat-relay/config"
	"github.com/ChatRelay/go-chat-relay/internal/repositories"
	"github.com/ChatRelay/go-chat-relay/models"
)

func testVerifier() models.IdentityVerifier {
	return models.IdentityVerifierFunc(func(ctx context.Context, token string) (models.Identity, error) {
		var userID string
		if _, err := fmt.Sscanf(token, "tok-%s", &userID); err != nil || userID == "" {
			return models.Identity{}, models.ErrUnauthorized
		}
		return models.Identity{UserID: userID}, nil
	})
}

func newTestRelay(t *testing.T, options ...relayconfig.ConfigOption) *Relay {
	t.Helper()

	base := []relayconfig.ConfigOption{
		relayconfig.WithDatabase(models.DatabaseConfig{Provider: "memory"}),
		relayconfig.WithLogLevel("error"),
	}
	config := relayconfig.NewConfig(append(base, options...)...)

	relay, err := New(config,
		WithIdentityVerifier(testVerifier()),
		WithUserDirectory(repositories.NewMemoryUserDirectory("alice", "bob", "carol")),
	)
	require.NoError(t, err)
	t.Cleanup(func() { relay.Close() })
	return relay
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest))
}

func TestFriendRequestFlow(t *testing.T) {
	relay := newTestRelay(t)
	handler := relay.Handler()

	// Unauthenticated requests never reach the friend graph.
	rec := doJSON(t, handler, http.MethodPost, "/relay/friends/requests", "", map[string]string{"user_id": "bob"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// alice invites bob.
	rec = doJSON(t, handler, http.MethodPost, "/relay/friends/requests", "tok-alice", map[string]string{"user_id": "bob"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.FriendRequest
	decodeBody(t, rec, &created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "alice", created.FromUser)
	assert.Equal(t, "bob", created.ToUser)
	assert.Equal(t, models.FriendRequestPending, created.Status)

	// bob sees it pending.
	rec = doJSON(t, handler, http.MethodGet, "/relay/friends/requests", "tok-bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var pending struct {
		Requests []models.FriendRequest `json:"requests"`
	}
	decodeBody(t, rec, &pending)
	require.Len(t, pending.Requests, 1)
	assert.Equal(t, created.ID, pending.Requests[0].ID)

	// alice cannot accept her own invitation.
	rec = doJSON(t, handler, http.MethodPost, "/relay/friends/requests/"+created.ID+"/accept", "tok-alice", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	// bob accepts; the friendship comes back in canonical order.
	rec = doJSON(t, handler, http.MethodPost, "/relay/friends/requests/"+created.ID+"/accept", "tok-bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resolved struct {
		Request    models.FriendRequest `json:"request"`
		Friendship *models.Friendship   `json:"friendship"`
	}
	decodeBody(t, rec, &resolved)
	assert.Equal(t, models.FriendRequestAccepted, resolved.Request.Status)
	require.NotNil(t, resolved.Friendship)
	assert.Equal(t, "alice", resolved.Friendship.UserA)
	assert.Equal(t, "bob", resolved.Friendship.UserB)

	// Both sides list the friendship.
	for _, token := range []string{"tok-alice", "tok-bob"} {
		rec = doJSON(t, handler, http.MethodGet, "/relay/friends/", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var friendsList struct {
			Friends []models.Friendship `json:"friends"`
		}
		decodeBody(t, rec, &friendsList)
		require.Len(t, friendsList.Friends, 1)
	}

	// Re-inviting an existing friend fails, in either direction.
	rec = doJSON(t, handler, http.MethodPost, "/relay/friends/requests", "tok-alice", map[string]string{"user_id": "bob"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = doJSON(t, handler, http.MethodPost, "/relay/friends/requests", "tok-bob", map[string]string{"user_id": "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFriendRequestValidation(t *testing.T) {
	relay := newTestRelay(t)
	handler := relay.Handler()

	t.Run("unknown target", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/relay/friends/requests", "tok-alice", map[string]string{"user_id": "nobody"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("self invitation", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/relay/friends/requests", "tok-alice", map[string]string{"user_id": "alice"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing user_id", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/relay/friends/requests", "tok-alice", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("duplicate pending either direction", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/relay/friends/requests", "tok-alice", map[string]string{"user_id": "carol"})
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = doJSON(t, handler, http.MethodPost, "/relay/friends/requests", "tok-carol", map[string]string{"user_id": "alice"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown request id", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/relay/friends/requests/does-not-exist/accept", "tok-alice", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestFriendRequestRateLimit(t *testing.T) {
	relay := newTestRelay(t, relayconfig.WithRateLimit(models.RateLimitConfig{
		Provider:       "memory",
		FriendRequests: models.RateLimitRule{Window: time.Minute, Max: 2, Prefix: "rl:friend:"},
		Presence:       models.RateLimitRule{Window: time.Minute, Max: 120, Prefix: "rl:presence:"},
	}))
	handler := relay.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/relay/friends/requests", "tok-alice", map[string]string{"user_id": "bob"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, handler, http.MethodPost, "/relay/friends/requests", "tok-alice", map[string]string{"user_id": "carol"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/relay/friends/requests", "tok-alice", map[string]string{"user_id": "carol"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	// Another user behind the same gateway is unaffected.
	rec = doJSON(t, handler, http.MethodPost, "/relay/friends/requests", "tok-bob", map[string]string{"user_id": "carol"})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestHealthz(t *testing.T) {
	relay := newTestRelay(t)

	rec := doJSON(t, relay.Handler(), http.MethodGet, "/relay/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
