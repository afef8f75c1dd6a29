package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ChatRelay/go-chat-relay/internal/friends"
	"github.com/ChatRelay/go-chat-relay/internal/middleware"
	"github.com/ChatRelay/go-chat-relay/internal/presence"
	"github.com/ChatRelay/go-chat-relay/internal/ratelimit"
	"github.com/ChatRelay/go-chat-relay/models"
)

// Limiters carries the per-surface limiter instances. Each is its own
// fixed window; exhausting one never throttles the others.
type Limiters struct {
	Presence       *ratelimit.Limiter
	FriendRequests *ratelimit.Limiter
}

// Dependencies is everything the route table needs.
type Dependencies struct {
	Config   *models.Config
	Presence *presence.Service
	Friends  *friends.Service
	Verifier models.IdentityVerifier
	Limiters Limiters
	Logger   models.Logger
}

// Routes builds the gateway route table. Everything except the health
// probe sits behind authentication; writes additionally sit behind their
// surface's rate limiter.
func Routes(deps Dependencies) chi.Router {
	r := chi.NewRouter()

	health := &HealthHandler{AppName: deps.Config.AppName}
	r.Get("/healthz", health.Handle)

	auth := middleware.Auth(deps.Verifier, deps.Logger)

	heartbeat := &HeartbeatHandler{Presence: deps.Presence, Logger: deps.Logger}
	status := &StatusHandler{Presence: deps.Presence, Logger: deps.Logger}
	typing := &TypingHandler{Presence: deps.Presence, Logger: deps.Logger}
	getPresence := &GetPresenceHandler{Presence: deps.Presence, Logger: deps.Logger}
	online := &OnlineHandler{Presence: deps.Presence, Logger: deps.Logger}

	r.Route("/presence", func(r chi.Router) {
		r.Use(auth)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(deps.Limiters.Presence, nil, deps.Logger))
			r.Post("/heartbeat", heartbeat.Handle)
			r.Put("/status", status.Handle)
			r.Post("/typing", typing.Handle)
		})

		r.Get("/online", online.Handle)
		r.Get("/{userID}", getPresence.Handle)
	})

	createRequest := &CreateFriendRequestHandler{Friends: deps.Friends, Logger: deps.Logger}
	listRequests := &ListFriendRequestsHandler{Friends: deps.Friends, Logger: deps.Logger}
	acceptRequest := &ResolveFriendRequestHandler{Friends: deps.Friends, Action: friends.ActionAccept, Logger: deps.Logger}
	rejectRequest := &ResolveFriendRequestHandler{Friends: deps.Friends, Action: friends.ActionReject, Logger: deps.Logger}
	listFriends := &ListFriendsHandler{Friends: deps.Friends, Logger: deps.Logger}

	r.Route("/friends", func(r chi.Router) {
		r.Use(auth)

		r.Get("/", listFriends.Handle)

		r.Route("/requests", func(r chi.Router) {
			r.With(middleware.RateLimit(deps.Limiters.FriendRequests, nil, deps.Logger)).
				Post("/", createRequest.Handle)
			r.Get("/", listRequests.Handle)
			r.Post("/{requestID}/accept", acceptRequest.Handle)
			r.Post("/{requestID}/reject", rejectRequest.Handle)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, deps.Logger, r, models.ErrNotFound)
	})

	return r
}
