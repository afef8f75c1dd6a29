package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ChatRelay/go-chat-relay/internal/friends"
	"github.com/ChatRelay/go-chat-relay/internal/util"
	"github.com/ChatRelay/go-chat-relay/models"
)

type CreateFriendRequestPayload struct {
	UserID string `json:"user_id" validate:"required"`
}

type CreateFriendRequestHandler struct {
	Friends *friends.Service
	Logger  models.Logger
}

func (h *CreateFriendRequestHandler) Handle(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var payload CreateFriendRequestPayload
	if err := util.ParseJSON(r, &payload); err != nil {
		util.JSONResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := util.Validate.Struct(payload); err != nil {
		util.JSONResponse(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}

	request, err := h.Friends.CreateRequest(r.Context(), userID, payload.UserID)
	if err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	util.JSONResponse(w, http.StatusCreated, request)
}

// ------------------------------------

type ListFriendRequestsHandler struct {
	Friends *friends.Service
	Logger  models.Logger
}

func (h *ListFriendRequestsHandler) Handle(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	requests, err := h.Friends.ListPending(r.Context(), userID)
	if err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	util.JSONResponse(w, http.StatusOK, map[string]any{"requests": requests})
}

// ------------------------------------

// ResolveFriendRequestHandler serves both the accept and reject routes;
// Action picks which transition this instance applies.
type ResolveFriendRequestHandler struct {
	Friends *friends.Service
	Action  friends.ResolveAction
	Logger  models.Logger
}

type resolveFriendRequestResponse struct {
	Request    *models.FriendRequest `json:"request"`
	Friendship *models.Friendship    `json:"friendship,omitempty"`
}

func (h *ResolveFriendRequestHandler) Handle(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	requestID := chi.URLParam(r, "requestID")
	request, friendship, err := h.Friends.ResolveRequest(r.Context(), requestID, h.Action, userID)
	if err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	util.JSONResponse(w, http.StatusOK, resolveFriendRequestResponse{
		Request:    request,
		Friendship: friendship,
	})
}

// ------------------------------------

type ListFriendsHandler struct {
	Friends *friends.Service
	Logger  models.Logger
}

func (h *ListFriendsHandler) Handle(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	friendships, err := h.Friends.ListFriendships(r.Context(), userID)
	if err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	util.JSONResponse(w, http.StatusOK, map[string]any{"friends": friendships})
}
