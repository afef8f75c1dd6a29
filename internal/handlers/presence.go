package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ChatRelay/go-chat-relay/internal/presence"
	"github.com/ChatRelay/go-chat-relay/internal/util"
	"github.com/ChatRelay/go-chat-relay/models"
)

type HeartbeatHandler struct {
	Presence *presence.Service
	Logger   models.Logger
}

func (h *HeartbeatHandler) Handle(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	record, err := h.Presence.Heartbeat(r.Context(), userID)
	if err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	util.JSONResponse(w, http.StatusOK, record)
}

// ------------------------------------

type StatusHandlerPayload struct {
	Status models.PresenceStatus `json:"status" validate:"required"`
}

type StatusHandler struct {
	Presence *presence.Service
	Logger   models.Logger
}

func (h *StatusHandler) Handle(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var payload StatusHandlerPayload
	if err := util.ParseJSON(r, &payload); err != nil {
		util.JSONResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := util.Validate.Struct(payload); err != nil {
		util.JSONResponse(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}

	record, err := h.Presence.SetStatus(r.Context(), userID, payload.Status)
	if err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	util.JSONResponse(w, http.StatusOK, record)
}

// ------------------------------------

type TypingHandlerPayload struct {
	// Typing defaults to true: a bare POST means "started typing".
	Typing *bool `json:"typing"`
}

type TypingHandler struct {
	Presence *presence.Service
	Logger   models.Logger
}

func (h *TypingHandler) Handle(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	typing := true
	if r.ContentLength > 0 {
		var payload TypingHandlerPayload
		if err := util.ParseJSON(r, &payload); err != nil {
			util.JSONResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if payload.Typing != nil {
			typing = *payload.Typing
		}
	}

	record, err := h.Presence.SetTyping(r.Context(), userID, typing)
	if err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	util.JSONResponse(w, http.StatusOK, record)
}

// ------------------------------------

type GetPresenceHandler struct {
	Presence *presence.Service
	Logger   models.Logger
}

func (h *GetPresenceHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if _, ok := callerID(w, r); !ok {
		return
	}

	userID := chi.URLParam(r, "userID")
	snapshot, err := h.Presence.Get(r.Context(), userID)
	if err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	util.JSONResponse(w, http.StatusOK, snapshot)
}

// ------------------------------------

type OnlineHandler struct {
	Presence *presence.Service
	Logger   models.Logger
}

func (h *OnlineHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if _, ok := callerID(w, r); !ok {
		return
	}

	snapshots, err := h.Presence.Online(r.Context())
	if err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	util.JSONResponse(w, http.StatusOK, map[string]any{"users": snapshots})
}
