package handlers

import (
	"net/http"

	"github.com/ChatRelay/go-chat-relay/internal/util"
)

type HealthHandler struct {
	AppName string
}

func (h *HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	util.JSONResponse(w, http.StatusOK, map[string]string{
		"status": "ok",
		"app":    h.AppName,
	})
}
