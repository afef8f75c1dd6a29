package handlers

import (
	"net/http"

	"github.com/ChatRelay/go-chat-relay/internal/middleware"
	"github.com/ChatRelay/go-chat-relay/internal/util"
	"github.com/ChatRelay/go-chat-relay/models"
)

// writeError maps a core error onto the gateway response. Internal
// failures are logged with detail but surface as an opaque message.
func writeError(w http.ResponseWriter, logger models.Logger, r *http.Request, err error) {
	status := models.HTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
		)
		message = "internal error"
	}
	util.JSONResponse(w, status, map[string]string{"error": message})
}

// callerID resolves the authenticated user or writes a 401.
func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok || identity.UserID == "" {
		util.JSONResponse(w, http.StatusUnauthorized, map[string]string{
			"error": "authentication required",
		})
		return "", false
	}
	return identity.UserID, true
}
