package models

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error taxonomy for the presence/fanout core. Handlers map these onto
// gateway response codes; services return them without touching state.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInternal     = errors.New("internal error")
)

// Conflict refinements for the friend graph. Both wrap ErrConflict so
// callers can match either the broad or the precise condition.
var (
	ErrAlreadyPending = fmt.Errorf("%w: request already pending", ErrConflict)
	ErrAlreadyFriends = fmt.Errorf("%w: already friends", ErrConflict)
)

// RateLimitedError is returned when a fixed-window quota is exhausted.
// It carries what the gateway needs for Retry-After and X-RateLimit-*.
type RateLimitedError struct {
	Limit      int
	ResetAt    time.Time
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter.Round(time.Second))
}

// HTTPStatus maps a core error to its gateway response code.
func HTTPStatus(err error) int {
	var rl *RateLimitedError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &rl):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		// The gateway treats conflicts as invalid input rather than 409.
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
