package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ChatRelay/go-chat-relay/internal/ratelimit"
	"github.com/ChatRelay/go-chat-relay/internal/util"
	"github.com/ChatRelay/go-chat-relay/models"
)

// LimiterKey is the default key policy: the authenticated identity when
// present, otherwise the network origin. Authenticated abuse is isolated
// per user instead of per NAT.
func LimiterKey(r *http.Request) string {
	if identity, ok := IdentityFromContext(r.Context()); ok && identity.UserID != "" {
		return "user:" + identity.UserID
	}
	return "ip:" + util.ClientIP(r)
}

// RateLimit gates the wrapped handler on one limiter instance. The check
// runs before the handler, so a rejected request causes no store write.
// Rejections carry Retry-After plus the X-RateLimit-* triple.
func RateLimit(limiter *ratelimit.Limiter, keyFn ratelimit.KeyFunc, logger models.Logger) func(http.Handler) http.Handler {
	if keyFn == nil {
		keyFn = LimiterKey
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result, err := limiter.Check(r.Context(), keyFn(r))
			if err != nil {
				// A broken counter backend must not take writes down with
				// it; the request proceeds unthrottled.
				logger.Error("rate limit check failed",
					"error", err,
					"path", r.URL.Path,
				)
				next.ServeHTTP(w, r)
				return
			}

			setRateLimitHeaders(w, result)
			if !result.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfterSeconds(result.RetryAfter))))
				util.JSONResponse(w, http.StatusTooManyRequests, map[string]string{
					"error": result.Err().Error(),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, result ratelimit.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	if !result.ResetAt.IsZero() {
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	}
}

func retryAfterSeconds(d time.Duration) int64 {
	secs := int64(d / time.Second)
	if d%time.Second != 0 || secs == 0 {
		secs++
	}
	return secs
}
