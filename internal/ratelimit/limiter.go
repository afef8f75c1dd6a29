package ratelimit

import (
	"context"
	"net/http"
	"time"

	"github.com/ChatRelay/go-chat-relay/models"
)

// Provider is the counter backend for fixed-window rate limiting.
// Implementations must make the check-and-increment atomic per key:
// two concurrent checks that both observe one remaining slot must not
// both be allowed.
type Provider interface {
	// GetName returns the name of the provider
	GetName() string
	// CheckAndIncrement checks whether a request under key is allowed and
	// increments the window counter only if it is. Rejected calls do not
	// consume quota. Returns (allowed, currentCount, windowResetAt).
	CheckAndIncrement(ctx context.Context, key string, window time.Duration, maxRequests int) (bool, int, time.Time, error)
	// Close closes any resources held by the provider
	Close() error
}

// KeyFunc maps an inbound request to a limiter key. Policy: prefer an
// authenticated-identity-derived key over the raw network origin, so
// authenticated abuse is isolated per user rather than per NAT.
type KeyFunc func(r *http.Request) string

// Result is the outcome of one rate-limit check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter is one independently keyed fixed-window throttle instance.
// Fixed window, not sliding: a burst of up to 2x Max can land across a
// window boundary, accepted for O(1) memory and O(1) per-check cost.
type Limiter struct {
	rule     models.RateLimitRule
	provider Provider
	logger   models.Logger
	now      func() time.Time
}

// NewLimiter builds a limiter for one rule on a shared provider. The
// rule prefix namespaces this instance's keys, so exhausting one limiter
// never affects another on the same backend.
func NewLimiter(rule models.RateLimitRule, provider Provider, logger models.Logger) *Limiter {
	return &Limiter{
		rule:     rule,
		provider: provider,
		logger:   logger,
		now:      time.Now,
	}
}

// Check runs the fixed-window gate for key. It never mutates any state
// beyond the counter itself, so a rejection short-circuits before any
// store write the caller would have made.
func (l *Limiter) Check(ctx context.Context, key string) (Result, error) {
	if l.rule.Disabled {
		return Result{Allowed: true, Limit: l.rule.Max, Remaining: l.rule.Max}, nil
	}

	allowed, count, resetAt, err := l.provider.CheckAndIncrement(ctx, l.rule.Prefix+key, l.rule.Window, l.rule.Max)
	if err != nil {
		return Result{}, err
	}

	remaining := l.rule.Max - count
	if remaining < 0 {
		remaining = 0
	}

	res := Result{
		Allowed:   allowed,
		Limit:     l.rule.Max,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
	if !allowed {
		res.RetryAfter = resetAt.Sub(l.now())
		if res.RetryAfter < 0 {
			res.RetryAfter = 0
		}
	}
	return res, nil
}

// Err converts a rejected Result into the error carried to the gateway.
func (r Result) Err() *models.RateLimitedError {
	if r.Allowed {
		return nil
	}
	return &models.RateLimitedError{
		Limit:      r.Limit,
		ResetAt:    r.ResetAt,
		RetryAfter: r.RetryAfter,
	}
}
