package models

import "context"

// Identity is the opaque caller identity the gateway boundary resolves
// before the rate limiter and friend graph run.
type Identity struct {
	UserID string
}

// IdentityVerifier is the verify(token) contract. Token issuance and
// validation live outside this subsystem; the core only consumes the
// resolved identity or an ErrUnauthorized.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// IdentityVerifierFunc adapts a function to the IdentityVerifier interface.
type IdentityVerifierFunc func(ctx context.Context, token string) (Identity, error)

func (f IdentityVerifierFunc) Verify(ctx context.Context, token string) (Identity, error) {
	return f(ctx, token)
}
