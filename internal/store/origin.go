package store

import "context"

type ctxKey string

const originKey ctxKey = "change_origin"

// WithOrigin tags a context with the id of the execution context issuing
// the write. Repositories stamp it onto the change events they emit, so a
// relaying context can recognize and skip its own events.
func WithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, originKey, origin)
}

// OriginFromContext returns the tagged origin, or the empty string.
func OriginFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(originKey).(string); ok {
		return v
	}
	return ""
}
