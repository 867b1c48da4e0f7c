// Package identity verifies caller identity established by the external
// identity service. It never issues tokens.
package identity

import "context"

type contextKey int

const (
	userKey contextKey = iota
	bootstrapKey
)

// ContextWithUser stores the verified user ID on the context.
func ContextWithUser(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userKey, userID)
}

// UserIDFromContext returns the verified user ID, if any.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userKey).(int64)
	return id, ok
}

// ContextWithBootstrap marks the request as authenticated by the
// bootstrap admin key.
func ContextWithBootstrap(ctx context.Context) context.Context {
	return context.WithValue(ctx, bootstrapKey, true)
}

// IsBootstrap reports whether the bootstrap admin key authenticated the
// request.
func IsBootstrap(ctx context.Context) bool {
	ok, _ := ctx.Value(bootstrapKey).(bool)
	return ok
}
