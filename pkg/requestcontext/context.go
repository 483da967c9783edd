// Package requestcontext carries the caller identity, plan, request ID and
// request time through context so services never import net/http.
//
// Middleware sets the values; tests inject them directly:
//
//	ctx = requestcontext.WithTime(requestcontext.WithUserID(ctx, "u1"), fixedTime)
package requestcontext

import (
	"context"
	"time"
)

type (
	userIDKey      struct{}
	planKey        struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

func value[T any](ctx context.Context, key any) (T, bool) {
	v, ok := ctx.Value(key).(T)
	return v, ok
}

// UserID is the authenticated caller, or "" for anonymous contexts
// (subscriber loop, reconciler).
func UserID(ctx context.Context) string {
	id, _ := value[string](ctx, userIDKey{})
	return id
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// Plan is the caller's subscription plan as carried by the access token.
func Plan(ctx context.Context) string {
	plan, _ := value[string](ctx, planKey{})
	return plan
}

func WithPlan(ctx context.Context, plan string) context.Context {
	return context.WithValue(ctx, planKey{}, plan)
}

func RequestID(ctx context.Context) string {
	id, _ := value[string](ctx, requestIDKey{})
	return id
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now returns the request-pinned time, falling back to the wall clock in UTC.
func Now(ctx context.Context) time.Time {
	if t, ok := value[time.Time](ctx, requestTimeKey{}); ok {
		return t
	}
	return time.Now().UTC()
}

func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
