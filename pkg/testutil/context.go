package testutil

import (
	"context"
	"time"

	"splitgroups/pkg/requestcontext"
)

// AuthContext returns a context carrying what the auth and request-time
// middleware would set for an authenticated caller.
func AuthContext(userID, plan string, now time.Time) context.Context {
	ctx := requestcontext.WithUserID(context.Background(), userID)
	ctx = requestcontext.WithPlan(ctx, plan)
	return requestcontext.WithTime(ctx, now)
}
