// Package requesttime pins one "now" per HTTP request, so a group's updatedAt
// and the timestamp of the event published for that write agree.
package requesttime

import (
	"net/http"
	"time"

	"splitgroups/pkg/requestcontext"
)

// Middleware stamps each request with the wall clock in UTC.
func Middleware(next http.Handler) http.Handler {
	return WithClock(time.Now)(next)
}

// WithClock stamps each request with now(), truncated to milliseconds to
// match the precision of the ISO-8601 timestamps the service emits.
func WithClock(now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithTime(r.Context(), now().UTC().Truncate(time.Millisecond))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
