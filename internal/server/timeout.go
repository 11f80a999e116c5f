package server

import (
	"context"
	"net/http"
	"time"
)

// TimeoutMiddleware bounds the whole request. The budget must cover both
// upstream trips a turn can make (model call and bank call carry their own
// shorter per-call timeouts), so it is set well above their sum.
// Cancellation is cooperative: the handler observes context.Done() through
// the upstream clients; nothing is forcibly terminated.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
