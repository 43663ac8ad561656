package middleware

import (
	"context"
	"net/http"
	"time"
)

// StreamingTimeout bounds routes that stream their body (CSV export) without
// buffering it the way http.TimeoutHandler does. The handler sees a context that
// ends at maxDuration and the connection write deadline is set to match.
func StreamingTimeout(maxDuration time.Duration) func(http.Handler) http.Handler {
	if maxDuration <= 0 {
		maxDuration = 2 * time.Minute
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), maxDuration)
			defer cancel()

			// Not every writer supports deadlines (httptest.ResponseRecorder does not).
			_ = http.NewResponseController(w).SetWriteDeadline(time.Now().Add(maxDuration))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
