package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

const defaultRequestTimeout = 30 * time.Second

// Timeout buffers the response, so it must not wrap the WebSocket or streaming routes.
// A handler that overruns gets a 503 carrying the REQUEST_TIMEOUT envelope.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	message := string(errorBody("REQUEST_TIMEOUT", "Request timed out"))

	return func(next http.Handler) http.Handler {
		guarded := http.TimeoutHandler(next, timeout, message)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			guarded.ServeHTTP(&timeoutWriter{ResponseWriter: w, request: r, limit: timeout}, r)
		})
	}
}

// timeoutWriter labels the body http.TimeoutHandler writes on expiry. A
// completed handler's headers are copied in before WriteHeader, so a 503
// arriving without a Content-Type can only be the timeout reply.
type timeoutWriter struct {
	http.ResponseWriter
	request *http.Request
	limit   time.Duration
}

func (w *timeoutWriter) WriteHeader(status int) {
	if status == http.StatusServiceUnavailable && w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
		slog.Warn("request timed out",
			"method", w.request.Method,
			"path", w.request.URL.Path,
			"limit", w.limit.String(),
			"ip", ClientIP(w.request),
		)
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *timeoutWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
