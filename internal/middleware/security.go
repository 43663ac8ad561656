package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
)

const deviceKeyHeader = "X-Device-Key"

func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// DeviceKey guards sensor ingestion with a shared key. An empty key leaves the route open.
func DeviceKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(deviceKeyHeader)
			if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
				slog.Warn("device key rejected", "request_id", RequestIDFromContext(r.Context()), "present", presented != "")
				writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid device key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
