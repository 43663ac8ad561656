package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS allows the dashboard origins. Credentials stay off because auth travels
// in the Authorization header, not cookies.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	handler := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", requestIDHeader, deviceKeyHeader},
		ExposedHeaders:   []string{"Content-Disposition", requestIDHeader},
		MaxAge:           3600,
		AllowCredentials: false,
	})

	return handler.Handler
}
