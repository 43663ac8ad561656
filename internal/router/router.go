package router

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"aqms-backend/internal/config"
	"aqms-backend/internal/handler"
	"aqms-backend/internal/middleware"
	"aqms-backend/internal/model"
)

const healthTimeout = 2 * time.Second

type Handlers struct {
	Auth      *handler.AuthHandler
	Admin     *handler.AdminHandler
	Audit     *handler.AuditHandler
	Reading   *handler.ReadingHandler
	WebSocket *handler.WebSocketHandler
	Docs      *handler.DocsHandler
}

// HealthCheck reports whether backing storage is reachable. Nil means always healthy.
type HealthCheck func(ctx context.Context) error

func New(cfg *config.Config, authMiddleware *middleware.AuthMiddleware, h Handlers, health HealthCheck) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)
	trustedProxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		// Load validates the list; a hand-built config falls back to the socket peer.
		slog.Warn("ignoring TRUSTED_PROXIES", "error", err)
		trustedProxies = nil
	}

	r.Use(middleware.Recovery)
	r.Use(middleware.RealIP(trustedProxies))
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()
			if err := health(ctx); err != nil {
				slog.Warn("health check failed", "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("unavailable"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if h.Docs != nil {
		r.Get("/openapi.yaml", h.Docs.OpenAPI)
		r.Get("/docs", h.Docs.SwaggerUI)
	}

	// Long-lived and streaming routes stay outside the buffering timeout.
	r.Get("/ws", h.WebSocket.Serve)
	r.With(
		middleware.StreamingTimeout(cfg.ServerWriteTimeout),
		authMiddleware.RequireAuth,
		authMiddleware.RequireRoles(model.RoleAdmin),
	).Get("/admin/export-csv", h.Admin.ExportCSV)

	r.Group(func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Post("/register", h.Auth.Register)
		api.Post("/login", h.Auth.Login)
		api.With(authMiddleware.RequireAuth).Get("/me", h.Auth.Me)
		api.With(authMiddleware.RequireAuth).Post("/change-password", h.Auth.ChangePassword)

		adminOnly := api.With(authMiddleware.RequireAuth, authMiddleware.RequireRoles(model.RoleAdmin))
		adminOnly.Get("/admin/dashboard", h.Admin.Dashboard)
		adminOnly.Get("/admin/users", h.Admin.Users)
		adminOnly.Get("/admin/audit", h.Audit.List)

		api.With(middleware.DeviceKey(cfg.DeviceAPIKey)).Post("/api/data", h.Reading.Create)
		api.Get("/api/data", h.Reading.List)
	})

	return r
}
