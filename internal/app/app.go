package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aqms-backend/internal/alert"
	"aqms-backend/internal/cache"
	"aqms-backend/internal/config"
	"aqms-backend/internal/database"
	"aqms-backend/internal/event"
	"aqms-backend/internal/handler"
	"aqms-backend/internal/middleware"
	"aqms-backend/internal/repository"
	"aqms-backend/internal/retention"
	"aqms-backend/internal/router"
	"aqms-backend/internal/service"
	"aqms-backend/internal/websocket"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	server       *http.Server
	cleanupFuncs []func(ctx context.Context)
}

// Stores holds the persistence backing the services.
type Stores struct {
	Users    service.UserStore
	Readings service.ReadingStore
	Audit    service.AuditStore
	Health   router.HealthCheck
}

// OpenStores connects to PostgreSQL and migrates it, or falls back to process
// memory when no DATABASE_URL is configured. The returned func releases the pool.
func OpenStores(ctx context.Context, cfg *config.Config) (Stores, func(), error) {
	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL is empty; using in-memory stores, data will not survive a restart")
		return Stores{
			Users:    repository.NewMemoryUserRepository(),
			Readings: repository.NewMemoryReadingRepository(),
			Audit:    repository.NewMemoryAuditRepository(0),
		}, func() {}, nil
	}

	slog.Info("connecting to PostgreSQL")
	db, err := database.New(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return Stores{}, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return Stores{}, nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	slog.Info("database ready")

	return Stores{
		Users:    repository.NewUserRepository(db.Pool),
		Readings: repository.NewReadingRepository(db.Pool),
		Audit:    repository.NewAuditRepository(db.Pool),
		Health:   db.Health,
	}, db.Close, nil
}

func New(cfg *config.Config) (*App, error) {
	ctx := context.Background()
	var cleanups []func(ctx context.Context)
	fail := func(err error) (*App, error) {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i](ctx)
		}
		return nil, err
	}

	stores, closeStores, err := OpenStores(ctx, cfg)
	if err != nil {
		return nil, err
	}
	cleanups = append(cleanups, func(context.Context) { closeStores() })

	hasher := service.NewPasswordHasher(cfg.BcryptCost)
	tokens, err := service.NewTokenService(cfg.JWTSecret, cfg.JWTAccessTTL)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize token service: %w", err))
	}
	users := service.NewUserDirectory(stores.Users, hasher, cfg.DBQueryTimeout)
	authService := service.NewAuthService(users, hasher, tokens, cfg.AllowAdminRegistration)
	authMiddleware := middleware.NewAuthMiddleware(tokens, users)
	auditService := service.NewAuditService(stores.Audit)

	bus := event.NewBus()
	hubCtx, hubCancel := context.WithCancel(context.Background())
	hub := websocket.NewHub(bus)
	go hub.Run(hubCtx)
	cleanups = append(cleanups, func(context.Context) { hubCancel() })

	readingOpts := service.ReadingServiceOptions{
		Bus:          bus,
		MaxLimit:     cfg.ReadingsListLimit,
		QueryTimeout: cfg.DBQueryTimeout,
		Alerts: alert.NewEvaluator(alert.Thresholds{
			PM25:       cfg.AlertPM25Threshold,
			PM10:       cfg.AlertPM10Threshold,
			BatteryMin: cfg.AlertBatteryMin,
		}, cfg.AlertCooldown),
	}

	if cfg.RedisURL != "" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			slog.Warn("redis unavailable; serving readings without cache", "error", err)
		} else {
			readingOpts.Cache = cache.NewReadingsCache(client, cfg.ReadingsCacheTTL)
			cleanups = append(cleanups, func(context.Context) { _ = client.Close() })
			slog.Info("readings cache enabled", "ttl", cfg.ReadingsCacheTTL.String())
		}
	}

	notifiers := []alert.Notifier{alert.LogNotifier{}}
	if cfg.AMQPURL != "" {
		amqpNotifier, err := alert.NewAMQPNotifier(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			slog.Warn("rabbitmq unavailable; alerts go to the log only", "error", err)
		} else {
			notifiers = append(notifiers, amqpNotifier)
			cleanups = append(cleanups, func(context.Context) { _ = amqpNotifier.Close() })
			slog.Info("alert publishing enabled", "exchange", cfg.AMQPExchange)
		}
	}
	dispatcher := alert.NewDispatcher(notifiers...)
	readingOpts.Dispatcher = dispatcher
	// Runs before the AMQP channel closes because cleanups unwind in reverse.
	cleanups = append(cleanups, dispatcher.Wait)

	readingService := service.NewReadingService(stores.Readings, readingOpts)

	if cfg.RetentionDays > 0 {
		scheduler, err := retention.New(stores.Readings, bus, readingOpts.Cache, cfg.RetentionDays, cfg.RetentionSchedule)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize retention: %w", err))
		}
		scheduler.Start()
		cleanups = append(cleanups, func(context.Context) { scheduler.Stop() })
	}

	appRouter := router.New(cfg, authMiddleware, router.Handlers{
		Auth:      handler.NewAuthHandler(authService, auditService),
		Audit:     handler.NewAuditHandler(auditService),
		Admin:     handler.NewAdminHandler(authService, readingService),
		Reading:   handler.NewReadingHandler(readingService),
		WebSocket: handler.NewWebSocketHandler(hub, cfg.CORSOrigins),
		Docs:      handler.NewDocsHandler(),
	}, stores.Health)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &App{server: server, cleanupFuncs: cleanups}, nil
}

// Run serves until SIGINT/SIGTERM, then drains requests and releases resources.
func (a *App) Run() error {
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-serveErr:
		a.cleanup(context.Background())
		return fmt.Errorf("server failed: %w", err)
	case sig := <-stop:
		slog.Info("shutdown requested", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	shutdownErr := a.server.Shutdown(ctx)
	a.cleanup(ctx)
	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
	}

	slog.Info("server stopped")
	return nil
}

func (a *App) cleanup(ctx context.Context) {
	for i := len(a.cleanupFuncs) - 1; i >= 0; i-- {
		a.cleanupFuncs[i](ctx)
	}
}
