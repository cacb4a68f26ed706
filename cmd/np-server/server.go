package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/nptracker/nptracker/internal/config"
	"github.com/nptracker/nptracker/internal/domain/patient"
	"github.com/nptracker/nptracker/internal/domain/reminder"
	"github.com/nptracker/nptracker/internal/domain/tasktype"
	"github.com/nptracker/nptracker/internal/domain/transfer"
	"github.com/nptracker/nptracker/internal/platform/auth"
	"github.com/nptracker/nptracker/internal/platform/db"
	"github.com/nptracker/nptracker/internal/platform/middleware"
	"github.com/nptracker/nptracker/internal/platform/telemetry"
)

// services are the domain services wired over one connection pool.
type services struct {
	patients  *patient.Service
	taskTypes *tasktype.Service
	reminders *reminder.Service
	transfer  *transfer.Service
}

func registryConfig(cfg *config.Config) tasktype.RegistryConfig {
	return tasktype.RegistryConfig{Size: cfg.RegistryCacheSize, TTL: cfg.RegistryCacheTTL}
}

func newServices(pool *pgxpool.Pool, cfg *config.Config, metrics *telemetry.Metrics, logger zerolog.Logger) (*services, error) {
	patientSvc := patient.NewService(patient.NewRepoPG(pool), logger)

	typeRepo := tasktype.NewRepoPG(pool)
	registry, err := tasktype.NewRegistry(typeRepo, registryConfig(cfg), metrics)
	if err != nil {
		return nil, err
	}
	typeSvc := tasktype.NewService(typeRepo, registry, logger)

	reminderSvc := reminder.NewService(reminder.NewRepoPG(pool), patientSvc, typeSvc, metrics, logger)
	reminderSvc.SetTxRunner(func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithTx(ctx, pool, fn)
	})

	return &services{
		patients:  patientSvc,
		taskTypes: typeSvc,
		reminders: reminderSvc,
		transfer:  transfer.NewService(patientSvc, reminderSvc, typeSvc, logger),
	}, nil
}

// newMetrics registers the application collectors alongside the Go runtime
// and process collectors on a private registry.
func newMetrics() (*telemetry.Metrics, *prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := telemetry.New(reg)
	if err != nil {
		return nil, nil, err
	}
	return m, reg, nil
}

func newServer(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, svcs *services,
	sessions *auth.Sessions, metrics *telemetry.Metrics, gatherer prometheus.Gatherer) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposeHeaders: []string{echo.HeaderContentDisposition, middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.UploadLimit, middleware.IsMultipartPost))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, func(c echo.Context) bool {
		return transfer.IsTransferPath(c.Path())
	}))
	e.Use(sessions.Middleware(auth.Skipper))

	// Infra endpoints
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool, pool))
	e.GET("/metrics", telemetry.Handler(gatherer))

	// API
	api := e.Group("/api/v1")
	sessions.RegisterRoutes(api, middleware.RateLimit(middleware.LoginRateLimitConfig()))
	patient.NewHandler(svcs.patients).RegisterRoutes(api)
	tasktype.NewHandler(svcs.taskTypes).RegisterRoutes(api)
	reminder.NewHandler(svcs.reminders, cfg.DueSoonDays).RegisterRoutes(api)
	transfer.NewHandler(svcs.transfer).RegisterRoutes(api)

	return e
}

func runServer(ctx context.Context, migrate bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	key, random, err := resolveSigningKey(cfg.SessionSigningKey)
	if err != nil {
		return err
	}
	if random {
		logger.Warn().Msg("SESSION_SIGNING_KEY is not set; using a random key, sessions end on restart")
	}
	sessions := auth.NewSessions(auth.SessionConfig{
		Password:   cfg.AppPassword,
		SigningKey: key,
		TTL:        cfg.SessionTTL,
		Open:       cfg.GateOpen(),
	})

	// Database
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	if migrate {
		n, err := db.NewMigrator(pool, migrationsFS(cfg.MigrationsDir)).Up(ctx)
		if err != nil {
			return err
		}
		logger.Info().Int("applied", n).Msg("migrations applied")
	}

	metrics, gatherer, err := newMetrics()
	if err != nil {
		return err
	}
	svcs, err := newServices(pool, cfg, metrics, logger)
	if err != nil {
		return err
	}
	e := newServer(cfg, logger, pool, svcs, sessions, metrics, gatherer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("session_gate", !sessions.Open()).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(sctx)
	})
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
