package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicops/console/internal/config"
	"github.com/clinicops/console/internal/domain/patient"
	"github.com/clinicops/console/internal/domain/scheduling"
	"github.com/clinicops/console/internal/platform/db"
	"github.com/clinicops/console/internal/platform/locker"
	"github.com/clinicops/console/internal/platform/messaging"
	"github.com/clinicops/console/internal/platform/middleware"
	"github.com/clinicops/console/internal/platform/notification"
	"github.com/clinicops/console/internal/platform/server"
	"github.com/clinicops/console/internal/platform/websocket"
)

const version = "0.1.0"

// app holds the wired components of one server process.
type app struct {
	cfg        *config.Config
	logger     zerolog.Logger
	pool       *pgxpool.Pool
	redis      *redis.Client
	amqp       *messaging.Conn
	dispatcher *notification.Dispatcher
	hub        *websocket.Hub
	limiter    *middleware.RateLimiter
	scheduling *scheduling.Service
	patients   *patient.Service
}

// newApp connects the optional backends named in cfg and loads the
// scheduling and patient snapshots.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	if !cfg.InMemory() {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		logger.Info().Msg("connected to database")
	} else {
		logger.Warn().Msg("DATABASE_URL not set, running in memory; data is lost on restart")
	}

	var bookingLock scheduling.Locker = locker.NewLocal()
	if cfg.RedisURL != "" {
		client, err := locker.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.redis = client
		bookingLock = locker.NewRedis(client, "clinic:")
		logger.Info().Msg("using redis booking lock")
	}

	a.hub = websocket.NewHub(logger)
	a.dispatcher = notification.NewDispatcher(logger, notification.NewFeed(200), 256, a.hub)
	if cfg.AMQPURL != "" {
		conn, err := messaging.Dial(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			return nil, err
		}
		a.amqp = conn
		a.dispatcher.AddSink(messaging.NewSink(conn.Channel(), cfg.AMQPQueue))
		logger.Info().Str("queue", cfg.AMQPQueue).Msg("publishing notifications to amqp")
	}

	loc := cfg.Location()
	store := scheduling.NewStore(scheduling.WithStoreLocation(loc))
	index := scheduling.NewAvailabilityIndex()
	finder := scheduling.NewSlotFinder(index, store,
		scheduling.WithLocation(loc),
		scheduling.WithSlotDuration(cfg.SlotDuration),
		scheduling.WithSearchDays(cfg.SlotSearchDays),
	)
	schedOpts := []scheduling.ServiceOption{
		scheduling.WithLocker(bookingLock),
		scheduling.WithPublisher(a.dispatcher),
	}
	patientOpts := []patient.ServiceOption{
		patient.WithPublisher(a.dispatcher),
	}
	if a.pool != nil {
		pool := a.pool
		schedOpts = append(schedOpts, scheduling.WithRepository(scheduling.NewRepoPG(pool)))
		patientOpts = append(patientOpts,
			patient.WithRepository(patient.NewRepoPG(pool)),
			patient.WithTxRunner(func(ctx context.Context, fn func(context.Context) error) error {
				return db.InTx(ctx, pool, fn)
			}),
		)
	}
	a.scheduling = scheduling.NewService(store, index, finder, logger, schedOpts...)
	a.patients = patient.NewService(patient.NewRegistry(), a.scheduling, logger, patientOpts...)

	if err := a.scheduling.Bootstrap(ctx); err != nil {
		return nil, fmt.Errorf("load scheduling snapshot: %w", err)
	}
	if err := a.patients.Bootstrap(ctx); err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}

	a.limiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	})
	ok = true
	return a, nil
}

// start runs the background workers until ctx is cancelled.
func (a *app) start(ctx context.Context) {
	a.dispatcher.Start(ctx)
	go a.limiter.Cleanup(ctx)
}

func (a *app) close() {
	if a.amqp != nil {
		if err := a.amqp.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("close amqp connection")
		}
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

// echo builds the HTTP server.
func (a *app) echo() *echo.Echo {
	e := server.New(server.WithValidation("cpf", patient.ValidateCPFField))

	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(echomw.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(a.cfg.RequestTimeout))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	var pinger db.Pinger
	if a.pool != nil {
		pinger = a.pool
	}
	e.GET("/health/db", db.HealthHandler(pinger))

	websocket.NewHandler(a.hub, a.cfg.CORSOrigins).RegisterRoutes(e)

	api := e.Group("/api/v1")
	api.Use(a.limiter.Middleware())
	scheduling.NewHandler(a.scheduling).RegisterRoutes(api)
	patient.NewHandler(a.patients).RegisterRoutes(api)
	notification.NewHandler(a.dispatcher.Feed()).RegisterRoutes(api)
	return e
}

// newLogger returns a JSON logger, or a console logger in development.
func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
