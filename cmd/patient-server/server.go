package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ehr/patient-service/internal/config"
	"github.com/ehr/patient-service/internal/domain/patient"
	"github.com/ehr/patient-service/internal/platform/auth"
	"github.com/ehr/patient-service/internal/platform/cache"
	"github.com/ehr/patient-service/internal/platform/db"
	"github.com/ehr/patient-service/internal/platform/events"
	"github.com/ehr/patient-service/internal/platform/metrics"
	"github.com/ehr/patient-service/internal/platform/middleware"
	"github.com/ehr/patient-service/internal/platform/openapi"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type app struct {
	echo    *echo.Echo
	closers []func() error
}

func (a *app) Close() {
	for _, c := range a.closers {
		_ = c()
	}
}

// newApp wires the three layers and the HTTP surface. Storage is passed in so
// tests can substitute it.
func newApp(cfg *config.Config, logger zerolog.Logger, pool store) (*app, error) {
	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	publisher, closers, err := newPublisher(cfg, logger, m)
	if err != nil {
		return nil, err
	}

	svc := patient.NewService(patient.NewRepo(pool),
		patient.WithCache(newCache(cfg)),
		patient.WithPublisher(publisher),
		patient.WithMRNGenerator(patient.NewMRNGenerator(cfg.MRNPrefix)),
		patient.WithLogger(logger.With().Str("component", "patient").Logger()),
	)

	authMW, err := authMiddleware(cfg)
	if err != nil {
		return nil, err
	}

	e := newEcho(cfg, logger, m)
	e.GET("/health/db", db.HealthHandler(pool))

	docs := openapi.NewGenerator("Patient API", version, "/api/v1", patient.OpenAPIResource())
	docs.RegisterRoutes(e.Group("/api"))

	api := e.Group("/api/v1", authMW)
	patient.NewHandler(svc).RegisterRoutes(api)

	return &app{echo: e, closers: closers}, nil
}

// store is satisfied by *pgxpool.Pool.
type store interface {
	db.Pinger
	patient.Querier
}

func newEcho(cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadHeaderTimeout = 10 * time.Second
	e.Server.ReadTimeout = 30 * time.Second
	e.Server.WriteTimeout = 30 * time.Second
	e.Server.IdleTimeout = 120 * time.Second

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	if m != nil {
		e.Use(m.Middleware())
	}
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.BodyLimit("1M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Location", middleware.RequestIDHeader},
	}))
	e.Use(middleware.Audit(logger.With().Str("component", "audit").Logger(), "/api/v1/patients"))

	e.GET("/health/live", db.LiveHandler())
	e.GET("/health/ready", db.ReadyHandler())
	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}
	return e
}

func authMiddleware(cfg *config.Config) (echo.MiddlewareFunc, error) {
	switch mode := cfg.ResolvedAuthMode(); mode {
	case "development":
		return auth.DevAuthMiddleware(), nil
	case "hmac":
		return auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
		}), nil
	case "external":
		return auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
		}), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", mode)
	}
}

func newCache(cfg *config.Config) cache.Cache[uuid.UUID, *patient.Patient] {
	if cfg.CacheTTL <= 0 {
		return cache.Noop[uuid.UUID, *patient.Patient]{}
	}
	return cache.NewMemory[uuid.UUID, *patient.Patient](cfg.CacheTTL, cfg.CacheMaxEntries)
}

// newPublisher fans events out to every configured sink. With none configured
// events go to the log.
func newPublisher(cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics) (events.Publisher, []func() error, error) {
	var (
		sinks   events.Multi
		closers []func() error
	)
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers:  cfg.KafkaBrokers,
			ClientID: cfg.KafkaClientID,
		})
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, kp)
		closers = append(closers, kp.Close)
	}
	if cfg.EventWebhookURL != "" {
		wp, err := events.NewWebhookPublisher(cfg.EventWebhookURL, cfg.EventWebhookSecret)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, wp)
	}
	if len(sinks) == 0 {
		sinks = append(sinks, events.NewLogPublisher(logger.With().Str("component", "events").Logger()))
	}

	var p events.Publisher = sinks
	if m != nil {
		p = events.Instrumented(p, m.ObserveEventPublish)
	}
	return p, closers, nil
}
