package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/99minutos/transit-tracker/internal/api/docs"
	"github.com/99minutos/transit-tracker/internal/api/handler"
	"github.com/99minutos/transit-tracker/internal/api/middleware"
	"github.com/99minutos/transit-tracker/internal/core/domain"
	"github.com/99minutos/transit-tracker/internal/core/ports"
)

// Dependencies are the collaborators the HTTP layer is wired to.
type Dependencies struct {
	Tracking      ports.TrackingService
	Dispatcher    handler.ReportDispatcher
	Dedup         handler.BatchDeduper // optional
	Routes        handler.RouteCatalog
	RefreshRoutes func(ctx context.Context) error
	Hub           handler.StreamHub
	Readiness     map[string]handler.DependencyCheck
	// JWTSecret enables bearer auth on the write endpoints when non-empty.
	JWTSecret string
	// Registry receives the HTTP metrics; nil means the default registry.
	Registry *prometheus.Registry
	Log      zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
//
// @title                       Transit Tracker API
// @version                     1.0
// @description                 Vehicle position ingest, ETA estimation and live distribution.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func NewRouter(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(deps.Log))
	e.Use(echoprometheus.NewMiddlewareWithConfig(metricsConfig(deps.Registry)))

	// --- Write-side guard ---
	reporters := []echo.MiddlewareFunc{}
	admins := []echo.MiddlewareFunc{}
	if deps.JWTSecret != "" {
		auth := middleware.Auth(deps.JWTSecret)
		reporters = append(reporters, auth, middleware.RBAC(domain.RoleDriver, domain.RoleAdmin))
		admins = append(admins, auth, middleware.RBAC(domain.RoleAdmin))
	} else {
		deps.Log.Warn().Msg("JWT_SECRET not set, write endpoints are unauthenticated")
	}

	// --- Handlers ---
	vehicles := handler.NewVehicleHandler(deps.Tracking, deps.Dispatcher, deps.Dedup, deps.Log)
	routes := handler.NewRouteHandler(deps.Routes, deps.RefreshRoutes)
	stream := handler.NewStreamHandler(deps.Hub, deps.Log)

	v1 := e.Group("/v1")

	v1.POST("/vehicles/updates", vehicles.Report, reporters...)
	v1.POST("/vehicles/updates/batch", vehicles.ReportBatch, reporters...)
	v1.GET("/vehicles", vehicles.List)
	v1.GET("/vehicles/nearby", vehicles.Nearby)
	v1.GET("/vehicles/:vehicle_id", vehicles.Get)

	v1.GET("/routes", routes.List)
	v1.POST("/routes/refresh", routes.Refresh, admins...)
	v1.GET("/routes/:route_id", routes.Get)

	v1.GET("/stream", stream.Stream)

	// --- Ops (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	readinessHandler := handler.NewReadinessHandler(deps.Readiness)

	e.GET("/health", healthHandler.Liveness)           // liveness  – is the process alive?
	e.GET("/health/ready", readinessHandler.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", metricsHandler(deps.Registry))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

func metricsConfig(reg *prometheus.Registry) echoprometheus.MiddlewareConfig {
	cfg := echoprometheus.MiddlewareConfig{Subsystem: "tracker"}
	if reg != nil {
		cfg.Registerer = reg
	}
	return cfg
}

func metricsHandler(reg *prometheus.Registry) echo.HandlerFunc {
	if reg == nil {
		return echoprometheus.NewHandler()
	}
	return echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: reg})
}

// requestLogger emits one zerolog entry per request.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Status >= http.StatusInternalServerError {
				ev = log.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
