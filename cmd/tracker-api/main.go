// Command tracker-api ingests vehicle position reports, estimates arrival
// times and streams authoritative vehicle state to observers.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/transit-tracker/internal/api"
	"github.com/99minutos/transit-tracker/internal/api/handler"
	"github.com/99minutos/transit-tracker/internal/core/ports"
	"github.com/99minutos/transit-tracker/internal/core/service"
	"github.com/99minutos/transit-tracker/internal/infrastructure/db/file"
	"github.com/99minutos/transit-tracker/internal/infrastructure/db/memory"
	"github.com/99minutos/transit-tracker/internal/infrastructure/db/mongo"
	"github.com/99minutos/transit-tracker/internal/infrastructure/db/redis"
	"github.com/99minutos/transit-tracker/internal/infrastructure/queue"
	"github.com/99minutos/transit-tracker/internal/infrastructure/realtime"
	"github.com/99minutos/transit-tracker/internal/pkg/config"
	"github.com/99minutos/transit-tracker/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()
	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.Env == "development",
		Service: "tracker-api",
	})

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("tracker-api stopped")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	readiness := map[string]handler.DependencyCheck{}

	// --- Route source ---
	var routeStore ports.RouteStore
	if cfg.UseMongoRoutes() {
		client, db, err := mongo.Connect(ctx, mongo.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return err
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		routeStore = mongo.NewRouteRepository(db)
		readiness["mongo"] = mongo.Ping(client)
	} else {
		fs, err := file.NewRouteStore(cfg.RoutesFile)
		if err != nil {
			return err
		}
		routeStore = fs
		log.Info().Str("path", cfg.RoutesFile).Msg("routes served from file")
	}
	catalog := service.NewRouteCatalog(routeStore, log)
	if err := catalog.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("initial route load failed, retrying on first use")
	}

	store := memory.NewVehicleStore()
	hub := realtime.NewHub(store, cfg.Stream.Buffer, log)
	defer hub.Close()

	// --- Redis (optional) ---
	opts := []service.Option{}
	var (
		dedup       handler.BatchDeduper
		routeEvents *redis.RouteEvents
	)
	rdb, err := redis.Connect(ctx, redis.Config{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB, Password: cfg.Redis.Password})
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, running without geo index, batch dedup and route events")
	} else {
		defer func() { _ = rdb.Close() }()
		opts = append(opts, service.WithGeoIndex(redis.NewGeoIndex(rdb)))
		dedup = redis.NewBatchDedup(rdb)
		routeEvents = redis.NewRouteEvents(rdb, log)
		readiness["redis"] = redis.Ping(rdb)
	}

	onRoutesChanged := func() {
		catalog.Invalidate()
		hub.RoutesChanged()
	}
	refreshRoutes := func(ctx context.Context) error {
		if routeEvents != nil {
			return routeEvents.Announce(ctx, "refresh")
		}
		onRoutesChanged()
		return nil
	}
	if routeEvents != nil {
		go func() {
			if err := routeEvents.Listen(ctx, onRoutesChanged); err != nil {
				log.Error().Err(err).Msg("route events listener stopped")
			}
		}()
	}

	engine := service.EngineConfig{
		DefaultSpeedKmh:    cfg.Engine.DefaultSpeedKmh,
		ArrivalThresholdKm: cfg.Engine.ArrivalThresholdKm,
		FallbackEtaSeconds: cfg.Engine.FallbackEtaSeconds,
	}
	tracking := service.NewTrackingService(catalog, store, hub, engine, log, opts...)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	dispatcher := queue.NewDispatcher(cfg.Dispatch.Workers, tracking, log)
	dispatcher.Start(workerCtx)

	e := api.NewRouter(api.Dependencies{
		Tracking:      tracking,
		Dispatcher:    dispatcher,
		Dedup:         dedup,
		Routes:        catalog,
		RefreshRoutes: refreshRoutes,
		Hub:           hub,
		Readiness:     readiness,
		JWTSecret:     cfg.JWTSecret,
		Log:           log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listen: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown initiated")
	case err := <-errCh:
		stopWorkers()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown")
	}

	stopWorkers()
	dispatcher.Wait()
	log.Info().Int("vehicles", store.Len()).Int("observers", hub.Count()).Msg("server stopped")
	return nil
}
