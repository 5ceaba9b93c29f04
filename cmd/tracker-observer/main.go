// Command tracker-observer follows the tracker API the way a map client does:
// it subscribes to the push stream, polls as a fallback, dead-reckons every
// running vehicle between updates and logs an ETA board every second.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-envconfig"

	"github.com/99minutos/transit-tracker/internal/observer"
	"github.com/99minutos/transit-tracker/pkg/logger"
)

type config struct {
	APIURL         string        `env:"API_URL, default=http://localhost:8080"`
	LogLevel       string        `env:"LOG_LEVEL, default=info"`
	PollInterval   time.Duration `env:"POLL_INTERVAL, default=1s"`
	FrameInterval  time.Duration `env:"FRAME_INTERVAL, default=16ms"`
	BoardInterval  time.Duration `env:"BOARD_INTERVAL, default=1s"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT, default=5s"`
	AutoSimulate   bool          `env:"AUTO_SIMULATE, default=true"`

	ArrivalThresholdKm float64 `env:"ARRIVAL_THRESHOLD_KM, default=0.05"`
	DefaultSpeedKmh    float64 `env:"DEFAULT_SPEED_KMH, default=20"`
}

func main() {
	var cfg config
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	log := logger.Init(logger.Options{Level: cfg.LogLevel, Pretty: true, Service: "tracker-observer"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := observer.NewAPIClient(cfg.APIURL, cfg.RequestTimeout)
	loop := observer.NewFrameLoop()
	tracker := observer.NewTracker(loop, observer.Config{
		ArrivalThresholdKm: cfg.ArrivalThresholdKm,
		DefaultSpeedKmh:    cfg.DefaultSpeedKmh,
		AutoSimulate:       cfg.AutoSimulate,
	}, log)

	reloadRoutes := func(ctx context.Context) {
		if err := client.LoadRoutes(ctx, tracker); err != nil {
			log.Warn().Err(err).Msg("route fetch failed")
		}
	}
	reloadRoutes(ctx)

	streamURL, err := client.StreamURL()
	if err != nil {
		log.Fatal().Err(err).Msg("bad API_URL")
	}

	var wg sync.WaitGroup
	start := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}
	start(func() { observer.NewStreamClient(streamURL, tracker, reloadRoutes, log).Run(ctx) })
	start(func() { observer.NewPoller(client, tracker, cfg.PollInterval, log).Run(ctx) })
	start(func() { _ = loop.Run(ctx, cfg.FrameInterval) })
	start(func() { board(ctx, tracker, cfg.BoardInterval, logger.Component("board")) })

	log.Info().Str("api", cfg.APIURL).Msg("observer started")
	<-ctx.Done()
	wg.Wait()
	log.Info().Msg("observer stopped")
}

// board logs one line per vehicle on every interval.
func board(ctx context.Context, tracker *observer.Tracker, interval time.Duration, log zerolog.Logger) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			for _, v := range tracker.Views() {
				eta, _ := tracker.CountdownETA(v.VehicleID, now)
				log.Info().
					Str("vehicle", v.VehicleID).
					Str("route", v.RouteID).
					Str("state", string(v.State)).
					Str("status", string(v.Status)).
					Float64("lat", v.Position.Lat).
					Float64("lng", v.Position.Lng).
					Int("eta_seconds", eta).
					Int("eta_minutes", (eta+59)/60).
					Msg("eta")
			}
		}
	}
}
