// Command tracker-emulator drives the tracker API with synthetic buses that
// step through route waypoints and report on a fixed interval.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/99minutos/transit-tracker/internal/infrastructure/db/file"
	"github.com/99minutos/transit-tracker/internal/observer"
	"github.com/99minutos/transit-tracker/pkg/logger"
)

type config struct {
	APIURL     string `env:"API_URL, default=http://localhost:8080"`
	Token      string `env:"TOKEN"`
	RoutesFile string `env:"ROUTES_FILE"`
	Buses      int    `env:"BUSES, default=5"`
	IntervalMs int    `env:"INTERVAL_MS, default=2000"`
	LogLevel   string `env:"LOG_LEVEL, default=info"`
}

func main() {
	var cfg config
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	log := logger.Init(logger.Options{Level: cfg.LogLevel, Pretty: true, Service: "tracker-emulator"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var routes RouteSource = observer.NewAPIClient(cfg.APIURL, 7*time.Second)
	if cfg.RoutesFile != "" {
		fs, err := file.NewRouteStore(cfg.RoutesFile)
		if err != nil {
			log.Fatal().Err(err).Msg("routes file")
		}
		routes = fileRoutes{fs}
	}

	interval := time.Duration(max(cfg.IntervalMs, 500)) * time.Millisecond
	em := NewEmulator(routes, NewReporter(cfg.APIURL, cfg.Token), max(cfg.Buses, 1),
		rand.New(rand.NewSource(time.Now().UnixNano())), log)

	log.Info().Str("api", cfg.APIURL).Int("buses", len(em.buses)).Dur("interval", interval).Msg("emulator started")
	em.Run(ctx, interval)
	log.Info().Msg("emulator stopped")
}
