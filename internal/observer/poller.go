package observer

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/transit-tracker/internal/core/domain"
)

const (
	DefaultPollInterval = time.Second
	pollTimeout         = 10 * time.Second
)

// VehicleSource returns the authoritative snapshot.
type VehicleSource interface {
	Vehicles(ctx context.Context) ([]domain.VehicleState, error)
}

// Poller periodically pulls the snapshot into a StateSink. It runs next to
// the stream client and resynchronizes whatever the stream missed.
type Poller struct {
	src      VehicleSource
	sink     StateSink
	interval time.Duration
	log      zerolog.Logger
}

func NewPoller(src VehicleSource, sink StateSink, interval time.Duration, log zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		src:      src,
		sink:     sink,
		interval: interval,
		log:      log.With().Str("component", "poller").Logger(),
	}
}

// Run polls immediately and then every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	t := time.NewTimer(0)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.tick(ctx)
			t.Reset(p.interval)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	vehicles, err := p.src.Vehicles(cctx)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Warn().Err(err).Msg("poll failed")
		}
		return
	}
	p.sink.ApplySnapshot(vehicles)
	p.log.Debug().Int("vehicles", len(vehicles)).Msg("polled")
}
