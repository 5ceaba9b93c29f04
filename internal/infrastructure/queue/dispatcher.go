package queue

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/99minutos/transit-tracker/internal/core/domain"
	"github.com/99minutos/transit-tracker/internal/core/ports"
	"github.com/99minutos/transit-tracker/internal/pkg/metrics"
)

const (
	defaultWorkers = 8
	channelBuffer  = 256
)

// Ingester is the subset of ports.TrackingService the dispatcher drives.
type Ingester interface {
	Ingest(ctx context.Context, in ports.ReportInput) (*domain.VehicleState, error)
}

// Dispatcher routes batched reports to a fixed set of workers using consistent
// hashing on the vehicle id, guaranteeing per-vehicle report ordering.
type Dispatcher struct {
	workers []chan ports.ReportInput
	ingest  Ingester
	log     zerolog.Logger
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, ingest Ingester, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan ports.ReportInput, numWorkers),
		ingest:  ingest,
		log:     log.With().Str("component", "dispatcher").Logger(),
	}
	for i := range d.workers {
		d.workers[i] = make(chan ports.ReportInput, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, ch)
	}
}

// Wait blocks until every worker has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Enqueue sends a report to the worker responsible for its vehicle. It blocks
// while that worker's channel is full and gives up when ctx is done.
func (d *Dispatcher) Enqueue(ctx context.Context, in ports.ReportInput) error {
	idx := d.shardIndex(in.VehicleID)
	select {
	case d.workers[idx] <- in:
		metrics.DispatchQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnqueueBatch enqueues reports in order, preserving per-vehicle ordering. It
// returns the number accepted before the first failure.
func (d *Dispatcher) EnqueueBatch(ctx context.Context, reports []ports.ReportInput) (int, error) {
	for i, in := range reports {
		if err := d.Enqueue(ctx, in); err != nil {
			return i, err
		}
	}
	return len(reports), nil
}

// shardIndex maps a vehicle id deterministically to a worker index.
func (d *Dispatcher) shardIndex(vehicleID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(vehicleID))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan ports.ReportInput) {
	defer d.wg.Done()
	label := strconv.Itoa(id)
	for {
		select {
		case <-ctx.Done():
			return
		case in, ok := <-ch:
			if !ok {
				return
			}
			metrics.DispatchQueueDepth.WithLabelValues(label).Set(float64(len(ch)))
			if _, err := d.ingest.Ingest(ctx, in); err != nil {
				ev := d.log.Error()
				if errors.Is(err, domain.ErrInvalidReport) {
					ev = d.log.Warn()
				}
				ev.Err(err).
					Str("vehicle", in.VehicleID).
					Int("worker_id", id).
					Msg("report ingest failed")
			}
		}
	}
}
