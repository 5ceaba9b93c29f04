// Package observer is the display-side half of the tracker: it holds a
// read-only copy of the authoritative vehicle map, fed by the push stream and
// by polling, and animates vehicles along their routes between updates.
package observer

import (
	"context"
	"sync"
	"time"
)

// DefaultFrameInterval is a 60 Hz animation rate.
const DefaultFrameInterval = time.Second / 60

// FrameID identifies a requested frame so it can be cancelled.
type FrameID uint64

// FrameFunc runs once on the next tick.
type FrameFunc func(now time.Time)

// FrameLoop is a cooperative scheduler. A frame requested before a tick runs
// on that tick; a frame requested while a tick is running waits for the next
// one. Cancelling a frame that has not yet run suppresses it, even if the
// current tick has already picked it up.
type FrameLoop struct {
	mu      sync.Mutex
	next    FrameID
	pending map[FrameID]FrameFunc
	order   []FrameID
	current map[FrameID]FrameFunc
}

func NewFrameLoop() *FrameLoop {
	return &FrameLoop{pending: make(map[FrameID]FrameFunc)}
}

// RequestFrame schedules fn for the next tick.
func (l *FrameLoop) RequestFrame(fn FrameFunc) FrameID {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	id := l.next
	l.pending[id] = fn
	l.order = append(l.order, id)
	return id
}

// CancelFrame drops a frame that has not run yet. Unknown ids are ignored.
func (l *FrameLoop) CancelFrame(id FrameID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pending, id)
	delete(l.current, id)
}

// Pending returns the number of frames waiting for the next tick.
func (l *FrameLoop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Tick runs every frame requested before the call, in request order, and
// returns how many ran.
func (l *FrameLoop) Tick(now time.Time) int {
	l.mu.Lock()
	order := l.order
	l.current = l.pending
	l.pending = make(map[FrameID]FrameFunc)
	l.order = nil
	l.mu.Unlock()

	ran := 0
	for _, id := range order {
		l.mu.Lock()
		fn, ok := l.current[id]
		delete(l.current, id)
		l.mu.Unlock()
		if !ok {
			continue
		}
		fn(now)
		ran++
	}

	l.mu.Lock()
	l.current = nil
	l.mu.Unlock()
	return ran
}

// Run ticks every interval until ctx is done.
func (l *FrameLoop) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			l.Tick(now)
		}
	}
}
