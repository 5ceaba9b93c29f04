package observer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/99minutos/transit-tracker/internal/infrastructure/realtime"
)

// ErrChannelUnavailable means the push channel could not be used. The
// observer keeps polling while the stream client retries.
var ErrChannelUnavailable = errors.New("push channel unavailable")

const (
	minReconnectDelay = 500 * time.Millisecond
	maxReconnectDelay = 30 * time.Second
)

// StreamClient subscribes to the push channel and feeds every message into a
// StateSink. It reconnects with exponential backoff until its context ends.
type StreamClient struct {
	url             string
	dialer          *websocket.Dialer
	sink            StateSink
	onRoutesChanged func(ctx context.Context)
	log             zerolog.Logger

	minDelay, maxDelay time.Duration
}

// NewStreamClient dials url. onRoutesChanged runs when the server announces a
// route table change and may be nil.
func NewStreamClient(url string, sink StateSink, onRoutesChanged func(ctx context.Context), log zerolog.Logger) *StreamClient {
	return &StreamClient{
		url:             url,
		dialer:          &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		sink:            sink,
		onRoutesChanged: onRoutesChanged,
		log:             log.With().Str("component", "stream_client").Logger(),
		minDelay:        minReconnectDelay,
		maxDelay:        maxReconnectDelay,
	}
}

// Run keeps a subscription open until ctx is done.
func (c *StreamClient) Run(ctx context.Context) {
	delay := c.minDelay
	for {
		connected, err := c.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			delay = c.minDelay
		}
		c.log.Warn().Err(err).Dur("retry_in", delay).Msg("stream disconnected, relying on polling")

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if delay *= 2; delay > c.maxDelay {
			delay = c.maxDelay
		}
	}
}

// session runs one connection. connected reports whether the dial succeeded.
func (c *StreamClient) session(ctx context.Context) (connected bool, err error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}
	defer func() { _ = conn.Close() }()
	c.log.Info().Str("url", c.url).Msg("stream connected")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		var msg realtime.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return true, fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
		}
		c.handle(ctx, msg)
	}
}

func (c *StreamClient) handle(ctx context.Context, msg realtime.Message) {
	switch msg.Type {
	case realtime.TypeSnapshot:
		c.sink.ApplySnapshot(msg.Vehicles)
	case realtime.TypeVehicleUpdate:
		if msg.Vehicle != nil {
			c.sink.ApplyUpdate(*msg.Vehicle)
		}
	case realtime.TypeRoutesChanged:
		if c.onRoutesChanged != nil {
			c.onRoutesChanged(ctx)
		}
	default:
		c.log.Debug().Str("type", string(msg.Type)).Msg("unknown stream message")
	}
}
