package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/99minutos/transit-tracker/internal/infrastructure/realtime"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxInbound = 512
)

// StreamHub is the subscription side of realtime.Hub.
type StreamHub interface {
	Connect() *realtime.Subscription
	Disconnect(sub *realtime.Subscription)
}

// StreamHandler upgrades observers to a websocket and pumps hub messages.
type StreamHandler struct {
	hub      StreamHub
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewStreamHandler(hub StreamHub, log zerolog.Logger) *StreamHandler {
	return &StreamHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log.With().Str("component", "stream").Logger(),
	}
}

// Stream handles GET /v1/stream. The first message is always a
// vehicles_snapshot; vehicle_update and routes_changed follow in order.
//
// @Summary      Subscribe to live vehicle updates (websocket)
// @Tags         stream
// @Success      101
// @Router       /v1/stream [get]
func (h *StreamHandler) Stream(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written an HTTP error.
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return nil
	}

	sub := h.hub.Connect()
	go h.readPump(conn, sub)
	h.writePump(conn, sub)
	return nil
}

// readPump discards client frames and detects disconnects.
func (h *StreamHandler) readPump(conn *websocket.Conn, sub *realtime.Subscription) {
	defer h.hub.Disconnect(sub)

	conn.SetReadLimit(maxInbound)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only writer on conn. It returns when the subscription is
// closed or a write fails.
func (h *StreamHandler) writePump(conn *websocket.Conn, sub *realtime.Subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.hub.Disconnect(sub)
		_ = conn.Close()
	}()

	for {
		select {
		case msg, ok := <-sub.C():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "resubscribe"))
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug().Err(err).Msg("stream write failed")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
