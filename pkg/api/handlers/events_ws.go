package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/urmzd/heos-bridge/pkg/device"
)

const (
	wsReadDeadline = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// StreamMessage is a frame sent over the event websocket
type StreamMessage struct {
	Type      string        `json:"type"`
	Event     *device.Event `json:"event,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// EventsWS handles GET /events/ws
// @Summary      Subscribe to bridge events over a websocket
// @Description  Same events as the SSE stream, framed as JSON websocket messages with periodic pings
// @Tags         events
// @Success      101  {string}  string  "Switching protocols"
// @Router       /events/ws [get]
func (h *DiscoveryHandler) EventsWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().
			Err(err).
			Str("remote_addr", c.Request.RemoteAddr).
			Msg("failed to upgrade to websocket")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	go readClientMessages(conn, cancel)

	eventChan := h.subscriber.Subscribe()
	defer h.subscriber.Unsubscribe(eventChan)

	if err := writeMessage(conn, StreamMessage{Type: "connected", Timestamp: time.Now()}); err != nil {
		return
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-eventChan:
			if !ok {
				_ = writeMessage(conn, StreamMessage{Type: "complete", Timestamp: time.Now()})
				return
			}
			if err := writeMessage(conn, StreamMessage{Type: "event", Event: &event, Timestamp: time.Now()}); err != nil {
				log.Debug().Err(err).Str("remote_addr", c.Request.RemoteAddr).Msg("websocket write failed")
				return
			}

		case <-ticker.C:
			if err := writeMessage(conn, StreamMessage{Type: "ping", Timestamp: time.Now()}); err != nil {
				return
			}
		}
	}
}

// readClientMessages drains client frames and cancels the stream once the
// client goes away or stops answering.
func readClientMessages(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(wsReadDeadline)); err != nil {
			return
		}
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("websocket closed unexpectedly")
			}
			return
		}
	}
}

func writeMessage(conn *websocket.Conn, msg StreamMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}
