package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/urmzd/heos-bridge/pkg/api/types"
	"github.com/urmzd/heos-bridge/pkg/device"
)

const (
	defaultDiscoverySeconds = 60
	maxDiscoverySeconds     = 600
	heartbeatInterval       = 30 * time.Second
)

// DiscoveryHandler handles speaker discovery and event stream endpoints
type DiscoveryHandler struct {
	controller device.Controller
	subscriber device.EventSubscriber
}

// NewDiscoveryHandler creates a new discovery handler
func NewDiscoveryHandler(controller device.Controller, subscriber device.EventSubscriber) *DiscoveryHandler {
	return &DiscoveryHandler{
		controller: controller,
		subscriber: subscriber,
	}
}

// StartDiscovery handles POST /discovery/start
// @Summary      Start active discovery
// @Description  Repeats SSDP searches for the given window so new speakers show up as pairing candidates
// @Tags         discovery
// @Accept       json
// @Produce      json
// @Param        request  body      types.StartDiscoveryRequest  false  "Window length (default 60 seconds, max 600)"
// @Success      200      {object}  types.StartDiscoveryResponse
// @Failure      400      {object}  types.ErrorResponse  "Invalid duration"
// @Failure      503      {object}  types.ErrorResponse  "Controller not running"
// @Router       /discovery/start [post]
func (h *DiscoveryHandler) StartDiscovery(c *gin.Context) {
	var req types.StartDiscoveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		req.DurationSeconds = defaultDiscoverySeconds
	}

	if req.DurationSeconds <= 0 {
		req.DurationSeconds = defaultDiscoverySeconds
	}

	if req.DurationSeconds > maxDiscoverySeconds {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "invalid_duration",
			Message: "Duration cannot exceed 600 seconds",
		})
		return
	}

	if err := h.controller.PermitJoin(c.Request.Context(), true, req.DurationSeconds); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, types.StartDiscoveryResponse{
		Status:          "discovery_started",
		ExpiresAt:       time.Now().Add(time.Duration(req.DurationSeconds) * time.Second),
		DurationSeconds: req.DurationSeconds,
	})
}

// StopDiscovery handles POST /discovery/stop
// @Summary      Stop active discovery
// @Description  Closes the discovery window. Passive SSDP listening continues.
// @Tags         discovery
// @Produce      json
// @Success      200  {object}  types.StopDiscoveryResponse
// @Failure      503  {object}  types.ErrorResponse  "Controller not running"
// @Router       /discovery/stop [post]
func (h *DiscoveryHandler) StopDiscovery(c *gin.Context) {
	if err := h.controller.PermitJoin(c.Request.Context(), false, 0); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, types.StopDiscoveryResponse{
		Status: "discovery_stopped",
	})
}

// Events handles GET /events (SSE stream)
// @Summary      Subscribe to bridge events
// @Description  Server-Sent Events stream of discovery, pairing, availability and state changes
// @Tags         events
// @Produce      text/event-stream
// @Success      200  {string}  string  "SSE event stream"
// @Router       /events [get]
func (h *DiscoveryHandler) Events(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	eventChan := h.subscriber.Subscribe()
	defer h.subscriber.Unsubscribe(eventChan)

	sendSSEEvent(c.Writer, "connected", map[string]any{
		"timestamp": time.Now(),
		"message":   "Connected to bridge event stream",
	})
	c.Writer.Flush()

	clientGone := c.Request.Context().Done()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-clientGone:
			return

		case event, ok := <-eventChan:
			if !ok {
				return
			}
			sendSSEEvent(c.Writer, event.Type, event)
			c.Writer.Flush()

		case <-ticker.C:
			sendSSEEvent(c.Writer, "heartbeat", map[string]any{
				"timestamp": time.Now(),
			})
			c.Writer.Flush()
		}
	}
}

// sendSSEEvent writes an SSE event to the response
func sendSSEEvent(w io.Writer, eventType string, data any) {
	jsonData, _ := json.Marshal(data)
	io.WriteString(w, "event: "+eventType+"\n")
	io.WriteString(w, "data: "+string(jsonData)+"\n\n")
}
