package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/urmzd/heos-bridge/pkg/api/types"
	"github.com/urmzd/heos-bridge/pkg/device"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	controller device.Controller
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(controller device.Controller) *HealthHandler {
	return &HealthHandler{controller: controller}
}

// Health handles GET /health
// @Summary      Health check
// @Description  Returns the bridge status and how many paired speakers are reachable
// @Tags         health
// @Produce      json
// @Success      200  {object}  types.HealthResponse  "Service is healthy"
// @Failure      503  {object}  types.HealthResponse  "Service is degraded"
// @Router       /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	resp := types.HealthResponse{
		Status:     "healthy",
		Controller: "connected",
		Timestamp:  time.Now(),
	}
	httpStatus := http.StatusOK

	if !h.controller.IsConnected() {
		resp.Status = "degraded"
		resp.Controller = "disconnected"
		httpStatus = http.StatusServiceUnavailable
	}

	if devices, err := h.controller.ListDevices(c.Request.Context()); err == nil {
		resp.Devices = len(devices)
		for _, d := range devices {
			if d.Available {
				resp.Available++
			}
		}
	}

	c.JSON(httpStatus, resp)
}
