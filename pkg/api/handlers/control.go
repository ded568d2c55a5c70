package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/urmzd/heos-bridge/pkg/api/types"
	"github.com/urmzd/heos-bridge/pkg/device"
)

// ControlHandler handles speaker state and action endpoints
type ControlHandler struct {
	controller device.Controller
}

// NewControlHandler creates a new control handler
func NewControlHandler(controller device.Controller) *ControlHandler {
	return &ControlHandler{controller: controller}
}

// GetState handles GET /devices/:id/state
// @Summary      Get speaker state
// @Description  Returns the last projected capability values of a speaker
// @Tags         devices
// @Produce      json
// @Param        id   path      string  true  "Speaker id"
// @Success      200  {object}  types.StateResponse
// @Failure      404  {object}  types.ErrorResponse  "Device not found"
// @Failure      500  {object}  types.ErrorResponse  "Controller error"
// @Router       /devices/{id}/state [get]
func (h *ControlHandler) GetState(c *gin.Context) {
	id := c.Param("id")

	state, err := h.controller.GetDeviceState(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, types.StateResponse{
		Device:    id,
		State:     state,
		Timestamp: time.Now(),
	})
}

// SetState handles POST /devices/:id/state
// @Summary      Set speaker state
// @Description  Applies capability writes validated against the speaker's state schema
// @Tags         devices
// @Accept       json
// @Produce      json
// @Param        id       path      string  true  "Speaker id"
// @Param        request  body      object  true  "Capabilities to set"
// @Success      200      {object}  types.StateResponse
// @Failure      400      {object}  types.ErrorResponse  "Invalid request"
// @Failure      404      {object}  types.ErrorResponse  "Device not found"
// @Failure      503      {object}  types.ErrorResponse  "Speaker unavailable"
// @Failure      504      {object}  types.ErrorResponse  "Request timed out"
// @Router       /devices/{id}/state [post]
func (h *ControlHandler) SetState(c *gin.Context) {
	id := c.Param("id")

	var req map[string]any
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
		return
	}

	state, err := h.controller.SetDeviceState(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, types.StateResponse{
		Device:    id,
		State:     state,
		Timestamp: time.Now(),
	})
}

// RunAction handles POST /devices/:id/actions/:action
// @Summary      Run a speaker action
// @Description  Triggers a one-shot action such as play_aux_in or volume_up
// @Tags         devices
// @Produce      json
// @Param        id      path      string  true  "Speaker id"
// @Param        action  path      string  true  "Action name"
// @Success      200     {object}  types.ActionResponse
// @Failure      400     {object}  types.ErrorResponse  "Unknown action"
// @Failure      404     {object}  types.ErrorResponse  "Device not found"
// @Failure      503     {object}  types.ErrorResponse  "Speaker unavailable"
// @Router       /devices/{id}/actions/{action} [post]
func (h *ControlHandler) RunAction(c *gin.Context) {
	id, action := c.Param("id"), c.Param("action")

	if err := h.controller.RunAction(c.Request.Context(), id, action); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, types.ActionResponse{
		Device: id,
		Action: action,
		Status: "ok",
	})
}

// Artwork handles GET /devices/:id/artwork
// @Summary      Get album art
// @Description  Redirects to the artwork URL, or serves the image bytes when the art was fetched
// @Tags         devices
// @Produce      image/jpeg
// @Param        id   path  string  true  "Speaker id"
// @Success      200  "Image bytes"
// @Success      302  "Redirect to artwork URL"
// @Failure      404  {object}  types.ErrorResponse  "No artwork"
// @Router       /devices/{id}/artwork [get]
func (h *ControlHandler) Artwork(c *gin.Context) {
	art, err := h.controller.GetArtwork(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	if art.URL != "" {
		c.Redirect(http.StatusFound, art.URL)
		return
	}

	contentType := art.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, contentType, art.Data)
}
