package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/urmzd/heos-bridge/pkg/api/types"
	"github.com/urmzd/heos-bridge/pkg/device"
)

// DevicesHandler handles paired device endpoints
type DevicesHandler struct {
	controller device.Controller
}

// NewDevicesHandler creates a new devices handler
func NewDevicesHandler(controller device.Controller) *DevicesHandler {
	return &DevicesHandler{controller: controller}
}

// ListDevices handles GET /devices
// @Summary      List paired speakers
// @Description  Returns all paired speakers with their availability and last known state
// @Tags         devices
// @Produce      json
// @Success      200  {object}  types.ListDevicesResponse
// @Failure      500  {object}  types.ErrorResponse  "Controller error"
// @Router       /devices [get]
func (h *DevicesHandler) ListDevices(c *gin.Context) {
	ctx := c.Request.Context()

	devices, err := h.controller.ListDevices(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	result := make([]types.DeviceWithState, 0, len(devices))
	for _, d := range devices {
		state, _ := h.controller.GetDeviceState(ctx, d.ID)
		result = append(result, types.NewDeviceWithState(d, state))
	}

	c.JSON(http.StatusOK, types.ListDevicesResponse{
		Devices: result,
		Count:   len(result),
	})
}

// GetDevice handles GET /devices/:id
// @Summary      Get speaker details
// @Description  Returns a paired speaker by id
// @Tags         devices
// @Produce      json
// @Param        id   path      string  true  "Speaker id"
// @Success      200  {object}  types.DeviceResponse
// @Failure      404  {object}  types.ErrorResponse  "Device not found"
// @Failure      500  {object}  types.ErrorResponse  "Controller error"
// @Router       /devices/{id} [get]
func (h *DevicesHandler) GetDevice(c *gin.Context) {
	ctx := c.Request.Context()

	d, err := h.controller.GetDevice(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	state, _ := h.controller.GetDeviceState(ctx, d.ID)

	c.JSON(http.StatusOK, types.DeviceResponse{
		Device: types.NewDeviceWithState(*d, state),
	})
}

// PairDevice handles POST /devices
// @Summary      Pair a speaker
// @Description  Pairs a discovered speaker and starts mirroring it. Pairing an already paired speaker returns it unchanged.
// @Tags         devices
// @Accept       json
// @Produce      json
// @Param        request  body      types.PairDeviceRequest  true  "Candidate id and optional name"
// @Success      201      {object}  types.DeviceResponse
// @Failure      400      {object}  types.ErrorResponse  "Invalid request"
// @Failure      409      {object}  types.ErrorResponse  "Speaker not discovered"
// @Failure      503      {object}  types.ErrorResponse  "Controller not running"
// @Router       /devices [post]
func (h *DevicesHandler) PairDevice(c *gin.Context) {
	var req types.PairDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "invalid_request",
			Message: "id is required",
		})
		return
	}

	d, err := h.controller.PairDevice(c.Request.Context(), req.ID, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, types.DeviceResponse{
		Device: types.NewDeviceWithState(*d, nil),
	})
}

// RenameDevice handles PATCH /devices/:id
// @Summary      Rename a speaker
// @Description  Changes the name of a paired speaker
// @Tags         devices
// @Accept       json
// @Produce      json
// @Param        id       path      string                     true  "Speaker id"
// @Param        request  body      types.RenameDeviceRequest  true  "New name"
// @Success      200      {object}  types.DeviceResponse
// @Failure      400      {object}  types.ErrorResponse  "Invalid request"
// @Failure      404      {object}  types.ErrorResponse  "Device not found"
// @Failure      500      {object}  types.ErrorResponse  "Controller error"
// @Router       /devices/{id} [patch]
func (h *DevicesHandler) RenameDevice(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	var req types.RenameDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "invalid_request",
			Message: "name is required",
		})
		return
	}

	if err := h.controller.RenameDevice(ctx, id, req.Name); err != nil {
		respondError(c, err)
		return
	}

	d, err := h.controller.GetDevice(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, types.DeviceResponse{
		Device: types.NewDeviceWithState(*d, nil),
	})
}

// RemoveDevice handles DELETE /devices/:id
// @Summary      Unpair a speaker
// @Description  Stops the speaker session and forgets the speaker. It stays discoverable for pairing.
// @Tags         devices
// @Produce      json
// @Param        id   path  string  true  "Speaker id"
// @Success      204  "Device removed successfully"
// @Failure      404  {object}  types.ErrorResponse  "Device not found"
// @Failure      500  {object}  types.ErrorResponse  "Controller error"
// @Router       /devices/{id} [delete]
func (h *DevicesHandler) RemoveDevice(c *gin.Context) {
	if err := h.controller.RemoveDevice(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PairingCandidates handles GET /pairing/candidates
// @Summary      List pairing candidates
// @Description  Returns every discovered speaker. Never triggers a search; use POST /discovery/start for that.
// @Tags         pairing
// @Produce      json
// @Success      200  {object}  types.PairingCandidatesResponse
// @Failure      500  {object}  types.ErrorResponse  "Controller error"
// @Router       /pairing/candidates [get]
func (h *DevicesHandler) PairingCandidates(c *gin.Context) {
	candidates, err := h.controller.PairingCandidates(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.PairingCandidatesResponse{
		Candidates: candidates,
		Count:      len(candidates),
	})
}
