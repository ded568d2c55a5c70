package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/urmzd/heos-bridge/pkg/api/types"
	"github.com/urmzd/heos-bridge/pkg/device"
)

// respondError maps controller errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, device.ErrNotFound):
		c.JSON(http.StatusNotFound, types.ErrorResponse{
			Error:   "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, device.ErrValidation):
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
	case errors.Is(err, device.ErrUnsupported):
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "unsupported",
			Message: err.Error(),
		})
	case errors.Is(err, device.ErrNotDiscovered):
		c.JSON(http.StatusConflict, types.ErrorResponse{
			Error:   "not_discovered",
			Message: err.Error(),
		})
	case errors.Is(err, device.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, types.ErrorResponse{
			Error:   "device_unavailable",
			Message: err.Error(),
		})
	case errors.Is(err, device.ErrNotConnected):
		c.JSON(http.StatusServiceUnavailable, types.ErrorResponse{
			Error:   "controller_disconnected",
			Message: err.Error(),
		})
	case errors.Is(err, device.ErrTimeout):
		c.JSON(http.StatusGatewayTimeout, types.ErrorResponse{
			Error:   "timeout",
			Message: "Request timed out waiting for speaker response",
		})
	default:
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{
			Error:   "controller_error",
			Message: err.Error(),
		})
	}
}
