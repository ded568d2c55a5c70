package types

import (
	"encoding/json"
	"time"

	"github.com/urmzd/heos-bridge/pkg/device"
)

// --- Request DTOs ---

// StartDiscoveryRequest is the request body for POST /discovery/start
type StartDiscoveryRequest struct {
	DurationSeconds int `json:"duration_seconds"`
}

// RenameDeviceRequest is the request body for PATCH /devices/:id
type RenameDeviceRequest struct {
	Name string `json:"name" binding:"required"`
}

// PairDeviceRequest is the request body for POST /devices
type PairDeviceRequest struct {
	ID   string `json:"id" binding:"required"`
	Name string `json:"name,omitempty"`
}

// --- Response DTOs ---

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned from GET /health
type HealthResponse struct {
	Status     string    `json:"status"`
	Controller string    `json:"controller"`
	Devices    int       `json:"devices"`
	Available  int       `json:"available"`
	Timestamp  time.Time `json:"timestamp"`
}

// ListDevicesResponse is returned from GET /devices
type ListDevicesResponse struct {
	Devices []DeviceWithState `json:"devices"`
	Count   int               `json:"count"`
}

// DeviceWithState combines device info with current state
type DeviceWithState struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Type         string          `json:"type"`
	Manufacturer string          `json:"manufacturer,omitempty"`
	Model        string          `json:"model,omitempty"`
	ModelNumber  string          `json:"model_number,omitempty"`
	Address      string          `json:"address,omitempty"`
	Available    bool            `json:"available"`
	Reason       string          `json:"reason,omitempty"`
	Actions      []string        `json:"actions,omitempty"`
	StateSchema  json.RawMessage `json:"state_schema,omitempty" swaggertype:"object"`
	State        map[string]any  `json:"state,omitempty"`
}

// NewDeviceWithState builds the response form of a device.
func NewDeviceWithState(d device.Device, state map[string]any) DeviceWithState {
	return DeviceWithState{
		ID:           d.ID,
		Name:         d.Name,
		Type:         d.Type,
		Manufacturer: d.Manufacturer,
		Model:        d.Model,
		ModelNumber:  d.ModelNumber,
		Address:      d.Address,
		Available:    d.Available,
		Reason:       d.Reason,
		Actions:      d.Actions,
		StateSchema:  d.StateSchema,
		State:        state,
	}
}

// DeviceResponse is returned from GET /devices/:id
type DeviceResponse struct {
	Device DeviceWithState `json:"device"`
}

// StateResponse is returned from GET/POST /devices/:id/state
type StateResponse struct {
	Device    string         `json:"device"`
	State     map[string]any `json:"state"`
	Timestamp time.Time      `json:"timestamp"`
}

// PairingCandidatesResponse is returned from GET /pairing/candidates
type PairingCandidatesResponse struct {
	Candidates []device.PairingCandidate `json:"candidates"`
	Count      int                       `json:"count"`
}

// ActionResponse is returned from POST /devices/:id/actions/:action
type ActionResponse struct {
	Device string `json:"device"`
	Action string `json:"action"`
	Status string `json:"status"`
}

// StartDiscoveryResponse is returned from POST /discovery/start
type StartDiscoveryResponse struct {
	Status          string    `json:"status"`
	ExpiresAt       time.Time `json:"expires_at"`
	DurationSeconds int       `json:"duration_seconds"`
}

// StopDiscoveryResponse is returned from POST /discovery/stop
type StopDiscoveryResponse struct {
	Status string `json:"status"`
}
