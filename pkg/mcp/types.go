package mcp

import (
	"encoding/json"

	"github.com/urmzd/heos-bridge/pkg/device"
)

// GetHealthOutput is the output for the get_health tool
type GetHealthOutput struct {
	Status     string `json:"status" jsonschema:"description=Overall health status (healthy or unhealthy)"`
	Controller string `json:"controller" jsonschema:"description=Bridge controller status"`
	Devices    int    `json:"devices" jsonschema:"description=Number of paired speakers"`
	Available  int    `json:"available" jsonschema:"description=Number of paired speakers currently reachable"`
	Timestamp  string `json:"timestamp" jsonschema:"description=ISO8601 timestamp"`
}

// ListDevicesOutput is the output for the list_devices tool
type ListDevicesOutput struct {
	Devices []DeviceInfo `json:"devices" jsonschema:"description=List of paired speakers"`
	Count   int          `json:"count" jsonschema:"description=Total number of speakers"`
}

// DeviceInfo represents a speaker in tool outputs
type DeviceInfo struct {
	ID           string          `json:"id" jsonschema:"description=Stable speaker identifier"`
	Name         string          `json:"name" jsonschema:"description=Speaker name"`
	Type         string          `json:"type" jsonschema:"description=Device type"`
	Protocol     string          `json:"protocol" jsonschema:"description=Communication protocol"`
	Manufacturer string          `json:"manufacturer,omitempty" jsonschema:"description=Speaker manufacturer"`
	Model        string          `json:"model,omitempty" jsonschema:"description=Speaker model"`
	Address      string          `json:"address,omitempty" jsonschema:"description=Last known IP address"`
	Available    bool            `json:"available" jsonschema:"description=Whether the speaker is reachable"`
	Reason       string          `json:"reason,omitempty" jsonschema:"description=Why the speaker is unavailable"`
	Actions      []string        `json:"actions,omitempty" jsonschema:"description=Supported one-shot actions"`
	StateSchema  json.RawMessage `json:"state_schema,omitempty" jsonschema:"description=JSON Schema for settable state"`
	State        map[string]any  `json:"state,omitempty" jsonschema:"description=Current speaker state"`
}

// GetDeviceOutput is the output for the get_device tool
type GetDeviceOutput struct {
	Device DeviceInfo `json:"device" jsonschema:"description=Speaker information"`
}

// PairingCandidatesOutput is the output for the list_pairing_candidates tool
type PairingCandidatesOutput struct {
	Candidates []device.PairingCandidate `json:"candidates" jsonschema:"description=Discovered speakers"`
	Count      int                       `json:"count" jsonschema:"description=Number of discovered speakers"`
}

// ResultOutput is the output for tools that only report success
type ResultOutput struct {
	Success bool   `json:"success" jsonschema:"description=Whether the call succeeded"`
	Message string `json:"message" jsonschema:"description=Status message"`
}

// StateOutput is the output for tools that read or change speaker state
type StateOutput struct {
	DeviceID string         `json:"device_id" jsonschema:"description=Speaker identifier"`
	State    map[string]any `json:"state" jsonschema:"description=Speaker state"`
}

// StartDiscoveryOutput is the output for the start_discovery tool
type StartDiscoveryOutput struct {
	Success         bool   `json:"success" jsonschema:"description=Whether the search started"`
	Message         string `json:"message" jsonschema:"description=Status message"`
	DurationSeconds int    `json:"duration_seconds" jsonschema:"description=How long the search runs"`
}

// DeviceToInfo converts a device.Device to DeviceInfo
func DeviceToInfo(d *device.Device) DeviceInfo {
	return DeviceInfo{
		ID:           d.ID,
		Name:         d.Name,
		Type:         d.Type,
		Protocol:     d.Protocol,
		Manufacturer: d.Manufacturer,
		Model:        d.Model,
		Address:      d.Address,
		Available:    d.Available,
		Reason:       d.Reason,
		Actions:      d.Actions,
		StateSchema:  d.StateSchema,
	}
}
