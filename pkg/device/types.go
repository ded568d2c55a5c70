package device

import (
	"encoding/json"
	"time"
)

// Device is a paired speaker as seen by the API. ID is the stable id derived
// from the UPnP UDN; Reason explains why an unavailable device is down.
type Device struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Type         string          `json:"type"`
	Protocol     string          `json:"protocol"`
	Manufacturer string          `json:"manufacturer"`
	Model        string          `json:"model"`
	ModelNumber  string          `json:"model_number,omitempty"`
	Address      string          `json:"address,omitempty"`
	Available    bool            `json:"available"`
	Reason       string          `json:"reason,omitempty"`
	StateSchema  json.RawMessage `json:"state_schema"`
	Actions      []string        `json:"actions,omitempty"`
}

// DeviceState is the current capability state of a device.
type DeviceState map[string]any

// PairingCandidate is a discovered speaker offered for pairing.
type PairingCandidate struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Model   string `json:"model"`
	Address string `json:"address"`
	Paired  bool   `json:"paired"`
}

// Artwork is the album art of the current track, either a URL or an image.
type Artwork struct {
	URL         string
	Data        []byte
	ContentType string
}

// Event is pushed to subscribers when a device appears, changes or goes away.
// State carries only the changed capabilities of a state_changed event.
type Event struct {
	Type      string      `json:"type"`
	DeviceID  string      `json:"device_id,omitempty"`
	Device    *Device     `json:"device,omitempty"`
	State     DeviceState `json:"state,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Event types
const (
	EventSpeakerDiscovered   = "speaker_discovered"
	EventDevicePaired        = "device_paired"
	EventDeviceRemoved       = "device_removed"
	EventDeviceRenamed       = "device_renamed"
	EventStateChanged        = "state_changed"
	EventAvailabilityChanged = "availability_changed"
	EventDiscoveryStarted    = "discovery_started"
	EventDiscoveryStopped    = "discovery_stopped"
)

// Protocol constants
const (
	ProtocolHEOS = "heos"
)

// Device type constants
const (
	DeviceTypeSpeaker = "speaker"
)
