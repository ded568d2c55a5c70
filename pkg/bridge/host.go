package bridge

import (
	"maps"
	"reflect"
	"sync"

	"github.com/urmzd/heos-bridge/pkg/device"
	"github.com/urmzd/heos-bridge/pkg/speaker"
)

// change is what a deviceHost reports after a mutation. Exactly one of
// availability or state is meaningful.
type change struct {
	availability bool
	available    bool
	reason       string
	state        device.DeviceState
}

// deviceHost is the hub side of one paired speaker. It holds the projected
// capability state and reports every effective change to onChange, outside
// of its lock.
type deviceHost struct {
	id       string
	onChange func(id string, c change)

	mu        sync.RWMutex
	available bool
	reason    string
	state     device.DeviceState
	artwork   speaker.Artwork
}

func newDeviceHost(id string, restored map[string]any, onChange func(string, change)) *deviceHost {
	state := make(device.DeviceState, len(restored))
	maps.Copy(state, restored)
	// artwork buffers are not persisted
	delete(state, speaker.CapArtwork)

	return &deviceHost{
		id:       id,
		onChange: onChange,
		reason:   speaker.ReasonLoading,
		state:    state,
	}
}

func (h *deviceHost) SetAvailable() {
	h.setAvailability(true, "")
}

func (h *deviceHost) SetUnavailable(reason string) {
	h.setAvailability(false, reason)
}

func (h *deviceHost) setAvailability(available bool, reason string) {
	h.mu.Lock()
	if h.available == available && h.reason == reason {
		h.mu.Unlock()
		return
	}
	h.available, h.reason = available, reason
	h.mu.Unlock()

	h.onChange(h.id, change{availability: true, available: available, reason: reason})
}

func (h *deviceHost) SetCapability(name string, value any) {
	h.mu.Lock()
	if old, ok := h.state[name]; ok && reflect.DeepEqual(old, value) {
		h.mu.Unlock()
		return
	}
	h.state[name] = value
	h.mu.Unlock()

	h.onChange(h.id, change{state: device.DeviceState{name: value}})
}

func (h *deviceHost) SetArtwork(art speaker.Artwork) {
	var value any
	if !art.IsZero() {
		value = speaker.Artwork{URL: art.URL, ContentType: art.ContentType}
	}

	h.mu.Lock()
	h.artwork = art
	h.state[speaker.CapArtwork] = value
	h.mu.Unlock()

	h.onChange(h.id, change{state: device.DeviceState{speaker.CapArtwork: value}})
}

// Availability returns whether the session is subscribed and, if not, why.
func (h *deviceHost) Availability() (bool, string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.available, h.reason
}

// Snapshot returns a copy of the capability state.
func (h *deviceHost) Snapshot() device.DeviceState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return maps.Clone(h.state)
}

// Artwork returns the current album art including any fetched image.
func (h *deviceHost) Artwork() speaker.Artwork {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.artwork
}
