package device

import "context"

// Controller is the hub-facing surface of the bridge. The REST API and the
// MCP server both drive speakers through it.
type Controller interface {
	// ListDevices returns all paired devices
	ListDevices(ctx context.Context) ([]Device, error)

	// GetDevice returns a single device by ID
	GetDevice(ctx context.Context, id string) (*Device, error)

	// RenameDevice changes a device's friendly name
	RenameDevice(ctx context.Context, id, newName string) error

	// RemoveDevice unpairs a device and tears its session down
	RemoveDevice(ctx context.Context, id string) error

	// GetDeviceState returns the last projected capability state
	GetDeviceState(ctx context.Context, id string) (DeviceState, error)

	// SetDeviceState applies capability writes and returns the resulting state
	SetDeviceState(ctx context.Context, id string, state map[string]any) (DeviceState, error)

	// GetArtwork returns the current album art
	GetArtwork(ctx context.Context, id string) (Artwork, error)

	// RunAction triggers a named one-shot action
	RunAction(ctx context.Context, id, action string) error

	// PairingCandidates lists discovered speakers without triggering discovery
	PairingCandidates(ctx context.Context) ([]PairingCandidate, error)

	// PairDevice pairs a discovered speaker and starts its session
	PairDevice(ctx context.Context, id, name string) (*Device, error)

	// PermitJoin opens or closes an active discovery window
	PermitJoin(ctx context.Context, enable bool, duration int) error

	// IsConnected returns true if the controller is running
	IsConnected() bool

	// Close stops every session
	Close()
}

// EventSubscriber fans out device events.
type EventSubscriber interface {
	// Subscribe returns a channel that receives device events
	Subscribe() chan Event

	// Unsubscribe removes a subscription
	Unsubscribe(ch chan Event)
}
