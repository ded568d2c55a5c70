package device

import "context"

// NullController is a no-op controller used when the bridge cannot start,
// for example because the config database is locked. The API still serves
// health and docs in this mode.
type NullController struct{}

// NewNullController creates a new NullController.
func NewNullController() *NullController {
	return &NullController{}
}

func (c *NullController) ListDevices(ctx context.Context) ([]Device, error) {
	return []Device{}, nil
}

func (c *NullController) GetDevice(ctx context.Context, id string) (*Device, error) {
	return nil, ErrNotFound
}

func (c *NullController) RenameDevice(ctx context.Context, id, newName string) error {
	return ErrNotConnected
}

func (c *NullController) RemoveDevice(ctx context.Context, id string) error {
	return ErrNotConnected
}

func (c *NullController) GetDeviceState(ctx context.Context, id string) (DeviceState, error) {
	return nil, ErrNotConnected
}

func (c *NullController) SetDeviceState(ctx context.Context, id string, state map[string]any) (DeviceState, error) {
	return nil, ErrNotConnected
}

func (c *NullController) GetArtwork(ctx context.Context, id string) (Artwork, error) {
	return Artwork{}, ErrNotConnected
}

func (c *NullController) RunAction(ctx context.Context, id, action string) error {
	return ErrNotConnected
}

func (c *NullController) PairingCandidates(ctx context.Context) ([]PairingCandidate, error) {
	return []PairingCandidate{}, nil
}

func (c *NullController) PairDevice(ctx context.Context, id, name string) (*Device, error) {
	return nil, ErrNotConnected
}

func (c *NullController) PermitJoin(ctx context.Context, enable bool, duration int) error {
	return ErrNotConnected
}

func (c *NullController) IsConnected() bool {
	return false
}

func (c *NullController) Close() {}

// NullEventSubscriber is a no-op event subscriber paired with NullController.
type NullEventSubscriber struct{}

// NewNullEventSubscriber creates a new NullEventSubscriber.
func NewNullEventSubscriber() *NullEventSubscriber {
	return &NullEventSubscriber{}
}

func (s *NullEventSubscriber) Subscribe() chan Event {
	// never sent to; callers check IsConnected() on the controller
	return make(chan Event)
}

func (s *NullEventSubscriber) Unsubscribe(ch chan Event) {
	close(ch)
}
