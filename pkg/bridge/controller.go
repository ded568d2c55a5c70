// Package bridge is the hub side of heos-bridge. Its Controller owns the
// speaker registry, one session per paired speaker and the pairing list,
// and fans state changes out to subscribers, the database and MQTT.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/urmzd/heos-bridge/pkg/db"
	"github.com/urmzd/heos-bridge/pkg/device"
	"github.com/urmzd/heos-bridge/pkg/device/schema"
	"github.com/urmzd/heos-bridge/pkg/discovery"
	"github.com/urmzd/heos-bridge/pkg/heos"
	"github.com/urmzd/heos-bridge/pkg/speaker"
)

const (
	defaultSearchWindow = 60 * time.Second
	searchRepeat        = 5 * time.Second
	storeTimeout        = 5 * time.Second
)

// Scanner is the discovery source. *discovery.Scanner satisfies it.
type Scanner interface {
	Run(ctx context.Context, results chan<- discovery.Result) error
	Search()
}

// Publisher mirrors state to an external bus. *mqtt.Client satisfies it.
type Publisher interface {
	PublishState(deviceID string, state map[string]any)
	PublishAvailability(deviceID string, available bool)
	ClearDevice(deviceID string, capabilities []string)
}

// Config wires a Controller.
type Config struct {
	ProfileID     int64
	Store         db.SpeakerStore
	Registry      *speaker.Registry
	Scanner       Scanner
	Publisher     Publisher
	Artwork       speaker.ArtworkFetcher
	RetryInterval time.Duration
}

// stateCapabilities are the retained topics cleared when a speaker is removed.
var stateCapabilities = []string{
	speaker.CapPlaying, speaker.CapTrack, speaker.CapArtist, speaker.CapAlbum, speaker.CapArtwork,
	speaker.CapVolume, speaker.CapMute, speaker.CapShuffle, speaker.CapRepeat,
}

type pairedDevice struct {
	speaker *db.Speaker
	host    *deviceHost
	session *speaker.Session
	cancel  context.CancelFunc
	done    chan struct{}
}

// Controller implements device.Controller and device.EventSubscriber for
// HEOS speakers.
type Controller struct {
	cfg       Config
	validator *schema.Validator
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	devices map[string]*pairedDevice
	running bool

	searchMu     sync.Mutex
	searchCancel context.CancelFunc

	subscribers   []chan device.Event
	subscribersMu sync.Mutex
}

// New creates a Controller. Call Start to restore paired speakers and begin
// discovery.
func New(cfg Config) (*Controller, error) {
	if cfg.Store == nil {
		return nil, errors.New("bridge: speaker store is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("bridge: registry is required")
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = speaker.DefaultRetryInterval
	}

	return &Controller{
		cfg:       cfg,
		validator: schema.NewValidator(),
		logger:    log.With().Str("component", "bridge").Logger(),
		devices:   make(map[string]*pairedDevice),
	}, nil
}

// Start restores the pairing list, starting a session per speaker, and runs
// discovery in the background until Close.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return errors.New("bridge: already started")
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.running = true
	c.mu.Unlock()

	speakers, err := c.cfg.Store.List(ctx, c.cfg.ProfileID)
	if err != nil {
		c.Close()
		return fmt.Errorf("failed to load paired speakers: %w", err)
	}

	c.mu.Lock()
	for _, sp := range speakers {
		c.startSessionLocked(sp)
	}
	c.mu.Unlock()
	c.logger.Info().Int("count", len(speakers)).Msg("Restored paired speakers")

	if c.cfg.Scanner != nil {
		results := make(chan discovery.Result, 16)
		c.wg.Add(2)
		go func() {
			defer c.wg.Done()
			defer close(results)
			if err := c.cfg.Scanner.Run(c.ctx, results); err != nil {
				c.logger.Error().Err(err).Msg("Discovery stopped")
			}
		}()
		go func() {
			defer c.wg.Done()
			c.cfg.Registry.Consume(c.ctx, results, c.onDiscovered)
		}()
	}
	return nil
}

func (c *Controller) onDiscovered(rec speaker.Record, created bool) {
	if created {
		c.publishEvent(device.Event{
			Type:     device.EventSpeakerDiscovered,
			DeviceID: rec.ID,
			Device: &device.Device{
				ID:           rec.ID,
				Name:         rec.Name(),
				Type:         device.DeviceTypeSpeaker,
				Protocol:     device.ProtocolHEOS,
				Manufacturer: rec.Manufacturer,
				Model:        rec.ModelName,
				ModelNumber:  rec.ModelNumber,
				Address:      rec.Address,
			},
		})
	}

	c.mu.RLock()
	pd, paired := c.devices[rec.ID]
	touch := paired && (created || pd.speaker.Address != rec.Address)
	c.mu.RUnlock()
	if !touch {
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, storeTimeout)
	defer cancel()
	if err := c.cfg.Store.TouchAddress(ctx, rec.ID, rec.Address); err != nil {
		c.logger.Warn().Err(err).Str("device", rec.ID).Msg("Failed to record speaker address")
		return
	}
	c.mu.Lock()
	pd.speaker.Address = rec.Address
	c.mu.Unlock()
}

func (c *Controller) startSessionLocked(sp *db.Speaker) {
	host := newDeviceHost(sp.ID, sp.State, c.onHostChange)
	opts := []speaker.SessionOption{speaker.WithRetryInterval(c.cfg.RetryInterval)}
	if c.cfg.Artwork != nil {
		opts = append(opts, speaker.WithArtworkFetcher(c.cfg.Artwork))
	}
	session := speaker.NewSession(sp.ID, c.cfg.Registry, host, opts...)

	ctx, cancel := context.WithCancel(c.ctx)
	pd := &pairedDevice{speaker: sp, host: host, session: session, cancel: cancel, done: make(chan struct{})}
	c.devices[sp.ID] = pd

	go func() {
		defer close(pd.done)
		_ = session.Run(ctx)
		session.Close()
	}()
}

func (pd *pairedDevice) stop() {
	pd.cancel()
	<-pd.done
}

func (c *Controller) onHostChange(id string, ch change) {
	if ch.availability {
		if c.cfg.Publisher != nil {
			c.cfg.Publisher.PublishAvailability(id, ch.available)
		}
		dev, err := c.GetDevice(context.Background(), id)
		if err != nil {
			return
		}
		c.publishEvent(device.Event{Type: device.EventAvailabilityChanged, DeviceID: id, Device: dev})
		return
	}

	if c.cfg.Publisher != nil {
		c.cfg.Publisher.PublishState(id, ch.state)
	}
	c.publishEvent(device.Event{Type: device.EventStateChanged, DeviceID: id, State: ch.state})

	c.mu.RLock()
	pd, ok := c.devices[id]
	c.mu.RUnlock()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := c.cfg.Store.SaveState(ctx, id, pd.host.Snapshot()); err != nil && !errors.Is(err, db.ErrSpeakerNotFound) {
		c.logger.Warn().Err(err).Str("device", id).Msg("Failed to persist speaker state")
	}
}

// publishEvent sends an event to all subscribers without blocking.
func (c *Controller) publishEvent(evt device.Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	c.subscribersMu.Lock()
	defer c.subscribersMu.Unlock()

	for _, ch := range c.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (c *Controller) lookup(id string) (*pairedDevice, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pd, ok := c.devices[id]
	if !ok {
		return nil, device.ErrNotFound
	}
	return pd, nil
}

func (c *Controller) toDevice(pd *pairedDevice) device.Device {
	available, reason := pd.host.Availability()
	return device.Device{
		ID:           pd.speaker.ID,
		Name:         pd.speaker.Name,
		Type:         device.DeviceTypeSpeaker,
		Protocol:     device.ProtocolHEOS,
		Manufacturer: pd.speaker.Manufacturer,
		Model:        pd.speaker.ModelName,
		ModelNumber:  pd.speaker.ModelNumber,
		Address:      pd.speaker.Address,
		Available:    available,
		Reason:       reason,
		StateSchema:  schema.SpeakerSet,
		Actions:      speaker.ActionNames(),
	}
}

// --- device.Controller interface ---

func (c *Controller) ListDevices(_ context.Context) ([]device.Device, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	devices := make([]device.Device, 0, len(c.devices))
	for _, pd := range c.devices {
		devices = append(devices, c.toDevice(pd))
	}
	slices.SortFunc(devices, func(a, b device.Device) int {
		if n := strings.Compare(a.Name, b.Name); n != 0 {
			return n
		}
		return strings.Compare(a.ID, b.ID)
	})
	return devices, nil
}

func (c *Controller) GetDevice(_ context.Context, id string) (*device.Device, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	pd, ok := c.devices[id]
	if !ok {
		return nil, device.ErrNotFound
	}
	dev := c.toDevice(pd)
	return &dev, nil
}

func (c *Controller) RenameDevice(ctx context.Context, id, newName string) error {
	pd, err := c.lookup(id)
	if err != nil {
		return err
	}
	if strings.TrimSpace(newName) == "" {
		return fmt.Errorf("%w: name must not be empty", device.ErrValidation)
	}
	if err := c.cfg.Store.Rename(ctx, id, newName); err != nil {
		return fmt.Errorf("rename speaker: %w", err)
	}

	c.mu.Lock()
	pd.speaker.Name = newName
	dev := c.toDevice(pd)
	c.mu.Unlock()

	c.publishEvent(device.Event{Type: device.EventDeviceRenamed, DeviceID: id, Device: &dev})
	return nil
}

func (c *Controller) RemoveDevice(ctx context.Context, id string) error {
	c.mu.Lock()
	pd, ok := c.devices[id]
	if !ok {
		c.mu.Unlock()
		return device.ErrNotFound
	}
	delete(c.devices, id)
	c.mu.Unlock()

	pd.stop()

	if err := c.cfg.Store.Delete(ctx, id); err != nil && !errors.Is(err, db.ErrSpeakerNotFound) {
		return fmt.Errorf("delete speaker: %w", err)
	}
	if c.cfg.Publisher != nil {
		c.cfg.Publisher.ClearDevice(id, stateCapabilities)
	}

	c.logger.Info().Str("device", id).Msg("Removed speaker")
	c.publishEvent(device.Event{Type: device.EventDeviceRemoved, DeviceID: id})
	return nil
}

func (c *Controller) GetDeviceState(_ context.Context, id string) (device.DeviceState, error) {
	pd, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	return pd.host.Snapshot(), nil
}

func (c *Controller) GetArtwork(_ context.Context, id string) (device.Artwork, error) {
	pd, err := c.lookup(id)
	if err != nil {
		return device.Artwork{}, err
	}
	art := pd.host.Artwork()
	if art.IsZero() {
		return device.Artwork{}, fmt.Errorf("%w: no artwork", device.ErrNotFound)
	}
	return device.Artwork{URL: art.URL, Data: art.Data, ContentType: art.ContentType}, nil
}

func (c *Controller) RunAction(ctx context.Context, id, action string) error {
	pd, err := c.lookup(id)
	if err != nil {
		return err
	}
	return translate(pd.session.RunAction(ctx, action))
}

func (c *Controller) PairingCandidates(_ context.Context) ([]device.PairingCandidate, error) {
	candidates := c.cfg.Registry.ListForPairing()

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]device.PairingCandidate, 0, len(candidates))
	for _, pc := range candidates {
		_, paired := c.devices[pc.ID]
		out = append(out, device.PairingCandidate{
			ID:      pc.ID,
			Name:    pc.Name,
			Model:   pc.Model,
			Address: pc.Address,
			Paired:  paired,
		})
	}
	return out, nil
}

// PairDevice pairs a discovered speaker. Pairing an already paired speaker
// returns it unchanged.
func (c *Controller) PairDevice(ctx context.Context, id, name string) (*device.Device, error) {
	if dev, err := c.GetDevice(ctx, id); err == nil {
		return dev, nil
	}

	if !c.IsConnected() {
		return nil, device.ErrNotConnected
	}
	rec, ok := c.cfg.Registry.Record(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", device.ErrNotDiscovered, id)
	}
	if name == "" {
		name = rec.Name()
	}

	sp := &db.Speaker{
		ID:           rec.ID,
		ProfileID:    c.cfg.ProfileID,
		Name:         name,
		Manufacturer: rec.Manufacturer,
		ModelName:    rec.ModelName,
		ModelNumber:  rec.ModelNumber,
		WlanMAC:      rec.WlanMAC,
		Address:      rec.Address,
		State:        map[string]any{},
	}
	if err := c.cfg.Store.Upsert(ctx, sp); err != nil {
		return nil, fmt.Errorf("pair speaker: %w", err)
	}

	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil, device.ErrNotConnected
	}
	if _, exists := c.devices[id]; !exists {
		c.startSessionLocked(sp)
	}
	dev := c.toDevice(c.devices[id])
	c.mu.Unlock()

	c.logger.Info().Str("device", id).Str("name", name).Msg("Paired speaker")
	c.publishEvent(device.Event{Type: device.EventDevicePaired, DeviceID: id, Device: &dev})
	return &dev, nil
}

// PermitJoin opens an active discovery window of duration seconds (60 when
// not positive), repeating the M-SEARCH until it closes. Passive NOTIFY
// listening runs regardless.
func (c *Controller) PermitJoin(_ context.Context, enable bool, duration int) error {
	if c.cfg.Scanner == nil {
		return device.ErrUnsupported
	}
	if !c.IsConnected() {
		return device.ErrNotConnected
	}

	c.searchMu.Lock()
	defer c.searchMu.Unlock()

	if c.searchCancel != nil {
		c.searchCancel()
		c.searchCancel = nil
	}
	if !enable {
		c.publishEvent(device.Event{Type: device.EventDiscoveryStopped})
		return nil
	}

	window := defaultSearchWindow
	if duration > 0 {
		window = time.Duration(duration) * time.Second
	}
	ctx, cancel := context.WithTimeout(c.ctx, window)
	c.searchCancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.searchWindow(ctx)
	}()

	c.logger.Info().Dur("window", window).Msg("Searching for speakers")
	c.publishEvent(device.Event{Type: device.EventDiscoveryStarted})
	return nil
}

func (c *Controller) searchWindow(ctx context.Context) {
	ticker := time.NewTicker(searchRepeat)
	defer ticker.Stop()

	c.cfg.Scanner.Search()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				c.publishEvent(device.Event{Type: device.EventDiscoveryStopped})
			}
			return
		case <-ticker.C:
			c.cfg.Scanner.Search()
		}
	}
}

func (c *Controller) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// Close stops discovery and every session, waiting for them to disconnect.
func (c *Controller) Close() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.cancel()
	devices := c.devices
	c.devices = make(map[string]*pairedDevice)
	c.mu.Unlock()

	for _, pd := range devices {
		pd.stop()
	}
	c.wg.Wait()

	c.logger.Info().Msg("Bridge closed")
}

// --- device.EventSubscriber interface ---

func (c *Controller) Subscribe() chan device.Event {
	ch := make(chan device.Event, 16)
	c.subscribersMu.Lock()
	c.subscribers = append(c.subscribers, ch)
	c.subscribersMu.Unlock()
	return ch
}

func (c *Controller) Unsubscribe(ch chan device.Event) {
	c.subscribersMu.Lock()
	defer c.subscribersMu.Unlock()

	for i, sub := range c.subscribers {
		if sub == ch {
			c.subscribers = append(c.subscribers[:i], c.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}

// translate maps session errors onto the device error vocabulary.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, speaker.ErrNotConnected), errors.Is(err, speaker.ErrNotReady),
		errors.Is(err, heos.ErrNotConnected):
		return fmt.Errorf("%w: %w", device.ErrUnavailable, err)
	case errors.Is(err, speaker.ErrUnknownAction):
		return fmt.Errorf("%w: %w", device.ErrUnsupported, err)
	case errors.Is(err, heos.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", device.ErrTimeout, err)
	default:
		return err
	}
}
