package speaker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/urmzd/heos-bridge/pkg/discovery"
)

// DefaultManufacturer is the only manufacturer accepted unless configured
// otherwise.
const DefaultManufacturer = "Denon"

// DescriptorFetcher retrieves the description document of a sighting.
type DescriptorFetcher interface {
	Fetch(ctx context.Context, location string) (discovery.Descriptor, error)
}

// Record identifies one physical speaker. ID is derived from the UDN and
// never changes; Address follows the speaker across DHCP renewals.
type Record struct {
	ID           string    `json:"id"`
	Address      string    `json:"address"`
	Manufacturer string    `json:"manufacturer"`
	FriendlyName string    `json:"friendly_name"`
	ModelName    string    `json:"model_name"`
	ModelNumber  string    `json:"model_number"`
	DeviceID     string    `json:"device_id"`
	WlanMAC      string    `json:"wlan_mac"`
	DiscoveredAt time.Time `json:"discovered_at"`
	LastSeen     time.Time `json:"last_seen"`

	client Client
}

// Name prefers the friendly name over the model name.
func (r Record) Name() string {
	if r.FriendlyName != "" {
		return r.FriendlyName
	}
	return r.ModelName
}

// Client returns the protocol client bound to the record.
func (r Record) Client() Client {
	return r.client
}

// PairingCandidate is a registry entry as shown in a pairing list.
type PairingCandidate struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Model   string `json:"model,omitempty"`
	Address string `json:"address"`
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithManufacturers replaces the accepted manufacturer list.
func WithManufacturers(names ...string) RegistryOption {
	return func(r *Registry) {
		r.manufacturers = map[string]bool{}
		for _, n := range names {
			r.manufacturers[n] = true
		}
	}
}

// Registry is the deduplicated set of speakers seen on the network.
type Registry struct {
	newClient     ClientFactory
	fetcher       DescriptorFetcher
	manufacturers map[string]bool
	logger        zerolog.Logger

	mu      sync.Mutex
	records map[string]*Record
	// closed exactly once when the id is first registered
	waiters map[string]chan struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry(newClient ClientFactory, fetcher DescriptorFetcher, opts ...RegistryOption) *Registry {
	r := &Registry{
		newClient:     newClient,
		fetcher:       fetcher,
		manufacturers: map[string]bool{DefaultManufacturer: true},
		logger:        log.With().Str("component", "registry").Logger(),
		records:       make(map[string]*Record),
		waiters:       make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HandleDiscovery registers or refreshes the speaker behind a sighting. It
// reports whether a new record was created. Sightings of other
// manufacturers return a zero Record and no error.
func (r *Registry) HandleDiscovery(ctx context.Context, res discovery.Result) (Record, bool, error) {
	desc := res.Descriptor
	if desc == nil {
		if res.Location == "" {
			return Record{}, false, errors.New("sighting has neither descriptor nor location")
		}
		d, err := r.fetcher.Fetch(ctx, res.Location)
		if err != nil {
			return Record{}, false, err
		}
		desc = &d
	}

	if !r.manufacturers[desc.Manufacturer] {
		return Record{}, false, nil
	}

	id := desc.StableID()
	if id == "" {
		return Record{}, false, fmt.Errorf("descriptor at %s has no UDN", res.Location)
	}

	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.records[id]; ok {
		rec.LastSeen = now
		if rec.Address != res.Address {
			r.logger.Info().
				Str("id", id).
				Str("old_address", rec.Address).
				Str("new_address", res.Address).
				Msg("Speaker moved")
			rec.Address = res.Address
			rec.client.SetAddress(res.Address)
		}
		return *rec, false, nil
	}

	rec := &Record{
		ID:           id,
		Address:      res.Address,
		Manufacturer: desc.Manufacturer,
		FriendlyName: desc.DisplayName(),
		ModelName:    desc.ModelName,
		ModelNumber:  desc.ModelNumber,
		DeviceID:     desc.DeviceID,
		WlanMAC:      desc.WlanMAC,
		DiscoveredAt: now,
		LastSeen:     now,
		client:       r.newClient(res.Address),
	}
	r.records[id] = rec

	if ch, ok := r.waiters[id]; ok {
		close(ch)
		delete(r.waiters, id)
	}

	r.logger.Info().
		Str("id", id).
		Str("name", rec.Name()).
		Str("address", rec.Address).
		Msg("Found speaker")

	return *rec, true, nil
}

// Consume feeds sightings into the registry until ctx is done or results
// is closed. Failed sightings are logged and dropped. onRecord, if set, is
// called for every accepted sighting.
func (r *Registry) Consume(ctx context.Context, results <-chan discovery.Result, onRecord func(rec Record, created bool)) {
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-results:
			if !ok {
				return
			}
			rec, created, err := r.HandleDiscovery(ctx, res)
			if err != nil {
				r.logger.Warn().Err(err).Str("address", res.Address).Msg("Dropping discovery result")
				continue
			}
			if rec.ID == "" {
				continue
			}
			if onRecord != nil {
				onRecord(rec, created)
			}
		}
	}
}

// ListForPairing returns the known speakers ordered by name.
func (r *Registry) ListForPairing() []PairingCandidate {
	r.mu.Lock()
	out := make([]PairingCandidate, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, PairingCandidate{
			ID:      rec.ID,
			Name:    rec.Name(),
			Model:   rec.ModelName,
			Address: rec.Address,
		})
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Record returns the record for id.
func (r *Registry) Record(id string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// ClientFor returns the client of speaker id, waiting for its discovery
// if it has not been seen yet. The wait ends only with ctx.
func (r *Registry) ClientFor(ctx context.Context, id string) (Client, error) {
	r.mu.Lock()
	if rec, ok := r.records[id]; ok {
		r.mu.Unlock()
		return rec.client, nil
	}
	ch, ok := r.waiters[id]
	if !ok {
		ch = make(chan struct{})
		r.waiters[id] = ch
	}
	r.mu.Unlock()

	r.logger.Debug().Str("id", id).Msg("Waiting for speaker to be discovered")

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-ch:
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[id].client, nil
}
