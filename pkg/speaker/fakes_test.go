package speaker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/urmzd/heos-bridge/pkg/discovery"
	"github.com/urmzd/heos-bridge/pkg/heos"
)

var errFake = errors.New("fake failure")

// fakeClient is an in-memory Client. Connect consumes connectErrs in order
// and succeeds once they are exhausted.
type fakeClient struct {
	mu          sync.Mutex
	address     string
	connectErrs []error
	connects    int
	disconnects int
	calls       []string
	queryErrs   map[string]error
	onPlayers   func()

	players   []heos.Player
	playState string
	volume    int
	mute      string
	mode      heos.PlayMode
	media     heos.Media

	subs []chan heos.Event
}

func newFakeClient(address string) *fakeClient {
	return &fakeClient{
		address:   address,
		queryErrs: map[string]error{},
		players: []heos.Player{
			{Name: "Kitchen", PID: "123", IP: "10.0.0.5"},
			{Name: "Living Room", PID: "456", IP: "10.0.0.9"},
		},
		playState: heos.StatePlay,
		volume:    35,
		mute:      heos.MuteOff,
		mode:      heos.PlayMode{Repeat: heos.RepeatAll, Shuffle: heos.ShuffleOn},
		media:     heos.Media{Song: "Song", Artist: "Artist", Album: "Album", ImageURL: "https://cdn/art.jpg"},
	}
}

func (c *fakeClient) record(call string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
	name, _, _ := strings.Cut(call, " ")
	return c.queryErrs[name]
}

func (c *fakeClient) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if got, _, _ := strings.Cut(call, " "); got == name {
			n++
		}
	}
	return n
}

func (c *fakeClient) has(call string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, got := range c.calls {
		if got == call {
			return true
		}
	}
	return false
}

func (c *fakeClient) connectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

func (c *fakeClient) disconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

func (c *fakeClient) subscriberCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

func (c *fakeClient) setMedia(m heos.Media) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.media = m
}

func (c *fakeClient) emit(evt heos.Event) {
	c.mu.Lock()
	subs := append([]chan heos.Event(nil), c.subs...)
	c.mu.Unlock()
	for _, ch := range subs {
		ch <- evt
	}
}

func (c *fakeClient) Address() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.address
}

func (c *fakeClient) SetAddress(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.address = address
}

func (c *fakeClient) Connect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	if len(c.connectErrs) > 0 {
		err := c.connectErrs[0]
		c.connectErrs = c.connectErrs[1:]
		return err
	}
	return nil
}

func (c *fakeClient) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	return nil
}

func (c *fakeClient) Players(context.Context) ([]heos.Player, error) {
	c.mu.Lock()
	hook := c.onPlayers
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err := c.record("Players"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]heos.Player(nil), c.players...), nil
}

func (c *fakeClient) PlayState(_ context.Context, pid string) (string, error) {
	if err := c.record("PlayState " + pid); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playState, nil
}

func (c *fakeClient) Volume(_ context.Context, pid string) (int, error) {
	if err := c.record("Volume " + pid); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume, nil
}

func (c *fakeClient) Mute(_ context.Context, pid string) (string, error) {
	if err := c.record("Mute " + pid); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mute, nil
}

func (c *fakeClient) PlayMode(_ context.Context, pid string) (heos.PlayMode, error) {
	if err := c.record("PlayMode " + pid); err != nil {
		return heos.PlayMode{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode, nil
}

func (c *fakeClient) NowPlayingMedia(_ context.Context, pid string) (heos.Media, error) {
	if err := c.record("NowPlayingMedia " + pid); err != nil {
		return heos.Media{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.media, nil
}

func (c *fakeClient) SetPlayState(_ context.Context, pid, state string) error {
	return c.record(fmt.Sprintf("SetPlayState %s %s", pid, state))
}

func (c *fakeClient) SetPlayMode(_ context.Context, pid string, mode heos.PlayMode) error {
	return c.record(fmt.Sprintf("SetPlayMode %s repeat=%s shuffle=%s", pid, mode.Repeat, mode.Shuffle))
}

func (c *fakeClient) SetVolume(_ context.Context, pid string, level int) error {
	return c.record(fmt.Sprintf("SetVolume %s %d", pid, level))
}

func (c *fakeClient) SetMute(_ context.Context, pid string, mute bool) error {
	return c.record(fmt.Sprintf("SetMute %s %t", pid, mute))
}

func (c *fakeClient) VolumeUp(_ context.Context, pid string, step int) error {
	return c.record(fmt.Sprintf("VolumeUp %s %d", pid, step))
}

func (c *fakeClient) VolumeDown(_ context.Context, pid string, step int) error {
	return c.record(fmt.Sprintf("VolumeDown %s %d", pid, step))
}

func (c *fakeClient) PlayNext(_ context.Context, pid string) error {
	return c.record("PlayNext " + pid)
}

func (c *fakeClient) PlayPrevious(_ context.Context, pid string) error {
	return c.record("PlayPrevious " + pid)
}

func (c *fakeClient) PlayInput(_ context.Context, pid, input string) error {
	return c.record(fmt.Sprintf("PlayInput %s %s", pid, input))
}

func (c *fakeClient) Subscribe() chan heos.Event {
	ch := make(chan heos.Event, 16)
	c.mu.Lock()
	c.subs = append(c.subs, ch)
	c.mu.Unlock()
	return ch
}

func (c *fakeClient) Unsubscribe(ch chan heos.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, sub := range c.subs {
		if sub == ch {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// recordingHost captures what a session reports to the hub.
type recordingHost struct {
	mu          sync.Mutex
	available   bool
	reasons     []string
	caps        map[string]any
	writes      int
	artwork     Artwork
	artworkSets int
}

func newRecordingHost() *recordingHost {
	return &recordingHost{caps: map[string]any{}}
}

func (h *recordingHost) SetAvailable() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.available = true
}

func (h *recordingHost) SetUnavailable(reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.available = false
	h.reasons = append(h.reasons, reason)
}

func (h *recordingHost) SetCapability(name string, value any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.caps[name] = value
	h.writes++
}

func (h *recordingHost) SetArtwork(art Artwork) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.artwork = art
	h.artworkSets++
}

func (h *recordingHost) get(name string) (any, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.caps[name]
	return v, ok
}

func (h *recordingHost) isAvailable() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.available
}

func (h *recordingHost) writeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.writes
}

func (h *recordingHost) art() (Artwork, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.artwork, h.artworkSets
}

type staticResolver struct {
	client Client
}

func (r staticResolver) ClientFor(context.Context, string) (Client, error) {
	return r.client, nil
}

// fakeArtwork serves "jpeg:<ref>". While gate is set, fetches block until
// it is closed.
type fakeArtwork struct {
	mu   sync.Mutex
	refs []string
	err  error
	gate chan struct{}
}

func (f *fakeArtwork) Fetch(ctx context.Context, ref string) (Artwork, error) {
	f.mu.Lock()
	f.refs = append(f.refs, ref)
	gate, err := f.gate, f.err
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Artwork{}, ctx.Err()
		}
	}
	if err != nil {
		return Artwork{}, err
	}
	return Artwork{Data: []byte("jpeg:" + ref), ContentType: "image/jpeg"}, nil
}

func (f *fakeArtwork) fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.refs...)
}

type fakeDescriptors struct {
	mu      sync.Mutex
	byURL   map[string]discovery.Descriptor
	fetches int
}

func (f *fakeDescriptors) Fetch(_ context.Context, location string) (discovery.Descriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	d, ok := f.byURL[location]
	if !ok {
		return discovery.Descriptor{}, fmt.Errorf("fetch descriptor %s: 404 Not Found", location)
	}
	return d, nil
}
