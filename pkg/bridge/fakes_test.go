package bridge

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/urmzd/heos-bridge/pkg/discovery"
	"github.com/urmzd/heos-bridge/pkg/heos"
	"github.com/urmzd/heos-bridge/pkg/speaker"
)

// fakeSpeaker is an in-memory speaker.Client reporting a single player at
// its own address.
type fakeSpeaker struct {
	mu          sync.Mutex
	address     string
	calls       []string
	disconnects int
	hidePlayers bool
	failWith    error
	subs        []chan heos.Event
}

func (f *fakeSpeaker) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeSpeaker) called(call string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Contains(f.calls, call)
}

// failCommands makes every subsequent write command return err.
func (f *fakeSpeaker) failCommands(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWith = err
}

func (f *fakeSpeaker) commandErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failWith
}

func (f *fakeSpeaker) disconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

func (f *fakeSpeaker) emit(evt heos.Event) {
	f.mu.Lock()
	subs := slices.Clone(f.subs)
	f.mu.Unlock()
	for _, ch := range subs {
		ch <- evt
	}
}

func (f *fakeSpeaker) Address() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.address
}

func (f *fakeSpeaker) SetAddress(address string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.address = address
}

func (f *fakeSpeaker) Connect(context.Context) error {
	f.record("Connect")
	return nil
}

func (f *fakeSpeaker) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return nil
}

func (f *fakeSpeaker) Players(context.Context) ([]heos.Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hidePlayers {
		return nil, nil
	}
	return []heos.Player{{Name: "Speaker", PID: "77", IP: f.address}}, nil
}

func (f *fakeSpeaker) setHidePlayers(hide bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hidePlayers = hide
}

func (f *fakeSpeaker) PlayState(context.Context, string) (string, error) {
	return heos.StatePlay, nil
}

func (f *fakeSpeaker) Volume(context.Context, string) (int, error) { return 40, nil }

func (f *fakeSpeaker) Mute(context.Context, string) (string, error) { return heos.MuteOff, nil }

func (f *fakeSpeaker) PlayMode(context.Context, string) (heos.PlayMode, error) {
	return heos.PlayMode{Repeat: heos.RepeatOff, Shuffle: heos.ShuffleOff}, nil
}

func (f *fakeSpeaker) NowPlayingMedia(context.Context, string) (heos.Media, error) {
	return heos.Media{Song: "Blue in Green", Artist: "Miles Davis", Album: "Kind of Blue", ImageURL: "https://cdn/kob.jpg"}, nil
}

func (f *fakeSpeaker) SetPlayState(_ context.Context, pid, state string) error {
	f.record("SetPlayState %s %s", pid, state)
	return f.commandErr()
}

func (f *fakeSpeaker) SetPlayMode(_ context.Context, pid string, mode heos.PlayMode) error {
	f.record("SetPlayMode %s repeat=%s shuffle=%s", pid, mode.Repeat, mode.Shuffle)
	return f.commandErr()
}

func (f *fakeSpeaker) SetVolume(_ context.Context, pid string, level int) error {
	f.record("SetVolume %s %d", pid, level)
	return f.commandErr()
}

func (f *fakeSpeaker) SetMute(_ context.Context, pid string, mute bool) error {
	f.record("SetMute %s %t", pid, mute)
	return f.commandErr()
}

func (f *fakeSpeaker) VolumeUp(_ context.Context, pid string, step int) error {
	f.record("VolumeUp %s %d", pid, step)
	return f.commandErr()
}

func (f *fakeSpeaker) VolumeDown(_ context.Context, pid string, step int) error {
	f.record("VolumeDown %s %d", pid, step)
	return f.commandErr()
}

func (f *fakeSpeaker) PlayNext(_ context.Context, pid string) error {
	f.record("PlayNext %s", pid)
	return f.commandErr()
}

func (f *fakeSpeaker) PlayPrevious(_ context.Context, pid string) error {
	f.record("PlayPrevious %s", pid)
	return f.commandErr()
}

func (f *fakeSpeaker) PlayInput(_ context.Context, pid, input string) error {
	f.record("PlayInput %s %s", pid, input)
	return f.commandErr()
}

func (f *fakeSpeaker) Subscribe() chan heos.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan heos.Event, 16)
	f.subs = append(f.subs, ch)
	return ch
}

func (f *fakeSpeaker) Unsubscribe(ch chan heos.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, sub := range f.subs {
		if sub == ch {
			f.subs = slices.Delete(f.subs, i, i+1)
			close(ch)
			return
		}
	}
}

type speakerFactory struct {
	mu      sync.Mutex
	clients map[string]*fakeSpeaker
}

func (f *speakerFactory) build(address string) speaker.Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &fakeSpeaker{address: address}
	if f.clients == nil {
		f.clients = map[string]*fakeSpeaker{}
	}
	f.clients[address] = c
	return c
}

func (f *speakerFactory) at(address string) *fakeSpeaker {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[address]
}

type fakeScanner struct {
	results  chan discovery.Result
	searches atomic.Int32
}

func newFakeScanner() *fakeScanner {
	return &fakeScanner{results: make(chan discovery.Result, 8)}
}

func (s *fakeScanner) Run(ctx context.Context, out chan<- discovery.Result) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case res := <-s.results:
			select {
			case out <- res:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (s *fakeScanner) Search() {
	s.searches.Add(1)
}

type fakePublisher struct {
	mu        sync.Mutex
	state     map[string]map[string]any
	available map[string]bool
	cleared   []string
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{state: map[string]map[string]any{}, available: map[string]bool{}}
}

func (p *fakePublisher) PublishState(id string, state map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state[id] == nil {
		p.state[id] = map[string]any{}
	}
	maps.Copy(p.state[id], state)
}

func (p *fakePublisher) PublishAvailability(id string, available bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.available[id] = available
}

func (p *fakePublisher) ClearDevice(id string, _ []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.state, id)
	p.cleared = append(p.cleared, id)
}

func (p *fakePublisher) value(id, capability string) any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state[id][capability]
}

func (p *fakePublisher) isAvailable(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available[id]
}

func kitchen(address string) discovery.Result {
	return discovery.Result{
		Address: address,
		Descriptor: &discovery.Descriptor{
			Manufacturer: "Denon",
			FriendlyName: "ACT-Kitchen",
			UDN:          "uuid:kitchen-1",
			ModelName:    "HEOS 1",
			ModelNumber:  "DWSHS1",
		},
	}
}
