package speaker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urmzd/heos-bridge/pkg/discovery"
	"github.com/urmzd/heos-bridge/pkg/heos"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type sessionFixture struct {
	session *Session
	host    *recordingHost
	client  *fakeClient
	artwork *fakeArtwork
}

func startSession(t *testing.T, client *fakeClient, resolver Resolver, opts ...SessionOption) *sessionFixture {
	t.Helper()

	f := &sessionFixture{host: newRecordingHost(), client: client, artwork: &fakeArtwork{}}
	opts = append([]SessionOption{
		WithRetryInterval(10 * time.Millisecond),
		WithArtworkFetcher(f.artwork),
	}, opts...)
	f.session = NewSession("speaker-1", resolver, f.host, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = f.session.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return f
}

func (f *sessionFixture) waitForSync(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, name := range []string{CapPlaying, CapVolume, CapMute, CapShuffle, CapRepeat, CapTrack} {
			if _, ok := f.host.get(name); !ok {
				return false
			}
		}
		_, sets := f.host.art()
		return sets > 0
	}, waitFor, tick)
}

func TestResolvePlayer(t *testing.T) {
	players := []heos.Player{
		{PID: "123", IP: "10.0.0.5"},
		{PID: "456", IP: "10.0.0.9"},
	}

	pid, err := ResolvePlayer(players, "10.0.0.9")
	require.NoError(t, err)
	assert.Equal(t, "456", pid)

	_, err = ResolvePlayer(players, "10.0.0.7")
	assert.ErrorIs(t, err, ErrNotReady)

	_, err = ResolvePlayer(nil, "10.0.0.9")
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestResolvePlayer_AddresslessFallback(t *testing.T) {
	pid, err := ResolvePlayer([]heos.Player{
		{PID: "123", IP: "10.0.0.5"},
		{PID: "-789"},
	}, "10.0.0.9")
	require.NoError(t, err)
	assert.Equal(t, "-789", pid)

	_, err = ResolvePlayer([]heos.Player{
		{PID: "1"},
		{PID: "2"},
	}, "10.0.0.9")
	require.ErrorIs(t, err, ErrNotReady, "more than one address-less player is ambiguous")
	assert.Contains(t, err.Error(), "2 players without address")
}

func TestSession_ConnectsResolvesAndSyncs(t *testing.T) {
	client := newFakeClient("10.0.0.9")
	f := startSession(t, client, staticResolver{client})

	f.waitForSync(t)

	assert.Equal(t, StateSubscribed, f.session.State())
	assert.Equal(t, "456", f.session.PlayerID())
	assert.True(t, f.host.isAvailable())

	playing, _ := f.host.get(CapPlaying)
	assert.Equal(t, true, playing)
	volume, _ := f.host.get(CapVolume)
	assert.InDelta(t, 0.35, volume, 1e-9)
	mute, _ := f.host.get(CapMute)
	assert.Equal(t, false, mute)
	shuffle, _ := f.host.get(CapShuffle)
	assert.Equal(t, true, shuffle)
	repeat, _ := f.host.get(CapRepeat)
	assert.Equal(t, RepeatPlaylist, repeat)
	track, _ := f.host.get(CapTrack)
	assert.Equal(t, "Song", track)

	art, _ := f.host.art()
	assert.Equal(t, "https://cdn/art.jpg", art.URL)
	assert.Empty(t, f.artwork.fetched(), "https artwork is not downloaded")

	assert.True(t, client.has("PlayState 456"))
}

func TestSession_RetriesUntilConnectSucceeds(t *testing.T) {
	assert.Equal(t, 5*time.Second, DefaultRetryInterval)

	client := newFakeClient("10.0.0.9")
	client.connectErrs = []error{errFake, errFake, errFake}

	start := time.Now()
	f := startSession(t, client, staticResolver{client})
	f.waitForSync(t)
	elapsed := time.Since(start)

	// let any stray retry surface before counting
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, StateSubscribed, f.session.State())
	assert.Equal(t, 4, client.connectCount())
	assert.Equal(t, 1, client.count("PlayState"), "exactly one sync after the successful attempt")
	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond, "three retry intervals elapse")

	f.host.mu.Lock()
	reasons := append([]string(nil), f.host.reasons...)
	f.host.mu.Unlock()
	require.Len(t, reasons, 4)
	assert.Equal(t, ReasonLoading, reasons[0])
	assert.Contains(t, reasons[1], "fake failure")
}

func TestSession_UnresolvedPlayerIsRetried(t *testing.T) {
	client := newFakeClient("10.0.0.9")
	client.players = []heos.Player{{PID: "123", IP: "10.0.0.5"}}

	f := startSession(t, client, staticResolver{client})

	require.Eventually(t, func() bool {
		return client.connectCount() >= 2
	}, waitFor, tick)
	assert.ErrorIs(t, f.session.LastError(), ErrNotReady)
	assert.False(t, f.host.isAvailable())
	assert.GreaterOrEqual(t, client.disconnectCount(), 1, "half-open connection is dropped before retrying")
	assert.Zero(t, client.count("PlayState"), "no sync before a player is resolved")

	client.mu.Lock()
	client.players = append(client.players, heos.Player{PID: "456", IP: "10.0.0.9"})
	client.mu.Unlock()

	f.waitForSync(t)
	assert.Equal(t, "456", f.session.PlayerID())
	assert.NoError(t, f.session.LastError())
	assert.Equal(t, 1, client.subscriberCount(), "failed attempts release their subscription")
}

func TestSession_ConnectionLostWhileResolving(t *testing.T) {
	client := newFakeClient("10.0.0.9")
	var once sync.Once
	client.onPlayers = func() {
		once.Do(func() {
			client.emit(heos.Event{Type: heos.EventDisconnected, Err: errFake})
		})
	}

	f := startSession(t, client, staticResolver{client})

	require.Eventually(t, func() bool {
		return f.session.State() == StateUnavailable && !f.host.isAvailable()
	}, waitFor, tick)

	f.host.mu.Lock()
	reasons := append([]string(nil), f.host.reasons...)
	f.host.mu.Unlock()
	assert.Equal(t, []string{ReasonLoading, ReasonLoading}, reasons)

	client.emit(heos.Event{Type: heos.EventReconnected})
	require.Eventually(t, func() bool {
		return f.session.State() == StateSubscribed && f.host.isAvailable()
	}, waitFor, tick)
}

func TestSession_WaitsForDiscovery(t *testing.T) {
	client := newFakeClient("10.0.0.9")
	registry := NewRegistry(func(address string) Client {
		client.SetAddress(address)
		return client
	}, &fakeDescriptors{})

	f := startSession(t, client, registry)

	require.Eventually(t, func() bool {
		return f.session.State() == StateConnecting
	}, waitFor, tick)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, client.connectCount(), "no connect before discovery")

	_, created, err := registry.HandleDiscovery(context.Background(), discovery.Result{
		Address:    "10.0.0.9",
		Descriptor: &discovery.Descriptor{Manufacturer: "Denon", UDN: "uuid:speaker-1", FriendlyName: "ACT-Living Room"},
	})
	require.NoError(t, err)
	require.True(t, created)

	f.waitForSync(t)
	assert.Equal(t, "456", f.session.PlayerID())
}

func TestSession_DiscardsEventsForOtherPlayers(t *testing.T) {
	client := newFakeClient("10.0.0.9")
	f := startSession(t, client, staticResolver{client})
	f.waitForSync(t)

	before := f.host.writeCount()

	client.emit(heos.Event{Type: heos.EventPlayerStateChanged, PlayerID: "999", Attrs: map[string]string{"pid": "999", "state": "pause"}})
	client.emit(heos.Event{Type: heos.EventPlayerStateChanged, PlayerID: "456", Attrs: map[string]string{"pid": "456", "state": "pause"}})

	require.Eventually(t, func() bool {
		v, _ := f.host.get(CapPlaying)
		return v == false
	}, waitFor, tick)
	assert.Equal(t, before+1, f.host.writeCount(), "the event for player 999 wrote nothing")
}

func TestSession_VolumeEventsArePartial(t *testing.T) {
	client := newFakeClient("10.0.0.9")
	f := startSession(t, client, staticResolver{client})
	f.waitForSync(t)

	client.emit(heos.Event{Type: heos.EventPlayerVolumeChanged, PlayerID: "456", Attrs: map[string]string{"pid": "456", "mute": "on"}})
	require.Eventually(t, func() bool {
		v, _ := f.host.get(CapMute)
		return v == true
	}, waitFor, tick)
	volume, _ := f.host.get(CapVolume)
	assert.InDelta(t, 0.35, volume, 1e-9)

	client.emit(heos.Event{Type: heos.EventPlayerVolumeChanged, PlayerID: "456", Attrs: map[string]string{"pid": "456", "level": "80"}})
	require.Eventually(t, func() bool {
		v, _ := f.host.get(CapVolume)
		return v == 0.8
	}, waitFor, tick)
	mute, _ := f.host.get(CapMute)
	assert.Equal(t, true, mute)
}

func TestSession_PlayModeEvents(t *testing.T) {
	client := newFakeClient("10.0.0.9")
	f := startSession(t, client, staticResolver{client})
	f.waitForSync(t)

	client.emit(heos.Event{Type: heos.EventRepeatModeChanged, PlayerID: "456", Attrs: map[string]string{"repeat": "on_one"}})
	client.emit(heos.Event{Type: heos.EventShuffleModeChanged, PlayerID: "456", Attrs: map[string]string{"shuffle": "off"}})

	require.Eventually(t, func() bool {
		repeat, _ := f.host.get(CapRepeat)
		shuffle, _ := f.host.get(CapShuffle)
		return repeat == RepeatTrack && shuffle == false
	}, waitFor, tick)
}

func TestSession_NowPlayingArtwork(t *testing.T) {
	client := newFakeClient("10.0.0.9")
	f := startSession(t, client, staticResolver{client})
	f.waitForSync(t)

	client.setMedia(heos.Media{Song: "Local", ImageURL: "/local/art.jpg"})
	client.emit(heos.Event{Type: heos.EventPlayerNowPlayingChanged, PlayerID: "456"})

	require.Eventually(t, func() bool {
		art, _ := f.host.art()
		return string(art.Data) == "jpeg:/local/art.jpg"
	}, waitFor, tick)
	assert.Equal(t, []string{"/local/art.jpg"}, f.artwork.fetched())
	track, _ := f.host.get(CapTrack)
	assert.Equal(t, "Local", track)
	artist, ok := f.host.get(CapArtist)
	assert.True(t, ok)
	assert.Nil(t, artist, "empty fields are cleared")

	client.setMedia(heos.Media{})
	client.emit(heos.Event{Type: heos.EventPlayerNowPlayingChanged, PlayerID: "456"})
	require.Eventually(t, func() bool {
		art, _ := f.host.art()
		return art.IsZero()
	}, waitFor, tick)
}

func TestSession_ArtworkFetchFailureKeepsPreviousArt(t *testing.T) {
	client := newFakeClient("10.0.0.9")
	f := startSession(t, client, staticResolver{client})
	f.waitForSync(t)

	f.artwork.mu.Lock()
	f.artwork.err = errFake
	f.artwork.mu.Unlock()
	_, setsBefore := f.host.art()

	client.setMedia(heos.Media{Song: "Other", ImageURL: "http://10.0.0.9/art.jpg"})
	client.emit(heos.Event{Type: heos.EventPlayerNowPlayingChanged, PlayerID: "456"})

	require.Eventually(t, func() bool {
		return len(f.artwork.fetched()) == 1
	}, waitFor, tick)
	require.Eventually(t, func() bool {
		track, _ := f.host.get(CapTrack)
		return track == "Other"
	}, waitFor, tick)

	art, sets := f.host.art()
	assert.Equal(t, setsBefore, sets)
	assert.Equal(t, "https://cdn/art.jpg", art.URL)
}

func TestSession_SlowArtworkDoesNotBlockEvents(t *testing.T) {
	client := newFakeClient("10.0.0.9")
	f := startSession(t, client, staticResolver{client})
	f.waitForSync(t)

	gate := make(chan struct{})
	f.artwork.mu.Lock()
	f.artwork.gate = gate
	f.artwork.mu.Unlock()

	client.setMedia(heos.Media{Song: "Slow", ImageURL: "/slow/art.jpg"})
	client.emit(heos.Event{Type: heos.EventPlayerNowPlayingChanged, PlayerID: "456"})
	require.Eventually(t, func() bool {
		return len(f.artwork.fetched()) == 1
	}, waitFor, tick)

	client.setMedia(heos.Media{Song: "Fast", ImageURL: "https://cdn/fast.jpg"})
	client.emit(heos.Event{Type: heos.EventPlayerNowPlayingChanged, PlayerID: "456"})
	client.emit(heos.Event{Type: heos.EventPlayerVolumeChanged, PlayerID: "456", Attrs: map[string]string{"level": "80"}})

	require.Eventually(t, func() bool {
		art, _ := f.host.art()
		volume, _ := f.host.get(CapVolume)
		return art.URL == "https://cdn/fast.jpg" && volume == 0.8
	}, waitFor, tick)

	close(gate)
	time.Sleep(50 * time.Millisecond)

	art, _ := f.host.art()
	assert.Equal(t, "https://cdn/fast.jpg", art.URL, "a stale download does not overwrite newer artwork")
	assert.Empty(t, art.Data)
}

func TestSession_DisconnectAndReconnect(t *testing.T) {
	client := newFakeClient("10.0.0.9")
	f := startSession(t, client, staticResolver{client})
	f.waitForSync(t)
	require.Equal(t, 1, client.count("PlayState"))

	client.emit(heos.Event{Type: heos.EventDisconnected, Err: errFake})
	require.Eventually(t, func() bool {
		return f.session.State() == StateUnavailable && !f.host.isAvailable()
	}, waitFor, tick)
	assert.Equal(t, 1, client.connectCount(), "the session does not redial on its own")

	client.emit(heos.Event{Type: heos.EventReconnected})
	require.Eventually(t, func() bool {
		return client.count("PlayState") == 2 && client.count("PlayMode") == 2
	}, waitFor, tick)
	assert.Equal(t, StateSubscribed, f.session.State())
	assert.True(t, f.host.isAvailable())

	client.emit(heos.Event{Type: heos.EventWatchdogError, Err: errFake})
	require.Eventually(t, func() bool {
		return !f.host.isAvailable()
	}, waitFor, tick)
}

func TestSession_SyncQueryFailureIsIsolated(t *testing.T) {
	client := newFakeClient("10.0.0.9")
	client.queryErrs["Volume"] = errFake

	f := startSession(t, client, staticResolver{client})
	require.Eventually(t, func() bool {
		_, repeat := f.host.get(CapRepeat)
		_, mute := f.host.get(CapMute)
		_, playing := f.host.get(CapPlaying)
		return repeat && mute && playing
	}, waitFor, tick)

	_, ok := f.host.get(CapVolume)
	assert.False(t, ok)

	err := f.session.Sync(context.Background())
	assert.ErrorIs(t, err, errFake)
	assert.Contains(t, err.Error(), "volume")
}

func TestSession_CommandsBeforeConnect(t *testing.T) {
	s := NewSession("speaker-1", staticResolver{newFakeClient("10.0.0.9")}, newRecordingHost())

	assert.ErrorIs(t, s.SetPlaying(context.Background(), true), ErrNotConnected)
	assert.ErrorIs(t, s.Sync(context.Background()), ErrNotConnected)
	assert.ErrorIs(t, s.RunAction(context.Background(), "play_aux_in"), ErrNotConnected)
	assert.Equal(t, StateUninitialized, s.State())
}

func TestSession_Commands(t *testing.T) {
	client := newFakeClient("10.0.0.9")
	f := startSession(t, client, staticResolver{client})
	f.waitForSync(t)
	ctx := context.Background()
	s := f.session

	require.NoError(t, s.SetPlaying(ctx, true))
	require.NoError(t, s.SetPlaying(ctx, false))
	require.NoError(t, s.SkipNext(ctx))
	require.NoError(t, s.SkipPrevious(ctx))
	require.NoError(t, s.SetShuffle(ctx, true))
	require.NoError(t, s.SetRepeat(ctx, RepeatTrack))
	require.NoError(t, s.SetVolume(ctx, 0.37))
	require.NoError(t, s.SetMute(ctx, true))

	assert.True(t, client.has("SetPlayState 456 play"))
	assert.True(t, client.has("SetPlayState 456 pause"))
	assert.True(t, client.has("PlayNext 456"))
	assert.True(t, client.has("PlayPrevious 456"))
	assert.True(t, client.has("SetPlayMode 456 repeat= shuffle=on"))
	assert.True(t, client.has("SetPlayMode 456 repeat=on_one shuffle="))
	assert.True(t, client.has("SetVolume 456 37"))
	assert.True(t, client.has("SetMute 456 true"))

	before := client.count("SetPlayMode")
	require.NoError(t, s.SetRepeat(ctx, "shuffle-all"))
	assert.Equal(t, before, client.count("SetPlayMode"), "unknown repeat values are ignored")

	client.mu.Lock()
	client.queryErrs["SetMute"] = errFake
	client.mu.Unlock()
	assert.ErrorIs(t, s.SetMute(ctx, false), errFake)
}

func TestSession_Actions(t *testing.T) {
	client := newFakeClient("10.0.0.9")
	f := startSession(t, client, staticResolver{client})
	f.waitForSync(t)
	ctx := context.Background()

	for _, name := range ActionNames() {
		require.NoError(t, f.session.RunAction(ctx, name), name)
	}

	assert.True(t, client.has("PlayInput 456 inputs/aux_in_1"))
	assert.True(t, client.has("PlayInput 456 inputs/hdmi_in_1"))
	assert.True(t, client.has("PlayInput 456 inputs/hdmi_in_4"))
	assert.True(t, client.has("PlayInput 456 inputs/hdmi_arc_1"))
	assert.True(t, client.has("VolumeUp 456 5"))
	assert.True(t, client.has("VolumeDown 456 5"))

	assert.ErrorIs(t, f.session.RunAction(ctx, "eject"), ErrUnknownAction)
}

func TestSession_Close(t *testing.T) {
	never := NewSession("speaker-1", staticResolver{newFakeClient("10.0.0.9")}, newRecordingHost())
	never.Close()
	assert.Equal(t, StateClosed, never.State())

	client := newFakeClient("10.0.0.9")
	host := newRecordingHost()
	s := NewSession("speaker-1", staticResolver{client}, host, WithArtworkFetcher(&fakeArtwork{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	require.Eventually(t, func() bool { return s.State() == StateSubscribed }, waitFor, tick)

	cancel()
	<-done
	s.Close()

	assert.Equal(t, 1, client.disconnectCount())
	assert.Equal(t, StateClosed, s.State())
	assert.ErrorIs(t, s.SkipNext(context.Background()), ErrNotConnected)
}
