package speaker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/urmzd/heos-bridge/pkg/heos"
)

// DefaultRetryInterval is the delay between failed connection attempts.
const DefaultRetryInterval = 5 * time.Second

// State is the lifecycle state of a Session.
type State string

// Session states.
const (
	StateUninitialized State = "uninitialized"
	StateConnecting    State = "connecting"
	StateResolving     State = "resolving"
	StateSubscribed    State = "subscribed"
	StateUnavailable   State = "unavailable"
	StateClosed        State = "closed"
)

// Resolver hands out the client of a speaker id. *Registry implements it.
type Resolver interface {
	ClientFor(ctx context.Context, id string) (Client, error)
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithRetryInterval overrides DefaultRetryInterval.
func WithRetryInterval(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.retryInterval = d
		}
	}
}

// WithArtworkFetcher overrides the HTTP artwork fetcher.
func WithArtworkFetcher(f ArtworkFetcher) SessionOption {
	return func(s *Session) { s.artwork = f }
}

// Session keeps one paired speaker connected and mirrors its state into a
// Host. Run drives the lifecycle; the command methods may be called from
// any goroutine.
type Session struct {
	id            string
	resolver      Resolver
	host          Host
	artwork       ArtworkFetcher
	retryInterval time.Duration
	logger        zerolog.Logger

	mu        sync.RWMutex
	state     State
	client    Client
	pid       string
	connected bool
	lastErr   error

	artMu  sync.Mutex
	artSeq uint64
}

// NewSession creates a session for the speaker with stable id.
func NewSession(id string, resolver Resolver, host Host, opts ...SessionOption) *Session {
	s := &Session{
		id:            id,
		resolver:      resolver,
		host:          host,
		artwork:       NewHTTPArtworkFetcher(nil),
		retryInterval: DefaultRetryInterval,
		logger:        log.With().Str("component", "session").Str("device", id).Logger(),
		state:         StateUninitialized,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the stable speaker id.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// PlayerID returns the resolved player id, or "" before resolution.
func (s *Session) PlayerID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pid
}

// LastError returns the error of the most recent failed attempt.
func (s *Session) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Run connects to the speaker and mirrors it until ctx is done. Failed
// attempts are retried every retry interval without limit.
func (s *Session) Run(ctx context.Context) error {
	s.host.SetUnavailable(ReasonLoading)

	for {
		client, events, err := s.establish(ctx)
		if err == nil {
			s.serve(ctx, client, events)
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		s.logger.Error().Err(err).Dur("retry_in", s.retryInterval).Msg("Failed to connect to speaker")
		s.mu.Lock()
		s.state = StateUnavailable
		s.lastErr = err
		s.mu.Unlock()
		s.host.SetUnavailable(err.Error())

		timer := time.NewTimer(s.retryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (s *Session) establish(ctx context.Context) (Client, chan heos.Event, error) {
	s.setState(StateConnecting)

	client, err := s.resolver.ClientFor(ctx, s.id)
	if err != nil {
		return nil, nil, err
	}
	s.mu.Lock()
	s.client = client
	s.mu.Unlock()

	s.logger.Info().Str("address", client.Address()).Msg("Found on network, connecting")
	if err := client.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("connect %s: %w", client.Address(), err)
	}

	// Subscribe before resolving so a connection lost in the meantime is
	// still seen by serve.
	events := client.Subscribe()

	s.mu.Lock()
	s.connected = true
	s.state = StateResolving
	s.mu.Unlock()

	players, err := client.Players(ctx)
	if err != nil {
		s.drop(client, events)
		return nil, nil, fmt.Errorf("list players: %w", err)
	}

	pid, err := ResolvePlayer(players, client.Address())
	if err != nil {
		s.drop(client, events)
		return nil, nil, err
	}

	s.mu.Lock()
	s.pid = pid
	s.state = StateSubscribed
	s.lastErr = nil
	s.mu.Unlock()

	s.logger.Info().Str("pid", pid).Msg("Connected to speaker")
	s.host.SetAvailable()
	_ = s.Sync(ctx)

	return client, events, nil
}

// drop disconnects a client whose player could not be resolved so the
// next attempt starts from a clean connection.
func (s *Session) drop(client Client, events chan heos.Event) {
	client.Unsubscribe(events)
	if err := client.Disconnect(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to disconnect unresolved speaker")
	}
}

func (s *Session) serve(ctx context.Context, client Client, events chan heos.Event) {
	defer client.Unsubscribe(events)

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			s.handleEvent(ctx, client, evt)
		}
	}
}

func (s *Session) handleEvent(ctx context.Context, client Client, evt heos.Event) {
	switch evt.Type {
	case heos.EventDisconnected, heos.EventWatchdogError:
		s.logger.Warn().Err(evt.Err).Str("event", string(evt.Type)).Msg("Speaker connection lost")
		s.setState(StateUnavailable)
		s.host.SetUnavailable(ReasonLoading)
		return
	case heos.EventReconnected:
		s.logger.Info().Msg("Speaker reconnected")
		s.setState(StateSubscribed)
		s.host.SetAvailable()
		_ = s.Sync(ctx)
		return
	}

	pid := s.PlayerID()
	if evt.PlayerID != pid {
		return
	}

	switch evt.Type {
	case heos.EventPlayerVolumeChanged:
		s.apply(ProjectVolume(evt.Attrs))
	case heos.EventPlayerStateChanged:
		state, _ := evt.Attr("state")
		s.apply(ProjectPlayState(state))
	case heos.EventRepeatModeChanged:
		repeat, _ := evt.Attr("repeat")
		s.apply(ProjectRepeat(repeat))
	case heos.EventShuffleModeChanged:
		shuffle, _ := evt.Attr("shuffle")
		s.apply(ProjectShuffle(shuffle))
	case heos.EventPlayerNowPlayingChanged:
		media, err := client.NowPlayingMedia(ctx, pid)
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to get now playing media")
			return
		}
		s.applyMedia(ctx, media)
	case heos.EventPlayerNowPlayingProgress:
		// progress is not mirrored
	}
}

// Sync pulls the full player state and projects every part on its own. A
// failed query is logged and leaves its capabilities untouched; the first
// such error is returned once all queries are done.
func (s *Session) Sync(ctx context.Context) error {
	client, pid, err := s.target()
	if err != nil {
		return err
	}

	var g errgroup.Group
	query := func(name string, fn func() error) {
		g.Go(func() error {
			if err := fn(); err != nil {
				s.logger.Error().Err(err).Str("query", name).Msg("Sync query failed")
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}

	query("now_playing_media", func() error {
		media, err := client.NowPlayingMedia(ctx, pid)
		if err != nil {
			return err
		}
		s.applyMedia(ctx, media)
		return nil
	})
	query("play_state", func() error {
		state, err := client.PlayState(ctx, pid)
		if err != nil {
			return err
		}
		s.apply(ProjectPlayState(state))
		return nil
	})
	query("volume", func() error {
		level, err := client.Volume(ctx, pid)
		if err != nil {
			return err
		}
		s.apply(ProjectVolume(map[string]string{"level": strconv.Itoa(level)}))
		return nil
	})
	query("mute", func() error {
		mute, err := client.Mute(ctx, pid)
		if err != nil {
			return err
		}
		s.apply(ProjectVolume(map[string]string{"mute": mute}))
		return nil
	})
	query("play_mode", func() error {
		mode, err := client.PlayMode(ctx, pid)
		if err != nil {
			return err
		}
		s.apply(ProjectShuffle(mode.Shuffle))
		s.apply(ProjectRepeat(mode.Repeat))
		return nil
	})

	return g.Wait()
}

func (s *Session) apply(caps Capabilities) {
	for name, value := range caps {
		s.host.SetCapability(name, value)
	}
}

func (s *Session) applyMedia(ctx context.Context, media heos.Media) {
	s.apply(ProjectMedia(media))

	ref := media.ImageURL
	seq := s.nextArtwork()
	switch {
	case ref == "":
		s.setArtwork(seq, Artwork{})
	case isDirectArtwork(ref):
		s.setArtwork(seq, Artwork{URL: ref})
	default:
		go func() {
			art, err := s.artwork.Fetch(ctx, ref)
			if err != nil {
				s.logger.Error().Err(err).Str("ref", ref).Msg("Failed to fetch artwork")
				return
			}
			s.setArtwork(seq, art)
		}()
	}
}

func (s *Session) nextArtwork() uint64 {
	s.artMu.Lock()
	defer s.artMu.Unlock()
	s.artSeq++
	return s.artSeq
}

// setArtwork reports art unless a later media change superseded seq.
func (s *Session) setArtwork(seq uint64, art Artwork) {
	s.artMu.Lock()
	defer s.artMu.Unlock()
	if seq != s.artSeq {
		return
	}
	s.host.SetArtwork(art)
}

// Close disconnects the speaker if a connection was ever made. Callers must
// stop Run first.
func (s *Session) Close() {
	s.mu.Lock()
	client, connected := s.client, s.connected
	s.state = StateClosed
	s.pid = ""
	s.mu.Unlock()

	if client == nil || !connected {
		return
	}
	if err := client.Disconnect(); err != nil {
		s.logger.Error().Err(err).Msg("Failed to disconnect speaker")
	}
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) target() (Client, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil || s.pid == "" {
		return nil, "", ErrNotConnected
	}
	return s.client, s.pid, nil
}

// ResolvePlayer picks the player of the speaker at address: the player
// reporting that address, or else the only player reporting no address at
// all. ErrNotReady is returned when neither rule yields exactly one player.
func ResolvePlayer(players []heos.Player, address string) (string, error) {
	if len(players) == 0 {
		return "", fmt.Errorf("%w: no players reported", ErrNotReady)
	}

	var unaddressed []heos.Player
	for _, p := range players {
		if p.IP == address && address != "" {
			return playerID(p)
		}
		if p.IP == "" {
			unaddressed = append(unaddressed, p)
		}
	}

	switch len(unaddressed) {
	case 0:
		return "", fmt.Errorf("%w: no player at %s", ErrNotReady, address)
	case 1:
		return playerID(unaddressed[0])
	default:
		return "", fmt.Errorf("%w: no player at %s and %d players without address", ErrNotReady, address, len(unaddressed))
	}
}

func playerID(p heos.Player) (string, error) {
	if id := p.ID(); id != "" {
		return id, nil
	}
	return "", errors.New("missing player id")
}
