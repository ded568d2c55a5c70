// Package speaker mirrors HEOS speakers into hub devices. The Registry
// tracks the speakers found on the network; a Session keeps one paired
// speaker connected and projects its state into capability values.
package speaker

import (
	"context"
	"errors"

	"github.com/urmzd/heos-bridge/pkg/heos"
)

var (
	// ErrNotReady means the speaker answered but did not report a player
	// for this device yet.
	ErrNotReady = errors.New("speaker not yet ready")

	// ErrNotConnected is returned by commands issued before a player has
	// been resolved.
	ErrNotConnected = errors.New("speaker not connected")

	// ErrUnknownAction is returned for an action name not in Actions.
	ErrUnknownAction = errors.New("unknown action")
)

// Client is the protocol client a Session drives. *heos.Client satisfies
// it.
//
// Once Connect has succeeded the client must supervise its connection by
// itself: every loss is reported as heos.EventDisconnected or
// heos.EventWatchdogError, and heos.EventReconnected follows once the link
// is back. Sessions never redial a client that connected successfully.
type Client interface {
	Address() string
	SetAddress(address string)

	Connect(ctx context.Context) error
	Disconnect() error

	Players(ctx context.Context) ([]heos.Player, error)
	PlayState(ctx context.Context, pid string) (string, error)
	Volume(ctx context.Context, pid string) (int, error)
	Mute(ctx context.Context, pid string) (string, error)
	PlayMode(ctx context.Context, pid string) (heos.PlayMode, error)
	NowPlayingMedia(ctx context.Context, pid string) (heos.Media, error)

	SetPlayState(ctx context.Context, pid, state string) error
	SetPlayMode(ctx context.Context, pid string, mode heos.PlayMode) error
	SetVolume(ctx context.Context, pid string, level int) error
	SetMute(ctx context.Context, pid string, mute bool) error
	VolumeUp(ctx context.Context, pid string, step int) error
	VolumeDown(ctx context.Context, pid string, step int) error
	PlayNext(ctx context.Context, pid string) error
	PlayPrevious(ctx context.Context, pid string) error
	PlayInput(ctx context.Context, pid, input string) error

	Subscribe() chan heos.Event
	Unsubscribe(ch chan heos.Event)
}

// ClientFactory builds an unconnected client for a speaker address.
type ClientFactory func(address string) Client

// HEOSClientFactory returns a factory producing *heos.Client instances.
func HEOSClientFactory(opts ...heos.Option) ClientFactory {
	return func(address string) Client {
		return heos.NewClient(address, opts...)
	}
}
