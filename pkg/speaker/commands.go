package speaker

import (
	"context"
	"fmt"
	"sort"

	"github.com/urmzd/heos-bridge/pkg/heos"
)

// DefaultVolumeStep is the step used by the volume_up and volume_down
// actions.
const DefaultVolumeStep = 5

// SetPlaying plays or pauses.
func (s *Session) SetPlaying(ctx context.Context, playing bool) error {
	client, pid, err := s.target()
	if err != nil {
		return err
	}
	state := heos.StatePause
	if playing {
		state = heos.StatePlay
	}
	return client.SetPlayState(ctx, pid, state)
}

// SkipPrevious goes to the previous track.
func (s *Session) SkipPrevious(ctx context.Context) error {
	client, pid, err := s.target()
	if err != nil {
		return err
	}
	return client.PlayPrevious(ctx, pid)
}

// SkipNext goes to the next track.
func (s *Session) SkipNext(ctx context.Context) error {
	client, pid, err := s.target()
	if err != nil {
		return err
	}
	return client.PlayNext(ctx, pid)
}

// SetShuffle turns shuffle on or off.
func (s *Session) SetShuffle(ctx context.Context, shuffle bool) error {
	client, pid, err := s.target()
	if err != nil {
		return err
	}
	mode := heos.PlayMode{Shuffle: heos.ShuffleOff}
	if shuffle {
		mode.Shuffle = heos.ShuffleOn
	}
	return client.SetPlayMode(ctx, pid, mode)
}

// SetRepeat sets none, track or playlist. Any other value is ignored.
func (s *Session) SetRepeat(ctx context.Context, repeat string) error {
	client, pid, err := s.target()
	if err != nil {
		return err
	}
	mode, ok := RepeatToServer(repeat)
	if !ok {
		return nil
	}
	return client.SetPlayMode(ctx, pid, heos.PlayMode{Repeat: mode})
}

// SetVolume sets the volume on the 0.0-1.0 scale.
func (s *Session) SetVolume(ctx context.Context, volume float64) error {
	client, pid, err := s.target()
	if err != nil {
		return err
	}
	return client.SetVolume(ctx, pid, VolumeToLevel(volume))
}

// SetMute mutes or unmutes.
func (s *Session) SetMute(ctx context.Context, mute bool) error {
	client, pid, err := s.target()
	if err != nil {
		return err
	}
	return client.SetMute(ctx, pid, mute)
}

// VolumeUp raises the volume by step on the 0-100 scale.
func (s *Session) VolumeUp(ctx context.Context, step int) error {
	client, pid, err := s.target()
	if err != nil {
		return err
	}
	return client.VolumeUp(ctx, pid, step)
}

// VolumeDown lowers the volume by step on the 0-100 scale.
func (s *Session) VolumeDown(ctx context.Context, step int) error {
	client, pid, err := s.target()
	if err != nil {
		return err
	}
	return client.VolumeDown(ctx, pid, step)
}

// PlayInput switches to a physical input such as heos.InputAuxIn1.
func (s *Session) PlayInput(ctx context.Context, input string) error {
	client, pid, err := s.target()
	if err != nil {
		return err
	}
	return client.PlayInput(ctx, pid, input)
}

// PlayAuxIn switches to the first auxiliary input.
func (s *Session) PlayAuxIn(ctx context.Context) error {
	return s.PlayInput(ctx, heos.InputAuxIn1)
}

// Action is a named flow action.
type Action func(ctx context.Context, s *Session) error

func playInput(input string) Action {
	return func(ctx context.Context, s *Session) error {
		return s.PlayInput(ctx, input)
	}
}

// Actions are the flow actions a speaker supports, by name.
var Actions = map[string]Action{
	"play_aux_in":     func(ctx context.Context, s *Session) error { return s.PlayAuxIn(ctx) },
	"play_hdmi_1":     playInput(heos.InputHDMIIn(1)),
	"play_hdmi_2":     playInput(heos.InputHDMIIn(2)),
	"play_hdmi_3":     playInput(heos.InputHDMIIn(3)),
	"play_hdmi_4":     playInput(heos.InputHDMIIn(4)),
	"play_hdmi_arc_1": playInput(heos.InputHDMIArc1),
	"volume_up":       func(ctx context.Context, s *Session) error { return s.VolumeUp(ctx, DefaultVolumeStep) },
	"volume_down":     func(ctx context.Context, s *Session) error { return s.VolumeDown(ctx, DefaultVolumeStep) },
}

// ActionNames returns the sorted names of Actions.
func ActionNames() []string {
	names := make([]string, 0, len(Actions))
	for name := range Actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunAction runs the named flow action.
func (s *Session) RunAction(ctx context.Context, name string) error {
	action, ok := Actions[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}
	return action(ctx, s)
}
