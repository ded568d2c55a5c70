package heos

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// Players lists every player known to the speaker's HEOS system.
func (c *Client) Players(ctx context.Context) ([]Player, error) {
	resp, err := c.command(ctx, "player/get_players")
	if err != nil {
		return nil, err
	}

	var players []Player
	if err := json.Unmarshal(resp.Payload, &players); err != nil {
		return nil, fmt.Errorf("decode players: %w", err)
	}
	return players, nil
}

// PlayState returns "play", "pause" or "stop".
func (c *Client) PlayState(ctx context.Context, pid string) (string, error) {
	return c.attr(ctx, "player/get_play_state", pid, "state")
}

// Volume returns the player level on the 0-100 scale.
func (c *Client) Volume(ctx context.Context, pid string) (int, error) {
	level, err := c.attr(ctx, "player/get_volume", pid, "level")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(level)
	if err != nil {
		return 0, fmt.Errorf("parse volume level %q: %w", level, err)
	}
	return n, nil
}

// Mute returns "on" or "off".
func (c *Client) Mute(ctx context.Context, pid string) (string, error) {
	return c.attr(ctx, "player/get_mute", pid, "state")
}

// PlayMode returns the repeat and shuffle settings.
func (c *Client) PlayMode(ctx context.Context, pid string) (PlayMode, error) {
	resp, err := c.command(ctx, "player/get_play_mode", param{"pid", pid})
	if err != nil {
		return PlayMode{}, err
	}
	attrs := resp.attrs()
	return PlayMode{Repeat: attrs["repeat"], Shuffle: attrs["shuffle"]}, nil
}

// NowPlayingMedia returns the media currently playing on the player.
func (c *Client) NowPlayingMedia(ctx context.Context, pid string) (Media, error) {
	resp, err := c.command(ctx, "player/get_now_playing_media", param{"pid", pid})
	if err != nil {
		return Media{}, err
	}

	var media Media
	if len(resp.Payload) == 0 {
		return media, nil
	}
	if err := json.Unmarshal(resp.Payload, &media); err != nil {
		return Media{}, fmt.Errorf("decode now playing media: %w", err)
	}
	return media, nil
}

// SetPlayState sets "play", "pause" or "stop".
func (c *Client) SetPlayState(ctx context.Context, pid, state string) error {
	_, err := c.command(ctx, "player/set_play_state", param{"pid", pid}, param{"state", state})
	return err
}

// SetPlayMode changes repeat and/or shuffle. Empty fields are not sent.
func (c *Client) SetPlayMode(ctx context.Context, pid string, mode PlayMode) error {
	params := []param{{"pid", pid}}
	if mode.Repeat != "" {
		params = append(params, param{"repeat", mode.Repeat})
	}
	if mode.Shuffle != "" {
		params = append(params, param{"shuffle", mode.Shuffle})
	}
	_, err := c.command(ctx, "player/set_play_mode", params...)
	return err
}

// SetVolume sets the level, clamped to 0-100.
func (c *Client) SetVolume(ctx context.Context, pid string, level int) error {
	level = clamp(level, 0, maxVolume)
	_, err := c.command(ctx, "player/set_volume", param{"pid", pid}, param{"level", strconv.Itoa(level)})
	return err
}

// SetMute mutes or unmutes the player.
func (c *Client) SetMute(ctx context.Context, pid string, mute bool) error {
	state := MuteOff
	if mute {
		state = MuteOn
	}
	_, err := c.command(ctx, "player/set_mute", param{"pid", pid}, param{"state", state})
	return err
}

// VolumeUp raises the level by step (1-10).
func (c *Client) VolumeUp(ctx context.Context, pid string, step int) error {
	_, err := c.command(ctx, "player/volume_up", param{"pid", pid}, param{"step", strconv.Itoa(clamp(step, 1, maxVolumeStep))})
	return err
}

// VolumeDown lowers the level by step (1-10).
func (c *Client) VolumeDown(ctx context.Context, pid string, step int) error {
	_, err := c.command(ctx, "player/volume_down", param{"pid", pid}, param{"step", strconv.Itoa(clamp(step, 1, maxVolumeStep))})
	return err
}

// PlayNext skips to the next track.
func (c *Client) PlayNext(ctx context.Context, pid string) error {
	_, err := c.command(ctx, "player/play_next", param{"pid", pid})
	return err
}

// PlayPrevious skips to the previous track.
func (c *Client) PlayPrevious(ctx context.Context, pid string) error {
	_, err := c.command(ctx, "player/play_previous", param{"pid", pid})
	return err
}

// PlayInput switches the player to a physical input such as InputAuxIn1.
func (c *Client) PlayInput(ctx context.Context, pid, input string) error {
	_, err := c.command(ctx, "browse/play_input", param{"pid", pid}, param{"input", input})
	return err
}

func (c *Client) attr(ctx context.Context, command, pid, key string) (string, error) {
	resp, err := c.command(ctx, command, param{"pid", pid})
	if err != nil {
		return "", err
	}
	value, ok := resp.attrs()[key]
	if !ok {
		return "", fmt.Errorf("%s: reply has no %q", command, key)
	}
	return value, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
