package speaker

import (
	"math"
	"strconv"

	"github.com/urmzd/heos-bridge/pkg/heos"
)

// Capabilities is a partial set of capability writes. A nil value clears
// the capability.
type Capabilities map[string]any

var repeatFromServer = map[string]string{
	heos.RepeatOff: RepeatNone,
	heos.RepeatOne: RepeatTrack,
	heos.RepeatAll: RepeatPlaylist,
}

var repeatToServer = map[string]string{
	RepeatNone:     heos.RepeatOff,
	RepeatTrack:    heos.RepeatOne,
	RepeatPlaylist: heos.RepeatAll,
}

// ProjectPlayState maps a HEOS play state. Unknown states write nothing.
func ProjectPlayState(state string) Capabilities {
	switch state {
	case heos.StatePlay:
		return Capabilities{CapPlaying: true}
	case heos.StatePause, heos.StateStop:
		return Capabilities{CapPlaying: false}
	}
	return nil
}

// ProjectVolume maps the level and mute attributes of a volume payload.
// Either may be missing; only the attributes present are written.
func ProjectVolume(attrs map[string]string) Capabilities {
	out := Capabilities{}
	if level, ok := attrs["level"]; ok {
		if n, err := strconv.ParseFloat(level, 64); err == nil {
			out[CapVolume] = n / 100
		}
	}
	if mute, ok := attrs["mute"]; ok {
		out[CapMute] = mute == heos.MuteOn
	}
	return out
}

// ProjectShuffle maps "on" and "off". Other values write nothing.
func ProjectShuffle(shuffle string) Capabilities {
	switch shuffle {
	case heos.ShuffleOn:
		return Capabilities{CapShuffle: true}
	case heos.ShuffleOff:
		return Capabilities{CapShuffle: false}
	}
	return nil
}

// ProjectRepeat maps off, on_one and on_all to none, track and playlist.
// Other values write nothing.
func ProjectRepeat(repeat string) Capabilities {
	if v, ok := repeatFromServer[repeat]; ok {
		return Capabilities{CapRepeat: v}
	}
	return nil
}

// ProjectMedia writes track, artist and album. Empty strings clear them.
func ProjectMedia(media heos.Media) Capabilities {
	return Capabilities{
		CapTrack:  optional(media.Song),
		CapArtist: optional(media.Artist),
		CapAlbum:  optional(media.Album),
	}
}

// RepeatToServer converts a repeat capability value to the HEOS mode.
func RepeatToServer(repeat string) (string, bool) {
	v, ok := repeatToServer[repeat]
	return v, ok
}

// VolumeToLevel scales a 0.0-1.0 volume to the 0-100 HEOS level.
func VolumeToLevel(volume float64) int {
	level := int(math.Round(volume * 100))
	if level < 0 {
		return 0
	}
	if level > 100 {
		return 100
	}
	return level
}

func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}
