package speaker

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/urmzd/heos-bridge/pkg/heos"
)

func TestProjectPlayState(t *testing.T) {
	tests := []struct {
		state string
		want  Capabilities
	}{
		{"play", Capabilities{CapPlaying: true}},
		{"pause", Capabilities{CapPlaying: false}},
		{"stop", Capabilities{CapPlaying: false}},
		{"buffering", nil},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			assert.Equal(t, tt.want, ProjectPlayState(tt.state))
		})
	}
}

func TestProjectVolume(t *testing.T) {
	assert.Equal(t, Capabilities{CapVolume: 0.2, CapMute: false}, ProjectVolume(map[string]string{"level": "20", "mute": "off"}))
	assert.Equal(t, Capabilities{CapVolume: 0.2}, ProjectVolume(map[string]string{"level": "20"}), "mute untouched")
	assert.Equal(t, Capabilities{CapMute: true}, ProjectVolume(map[string]string{"mute": "on"}), "level untouched")
	assert.Equal(t, Capabilities{CapMute: false}, ProjectVolume(map[string]string{"level": "loud", "mute": "maybe"}))
	assert.Empty(t, ProjectVolume(nil))
}

func TestVolumeRoundTrip(t *testing.T) {
	for _, v := range []float64{0, 0.01, 0.2, 0.37, 0.5, 0.99, 1} {
		level := VolumeToLevel(v)
		got := ProjectVolume(map[string]string{"level": strconv.Itoa(level)})
		assert.InDelta(t, v, got[CapVolume], 1e-9)
	}

	assert.Equal(t, 0, VolumeToLevel(-0.5))
	assert.Equal(t, 100, VolumeToLevel(1.7))
	assert.Equal(t, 29, VolumeToLevel(0.29), "rounded rather than truncated")
}

func TestProjectShuffle(t *testing.T) {
	assert.Equal(t, Capabilities{CapShuffle: true}, ProjectShuffle("on"))
	assert.Equal(t, Capabilities{CapShuffle: false}, ProjectShuffle("off"))
	assert.Nil(t, ProjectShuffle("random"))
}

func TestRepeatMapping(t *testing.T) {
	pairs := map[string]string{
		RepeatNone:     heos.RepeatOff,
		RepeatTrack:    heos.RepeatOne,
		RepeatPlaylist: heos.RepeatAll,
	}

	for capValue, server := range pairs {
		got, ok := RepeatToServer(capValue)
		assert.True(t, ok)
		assert.Equal(t, server, got)
		assert.Equal(t, Capabilities{CapRepeat: capValue}, ProjectRepeat(server))
	}

	assert.Nil(t, ProjectRepeat("on_some"))
	_, ok := RepeatToServer("all")
	assert.False(t, ok)
}

func TestProjectMedia(t *testing.T) {
	got := ProjectMedia(heos.Media{Song: "Song", Artist: "", Album: "Album"})

	assert.Equal(t, "Song", got[CapTrack])
	assert.Equal(t, "Album", got[CapAlbum])
	v, ok := got[CapArtist]
	assert.True(t, ok)
	assert.Nil(t, v)
}
