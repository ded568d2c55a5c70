package speaker

// Capability names as exposed to the hub.
const (
	CapPlaying = "speaker_playing"
	CapTrack   = "speaker_track"
	CapArtist  = "speaker_artist"
	CapAlbum   = "speaker_album"
	CapArtwork = "album_art"
	CapVolume  = "volume_set"
	CapMute    = "volume_mute"
	CapShuffle = "speaker_shuffle"
	CapRepeat  = "speaker_repeat"
)

// Repeat capability values.
const (
	RepeatNone     = "none"
	RepeatTrack    = "track"
	RepeatPlaylist = "playlist"
)

// ReasonLoading is the unavailability reason shown while a session is
// connecting or waiting for the client to reconnect.
const ReasonLoading = "loading"

// Artwork is the album art of the current media. Exactly one of URL and
// Data is set; the zero value clears the artwork.
type Artwork struct {
	URL         string `json:"url,omitempty"`
	Data        []byte `json:"-"`
	ContentType string `json:"content_type,omitempty"`
}

// IsZero reports whether the artwork is cleared.
func (a Artwork) IsZero() bool {
	return a.URL == "" && len(a.Data) == 0
}

// Host is the hub side of a device. A Session reports availability and
// capability values through it and never holds any other hub state.
type Host interface {
	SetAvailable()
	SetUnavailable(reason string)
	SetCapability(name string, value any)
	SetArtwork(art Artwork)
}
