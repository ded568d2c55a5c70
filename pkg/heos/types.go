package heos

import (
	"encoding/json"
	"strconv"
)

// Player is an entry of the player/get_players payload.
type Player struct {
	Name    string      `json:"name"`
	PID     json.Number `json:"pid"`
	GID     json.Number `json:"gid,omitempty"`
	Model   string      `json:"model"`
	Version string      `json:"version"`
	IP      string      `json:"ip,omitempty"`
	Network string      `json:"network,omitempty"`
	LineOut int         `json:"lineout,omitempty"`
	Serial  string      `json:"serial,omitempty"`
}

// ID returns the player id in the string form events carry it in.
func (p Player) ID() string {
	return p.PID.String()
}

// Media is the player/get_now_playing_media payload.
type Media struct {
	Type     string      `json:"type"`
	Song     string      `json:"song"`
	Album    string      `json:"album"`
	Artist   string      `json:"artist"`
	ImageURL string      `json:"image_url"`
	AlbumID  string      `json:"album_id,omitempty"`
	MediaID  string      `json:"mid,omitempty"`
	QueueID  json.Number `json:"qid,omitempty"`
	SourceID json.Number `json:"sid,omitempty"`
	Station  string      `json:"station,omitempty"`
}

// PlayMode carries the repeat and shuffle settings of a player. Empty
// fields are left untouched by SetPlayMode.
type PlayMode struct {
	Repeat  string
	Shuffle string
}

// Play states.
const (
	StatePlay  = "play"
	StatePause = "pause"
	StateStop  = "stop"
)

// Repeat and shuffle modes.
const (
	RepeatOff  = "off"
	RepeatOne  = "on_one"
	RepeatAll  = "on_all"
	ShuffleOn  = "on"
	ShuffleOff = "off"
	MuteOn     = "on"
	MuteOff    = "off"
)

const (
	maxVolume     = 100
	maxVolumeStep = 10
)

// Input sources accepted by browse/play_input.
const (
	InputAuxIn1   = "inputs/aux_in_1"
	InputHDMIArc1 = "inputs/hdmi_arc_1"
)

// InputHDMIIn returns the source name of the n-th HDMI input.
func InputHDMIIn(n int) string {
	return "inputs/hdmi_in_" + strconv.Itoa(n)
}

// EventType names an event emitted on the client's event stream.
type EventType string

// Connection lifecycle events are produced by the client itself; the
// remaining types mirror the HEOS change events.
const (
	EventDisconnected             EventType = "disconnected"
	EventReconnected              EventType = "reconnected"
	EventWatchdogError            EventType = "watchdog_error"
	EventPlayerVolumeChanged      EventType = "player_volume_changed"
	EventPlayerStateChanged       EventType = "player_state_changed"
	EventPlayerNowPlayingChanged  EventType = "player_now_playing_changed"
	EventPlayerNowPlayingProgress EventType = "player_now_playing_progress"
	EventRepeatModeChanged        EventType = "repeat_mode_changed"
	EventShuffleModeChanged       EventType = "shuffle_mode_changed"
	EventPlayersChanged           EventType = "players_changed"
	EventGroupsChanged            EventType = "groups_changed"
)

// Event is a single notification from the speaker or from the client's
// connection supervisor.
type Event struct {
	Type     EventType
	PlayerID string
	Attrs    map[string]string
	Err      error
}

// Attr returns a message attribute of the event.
func (e Event) Attr(key string) (string, bool) {
	v, ok := e.Attrs[key]
	return v, ok
}

// IsLifecycle reports whether the event describes the connection rather
// than a player.
func (e Event) IsLifecycle() bool {
	switch e.Type {
	case EventDisconnected, EventReconnected, EventWatchdogError:
		return true
	}
	return false
}
