package schema

import "encoding/json"

// SpeakerSet is the schema of a settable speaker state payload. Read-only
// capabilities (track, artist, album, album_art) are rejected.
var SpeakerSet = json.RawMessage(`{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"speaker_playing": {"type": "boolean"},
		"speaker_shuffle": {"type": "boolean"},
		"speaker_repeat": {"type": "string", "enum": ["none", "track", "playlist"]},
		"speaker_skip": {"type": "string", "enum": ["next", "previous"]},
		"volume_set": {"type": "number", "minimum": 0, "maximum": 1},
		"volume_mute": {"type": "boolean"}
	},
	"additionalProperties": false,
	"minProperties": 1
}`)
