package mcp

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/urmzd/heos-bridge/pkg/speaker"
)

func idParam() mcp.ToolOption {
	return mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Speaker id (derived from its UPnP UDN)"),
	)
}

// registerTools registers all MCP tools with the server
func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool("get_health",
			mcp.WithDescription("Check whether the bridge is running and how many paired speakers are reachable"),
		),
		s.handleGetHealth,
	)

	// Devices
	s.mcpServer.AddTool(
		mcp.NewTool("list_devices",
			mcp.WithDescription("List all paired speakers with their availability and current state"),
		),
		s.handleListDevices,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("get_device",
			mcp.WithDescription("Get detailed information about a paired speaker"),
			idParam(),
		),
		s.handleGetDevice,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("rename_device",
			mcp.WithDescription("Change a paired speaker's name"),
			idParam(),
			mcp.WithString("new_name",
				mcp.Required(),
				mcp.Description("New name for the speaker"),
			),
		),
		s.handleRenameDevice,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("remove_device",
			mcp.WithDescription("Unpair a speaker. It stays available as a pairing candidate."),
			idParam(),
		),
		s.handleRemoveDevice,
	)

	// Pairing
	s.mcpServer.AddTool(
		mcp.NewTool("list_pairing_candidates",
			mcp.WithDescription("List speakers discovered on the network, including ones already paired"),
		),
		s.handleListPairingCandidates,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("pair_device",
			mcp.WithDescription("Pair a discovered speaker so the bridge starts mirroring it"),
			idParam(),
			mcp.WithString("name",
				mcp.Description("Name for the speaker (defaults to the name it advertises)"),
			),
		),
		s.handlePairDevice,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("start_discovery",
			mcp.WithDescription("Actively search for speakers for a while"),
			mcp.WithNumber("duration_seconds",
				mcp.Description("How long to keep searching in seconds (default 60)"),
			),
		),
		s.handleStartDiscovery,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("stop_discovery",
			mcp.WithDescription("Stop the active search"),
		),
		s.handleStopDiscovery,
	)

	// State
	s.mcpServer.AddTool(
		mcp.NewTool("get_device_state",
			mcp.WithDescription("Get the playback state of a speaker (play state, track, volume, mute, shuffle, repeat)"),
			idParam(),
		),
		s.handleGetDeviceState,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("set_device_state",
			mcp.WithDescription("Set speaker capabilities. Properties are validated against the speaker's state schema."),
			idParam(),
			mcp.WithObject("state",
				mcp.Required(),
				mcp.Description("Capabilities to set (e.g. {\"speaker_playing\": true, \"volume_set\": 0.4})"),
			),
		),
		s.handleSetDeviceState,
	)

	// Playback shortcuts
	s.mcpServer.AddTool(
		mcp.NewTool("play",
			mcp.WithDescription("Resume playback"),
			idParam(),
		),
		s.handlePlay,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("pause",
			mcp.WithDescription("Pause playback"),
			idParam(),
		),
		s.handlePause,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("skip",
			mcp.WithDescription("Skip to the next or previous track"),
			idParam(),
			mcp.WithString("direction",
				mcp.Description("next or previous (default next)"),
				mcp.Enum("next", "previous"),
			),
		),
		s.handleSkip,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("set_volume",
			mcp.WithDescription("Set the volume as a percentage"),
			idParam(),
			mcp.WithNumber("percent",
				mcp.Required(),
				mcp.Description("Volume from 0 to 100"),
				mcp.Min(0),
				mcp.Max(100),
			),
		),
		s.handleSetVolume,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("run_action",
			mcp.WithDescription("Run a one-shot speaker action: "+strings.Join(speaker.ActionNames(), ", ")),
			idParam(),
			mcp.WithString("action",
				mcp.Required(),
				mcp.Description("Action name"),
				mcp.Enum(speaker.ActionNames()...),
			),
		),
		s.handleRunAction,
	)
}
