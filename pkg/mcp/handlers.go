package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/urmzd/heos-bridge/pkg/bridge"
	"github.com/urmzd/heos-bridge/pkg/speaker"
)

const defaultDiscoverySeconds = 60

func (s *Server) handleGetHealth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out := GetHealthOutput{
		Status:     "healthy",
		Controller: "connected",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	if !s.controller.IsConnected() {
		out.Status = "unhealthy"
		out.Controller = "disconnected"
	}

	if devices, err := s.controller.ListDevices(ctx); err == nil {
		out.Devices = len(devices)
		for _, d := range devices {
			if d.Available {
				out.Available++
			}
		}
	}

	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleListDevices(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	devices, err := s.controller.ListDevices(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list devices: %s", err)), nil
	}

	infos := make([]DeviceInfo, 0, len(devices))
	for i := range devices {
		info := DeviceToInfo(&devices[i])
		if state, err := s.controller.GetDeviceState(ctx, devices[i].ID); err == nil {
			info.State = state
		}
		infos = append(infos, info)
	}

	out := ListDevicesOutput{
		Devices: infos,
		Count:   len(infos),
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleGetDevice(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requiredString(request, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	d, err := s.controller.GetDevice(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("device not found: %s", err)), nil
	}

	info := DeviceToInfo(d)
	if state, err := s.controller.GetDeviceState(ctx, d.ID); err == nil {
		info.State = state
	}

	return mcp.NewToolResultText(formatJSON(GetDeviceOutput{Device: info})), nil
}

func (s *Server) handleRenameDevice(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requiredString(request, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	newName, err := requiredString(request, "new_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.controller.RenameDevice(ctx, id, newName); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to rename device: %s", err)), nil
	}

	out := ResultOutput{
		Success: true,
		Message: fmt.Sprintf("Speaker %q renamed to %q", id, newName),
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleRemoveDevice(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requiredString(request, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.controller.RemoveDevice(ctx, id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to remove device: %s", err)), nil
	}

	out := ResultOutput{
		Success: true,
		Message: fmt.Sprintf("Speaker %q unpaired", id),
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleListPairingCandidates(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	candidates, err := s.controller.PairingCandidates(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list pairing candidates: %s", err)), nil
	}

	out := PairingCandidatesOutput{
		Candidates: candidates,
		Count:      len(candidates),
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handlePairDevice(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requiredString(request, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, _ := request.GetArguments()["name"].(string)

	d, err := s.controller.PairDevice(ctx, id, name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to pair device: %s", err)), nil
	}

	return mcp.NewToolResultText(formatJSON(GetDeviceOutput{Device: DeviceToInfo(d)})), nil
}

func (s *Server) handleGetDeviceState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requiredString(request, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	state, err := s.controller.GetDeviceState(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get device state: %s", err)), nil
	}

	return mcp.NewToolResultText(formatJSON(StateOutput{DeviceID: id, State: state})), nil
}

func (s *Server) handleSetDeviceState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requiredString(request, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	args := request.GetArguments()

	// State can be passed as a nested "state" object or as flat args
	stateMap := map[string]any{}
	if stateRaw, ok := args["state"]; ok {
		if sm, ok := stateRaw.(map[string]any); ok {
			stateMap = sm
		}
	} else {
		for k, v := range args {
			if k != "id" {
				stateMap[k] = v
			}
		}
	}

	return s.setState(ctx, id, stateMap)
}

func (s *Server) handlePlay(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requiredString(request, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.setState(ctx, id, map[string]any{speaker.CapPlaying: true})
}

func (s *Server) handlePause(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requiredString(request, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.setState(ctx, id, map[string]any{speaker.CapPlaying: false})
}

func (s *Server) handleSkip(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requiredString(request, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	direction, _ := request.GetArguments()["direction"].(string)
	if direction == "" {
		direction = "next"
	}
	return s.setState(ctx, id, map[string]any{bridge.CapSkip: direction})
}

func (s *Server) handleSetVolume(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requiredString(request, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	percent, ok := request.GetArguments()["percent"].(float64)
	if !ok || percent < 0 || percent > 100 {
		return mcp.NewToolResultError(`parameter "percent" must be a number from 0 to 100`), nil
	}
	return s.setState(ctx, id, map[string]any{speaker.CapVolume: percent / 100})
}

func (s *Server) handleRunAction(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requiredString(request, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	action, err := requiredString(request, "action")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.controller.RunAction(ctx, id, action); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to run %s: %s", action, err)), nil
	}

	out := ResultOutput{
		Success: true,
		Message: fmt.Sprintf("Ran %s on %q", action, id),
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleStartDiscovery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	duration := defaultDiscoverySeconds
	if df, ok := request.GetArguments()["duration_seconds"].(float64); ok && df > 0 {
		duration = int(df)
	}

	if err := s.controller.PermitJoin(ctx, true, duration); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to start discovery: %s", err)), nil
	}

	out := StartDiscoveryOutput{
		Success:         true,
		Message:         fmt.Sprintf("Searching for speakers for %d seconds", duration),
		DurationSeconds: duration,
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleStopDiscovery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.controller.PermitJoin(ctx, false, 0); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to stop discovery: %s", err)), nil
	}

	out := ResultOutput{
		Success: true,
		Message: "Speaker search stopped",
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

// --- helpers ---

func (s *Server) setState(ctx context.Context, id string, req map[string]any) (*mcp.CallToolResult, error) {
	state, err := s.controller.SetDeviceState(ctx, id, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to set device state: %s", err)), nil
	}
	return mcp.NewToolResultText(formatJSON(StateOutput{DeviceID: id, State: state})), nil
}

func requiredString(request mcp.CallToolRequest, key string) (string, error) {
	args := request.GetArguments()
	v, ok := args[key]
	if !ok || v == nil {
		return "", fmt.Errorf("required parameter %q is missing", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("parameter %q must be a non-empty string", key)
	}
	return s, nil
}

func formatJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal response: %s"}`, err)
	}
	return string(b)
}
