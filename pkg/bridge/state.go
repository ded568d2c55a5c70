package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/urmzd/heos-bridge/pkg/device"
	"github.com/urmzd/heos-bridge/pkg/device/schema"
	"github.com/urmzd/heos-bridge/pkg/speaker"
)

const commandTimeout = 10 * time.Second

// CapSkip is a write-only capability: "next" or "previous".
const CapSkip = "speaker_skip"

// writeOrder fixes the order in which a multi-field payload is applied.
var writeOrder = []string{
	speaker.CapPlaying,
	CapSkip,
	speaker.CapShuffle,
	speaker.CapRepeat,
	speaker.CapMute,
	speaker.CapVolume,
}

// SetDeviceState validates state against the speaker schema and issues one
// speaker command per field. It stops at the first failing command. The
// returned state reflects what the speaker has reported so far; writes show
// up once the speaker confirms them with a change event.
func (c *Controller) SetDeviceState(ctx context.Context, id string, state map[string]any) (device.DeviceState, error) {
	pd, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	if err := c.validator.Validate(schema.SpeakerSet, state); err != nil {
		return nil, fmt.Errorf("%w: %v", device.ErrValidation, err)
	}

	for _, name := range writeOrder {
		value, ok := state[name]
		if !ok {
			continue
		}
		if err := applyWrite(ctx, pd.session, name, value); err != nil {
			return nil, fmt.Errorf("set %s: %w", name, translate(err))
		}
	}
	return pd.host.Snapshot(), nil
}

func applyWrite(ctx context.Context, s *speaker.Session, name string, value any) error {
	switch name {
	case speaker.CapPlaying:
		return s.SetPlaying(ctx, value.(bool))
	case CapSkip:
		if value.(string) == "previous" {
			return s.SkipPrevious(ctx)
		}
		return s.SkipNext(ctx)
	case speaker.CapShuffle:
		return s.SetShuffle(ctx, value.(bool))
	case speaker.CapRepeat:
		return s.SetRepeat(ctx, value.(string))
	case speaker.CapMute:
		return s.SetMute(ctx, value.(bool))
	case speaker.CapVolume:
		return s.SetVolume(ctx, toFloat(value))
	}
	return nil
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

// HandleCommand applies a single capability write received from MQTT.
func (c *Controller) HandleCommand(deviceID, capability string, value any) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if _, err := c.SetDeviceState(ctx, deviceID, map[string]any{capability: value}); err != nil {
		c.logger.Warn().Err(err).
			Str("device", deviceID).
			Str("capability", capability).
			Msg("Rejected speaker command")
	}
}
