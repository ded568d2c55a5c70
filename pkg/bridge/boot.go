package bridge

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/urmzd/heos-bridge/pkg/db"
	"github.com/urmzd/heos-bridge/pkg/discovery"
	"github.com/urmzd/heos-bridge/pkg/mqtt"
	"github.com/urmzd/heos-bridge/pkg/speaker"
)

// BootOptions overrides stored settings from the command line.
type BootOptions struct {
	MQTTBroker    string
	MQTTTopicBase string
}

// Boot builds and starts a Controller from the active profile. The returned
// shutdown func stops sessions and disconnects from the broker.
func Boot(ctx context.Context, database *db.DB, cfg *db.Config, opts BootOptions) (*Controller, func(), error) {
	registry := speaker.NewRegistry(
		speaker.HEOSClientFactory(),
		discovery.NewDescriptorFetcher(nil),
		speaker.WithManufacturers(cfg.Manufacturers()...),
	)
	scanner := discovery.NewScanner(discovery.WithInterval(cfg.DiscoveryInterval()))

	broker, base := cfg.MQTT()
	if opts.MQTTBroker != "" {
		broker = opts.MQTTBroker
	}
	if opts.MQTTTopicBase != "" {
		base = opts.MQTTTopicBase
	}

	bridgeCfg := Config{
		ProfileID:     cfg.ProfileID(),
		Store:         database.Speakers(),
		Registry:      registry,
		Scanner:       scanner,
		Artwork:       speaker.NewHTTPArtworkFetcher(nil),
		RetryInterval: cfg.RetryInterval(),
	}

	var bus *mqtt.Client
	if broker != "" {
		client, err := mqtt.Connect(ctx, broker, base)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to mqtt broker %s: %w", broker, err)
		}
		bus = client
		bridgeCfg.Publisher = client
		log.Info().Str("broker", broker).Str("topic_base", base).Msg("MQTT connected")
	}

	ctrl, err := New(bridgeCfg)
	if err != nil {
		if bus != nil {
			bus.Close()
		}
		return nil, nil, err
	}

	if err := ctrl.Start(ctx); err != nil {
		if bus != nil {
			bus.Close()
		}
		return nil, nil, fmt.Errorf("start bridge: %w", err)
	}

	if bus != nil {
		if err := bus.SubscribeCommands(ctrl.HandleCommand); err != nil {
			log.Warn().Err(err).Msg("Failed to subscribe to MQTT commands")
		}
	}

	shutdown := func() {
		ctrl.Close()
		if bus != nil {
			bus.Close()
		}
	}
	return ctrl, shutdown, nil
}
