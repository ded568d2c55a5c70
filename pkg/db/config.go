package db

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrNoActiveProfile = errors.New("no active profile found")

// Config is the runtime configuration of the active profile.
type Config struct {
	Profile   *Profile
	APIServer *APIServer
	Settings  *Settings
}

// APIAddress returns the API server listen address.
func (c *Config) APIAddress() string {
	if c.APIServer == nil {
		return "0.0.0.0:8080"
	}
	return c.APIServer.Address()
}

// Timezone returns the profile timezone.
func (c *Config) Timezone() string {
	if c.Profile == nil {
		return "UTC"
	}
	return c.Profile.Timezone
}

// ProfileID returns the active profile id, 0 if none.
func (c *Config) ProfileID() int64 {
	if c.Profile == nil {
		return 0
	}
	return c.Profile.ID
}

func (c *Config) settings() *Settings {
	if c.Settings == nil {
		return DefaultSettings(c.ProfileID())
	}
	return c.Settings
}

// RetryInterval is the delay between session connection attempts.
func (c *Config) RetryInterval() time.Duration {
	return c.settings().RetryInterval
}

// DiscoveryInterval is the period of the background SSDP search.
func (c *Config) DiscoveryInterval() time.Duration {
	return c.settings().DiscoveryInterval
}

// Manufacturers lists the descriptor manufacturers accepted by the registry.
func (c *Config) Manufacturers() []string {
	return c.settings().Manufacturers
}

// MQTT returns the broker URL (empty when MQTT is disabled) and topic base.
func (c *Config) MQTT() (broker, topicBase string) {
	s := c.settings()
	return s.MQTTBroker, s.MQTTTopicBase
}

// ActiveConfig loads the configuration of the active profile.
func (db *DB) ActiveConfig(ctx context.Context) (*Config, error) {
	profile, err := db.Profiles().GetActive(ctx)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil, ErrNoActiveProfile
		}
		return nil, fmt.Errorf("failed to get active profile: %w", err)
	}

	config := &Config{Profile: profile}

	apiServer, err := db.APIServers().Get(ctx, profile.ID)
	if err != nil && !errors.Is(err, ErrAPIServerNotFound) {
		return nil, fmt.Errorf("failed to get API server config: %w", err)
	}
	config.APIServer = apiServer

	settings, err := db.Settings().Get(ctx, profile.ID)
	if err != nil && !errors.Is(err, ErrSettingsNotFound) {
		return nil, fmt.Errorf("failed to get bridge settings: %w", err)
	}
	config.Settings = settings

	return config, nil
}
