package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrSettingsNotFound = errors.New("bridge settings not found")

// Settings holds the bridge tunables of a profile.
type Settings struct {
	ProfileID         int64
	RetryInterval     time.Duration
	DiscoveryInterval time.Duration
	Manufacturers     []string
	MQTTBroker        string
	MQTTTopicBase     string
	UpdatedAt         time.Time
}

// DefaultSettings returns the values written on first run.
func DefaultSettings(profileID int64) *Settings {
	return &Settings{
		ProfileID:         profileID,
		RetryInterval:     5 * time.Second,
		DiscoveryInterval: time.Minute,
		Manufacturers:     []string{"Denon"},
		MQTTTopicBase:     "heos",
	}
}

// SettingsStore reads and writes bridge settings.
type SettingsStore interface {
	Get(ctx context.Context, profileID int64) (*Settings, error)
	Upsert(ctx context.Context, s *Settings) error
}

// Settings returns a SettingsStore for this database.
func (db *DB) Settings() SettingsStore {
	return &settingsStore{db: db}
}

type settingsStore struct {
	db *DB
}

func (s *settingsStore) Get(ctx context.Context, profileID int64) (*Settings, error) {
	st := &Settings{ProfileID: profileID}
	var retryMS, discoveryS int64
	var manufacturers, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT retry_interval_ms, discovery_interval_s, manufacturers, mqtt_broker, mqtt_topic_base, updated_at
		FROM bridge_settings WHERE profile_id = ?
	`, profileID).Scan(&retryMS, &discoveryS, &manufacturers, &st.MQTTBroker, &st.MQTTTopicBase, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSettingsNotFound
	}
	if err != nil {
		return nil, err
	}
	st.RetryInterval = time.Duration(retryMS) * time.Millisecond
	st.DiscoveryInterval = time.Duration(discoveryS) * time.Second
	st.Manufacturers = splitList(manufacturers)
	st.UpdatedAt = parseTime(updatedAt)
	return st, nil
}

func (s *settingsStore) Upsert(ctx context.Context, st *Settings) error {
	if st.RetryInterval <= 0 {
		return fmt.Errorf("retry interval must be positive, got %s", st.RetryInterval)
	}
	if st.DiscoveryInterval < time.Second {
		return fmt.Errorf("discovery interval must be at least 1s, got %s", st.DiscoveryInterval)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bridge_settings
			(profile_id, retry_interval_ms, discovery_interval_s, manufacturers, mqtt_broker, mqtt_topic_base)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(profile_id) DO UPDATE SET
			retry_interval_ms = excluded.retry_interval_ms,
			discovery_interval_s = excluded.discovery_interval_s,
			manufacturers = excluded.manufacturers,
			mqtt_broker = excluded.mqtt_broker,
			mqtt_topic_base = excluded.mqtt_topic_base,
			updated_at = datetime('now')
	`, st.ProfileID, st.RetryInterval.Milliseconds(), int64(st.DiscoveryInterval/time.Second),
		strings.Join(st.Manufacturers, ","), st.MQTTBroker, st.MQTTTopicBase)
	if err != nil {
		return fmt.Errorf("failed to store bridge settings: %w", err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
