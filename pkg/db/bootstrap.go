package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"
)

// Bootstrap creates the default profile, listener and bridge settings on
// first run. It is a no-op once any profile exists.
func (db *DB) Bootstrap(ctx context.Context) error {
	needs, err := db.NeedsBootstrap(ctx)
	if err != nil {
		return fmt.Errorf("failed to check profiles: %w", err)
	}
	if !needs {
		return nil
	}

	return db.Tx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO profiles (name, timezone, is_active)
			VALUES (?, ?, 1)
		`, "default", detectTimezone())
		if err != nil {
			return fmt.Errorf("failed to create default profile: %w", err)
		}

		profileID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get profile ID: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO api_servers (profile_id, host, port)
			VALUES (?, '0.0.0.0', 8080)
		`, profileID); err != nil {
			return fmt.Errorf("failed to create default API server: %w", err)
		}

		def := DefaultSettings(profileID)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO bridge_settings (profile_id, retry_interval_ms, discovery_interval_s, manufacturers, mqtt_topic_base)
			VALUES (?, ?, ?, ?, ?)
		`, profileID, def.RetryInterval.Milliseconds(), int64(def.DiscoveryInterval/time.Second),
			strings.Join(def.Manufacturers, ","), def.MQTTTopicBase); err != nil {
			return fmt.Errorf("failed to create default bridge settings: %w", err)
		}
		return nil
	})
}

// NeedsBootstrap reports whether the database has no profiles yet.
func (db *DB) NeedsBootstrap(ctx context.Context) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&count)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// detectTimezone reads the system zone from TZ, /etc/timezone or the
// /etc/localtime symlink.
func detectTimezone() string {
	if tz := os.Getenv("TZ"); tz != "" {
		return strings.TrimPrefix(tz, ":")
	}
	if data, err := os.ReadFile("/etc/timezone"); err == nil {
		if tz := strings.TrimSpace(string(data)); tz != "" {
			return tz
		}
	}
	if link, err := os.Readlink("/etc/localtime"); err == nil {
		if idx := strings.Index(link, "zoneinfo/"); idx != -1 {
			return link[idx+len("zoneinfo/"):]
		}
	}
	return "UTC"
}
