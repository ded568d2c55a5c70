package db

import (
	"context"
	"database/sql"
	"fmt"
)

const currentSchemaVersion = 2

// migrations[i] upgrades the schema from version i to i+1.
var migrations = []string{
	// v1: profiles and the API listener
	`
CREATE TABLE IF NOT EXISTS schema_version (
    version     INTEGER PRIMARY KEY,
    applied_at  TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS profiles (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    name        TEXT NOT NULL UNIQUE,
    timezone    TEXT NOT NULL DEFAULT 'UTC',
    is_active   INTEGER NOT NULL DEFAULT 0,
    created_at  TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS api_servers (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    profile_id  INTEGER NOT NULL UNIQUE REFERENCES profiles(id) ON DELETE CASCADE,
    host        TEXT NOT NULL DEFAULT '0.0.0.0',
    port        INTEGER NOT NULL DEFAULT 8080,
    created_at  TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_profiles_active ON profiles(is_active);
`,
	// v2: bridge settings and paired speakers
	`
CREATE TABLE IF NOT EXISTS bridge_settings (
    profile_id           INTEGER PRIMARY KEY REFERENCES profiles(id) ON DELETE CASCADE,
    retry_interval_ms    INTEGER NOT NULL DEFAULT 5000,
    discovery_interval_s INTEGER NOT NULL DEFAULT 60,
    manufacturers        TEXT NOT NULL DEFAULT 'Denon',
    mqtt_broker          TEXT NOT NULL DEFAULT '',
    mqtt_topic_base      TEXT NOT NULL DEFAULT 'heos',
    updated_at           TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS speakers (
    id           TEXT PRIMARY KEY,
    profile_id   INTEGER NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
    name         TEXT NOT NULL,
    manufacturer TEXT NOT NULL DEFAULT '',
    model_name   TEXT NOT NULL DEFAULT '',
    model_number TEXT NOT NULL DEFAULT '',
    wlan_mac     TEXT NOT NULL DEFAULT '',
    address      TEXT NOT NULL DEFAULT '',
    state        TEXT NOT NULL DEFAULT '{}',
    last_seen    TEXT,
    paired_at    TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at   TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_speakers_profile ON speakers(profile_id);
`,
}

// Migrate brings the schema up to date, one version per transaction.
func (db *DB) Migrate(ctx context.Context) error {
	version, err := db.getSchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for v := version; v < currentSchemaVersion; v++ {
		if err := db.applyMigration(ctx, v+1, migrations[v]); err != nil {
			return fmt.Errorf("failed to apply schema v%d: %w", v+1, err)
		}
	}
	return nil
}

// SchemaVersion returns the applied schema version, 0 for an empty file.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	return db.getSchemaVersion(ctx)
}

func (db *DB) getSchemaVersion(ctx context.Context) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&count)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}

	var version int
	err = db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	return version, err
}

func (db *DB) applyMigration(ctx context.Context, version int, stmt string) error {
	return db.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
		return nil
	})
}
