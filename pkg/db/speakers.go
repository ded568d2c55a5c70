package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrSpeakerNotFound = errors.New("speaker not found")

// Speaker is a paired speaker. State holds the last projected capability
// values so a restart can serve them before the session resyncs.
type Speaker struct {
	ID           string
	ProfileID    int64
	Name         string
	Manufacturer string
	ModelName    string
	ModelNumber  string
	WlanMAC      string
	Address      string
	State        map[string]any
	LastSeen     time.Time
	PairedAt     time.Time
	UpdatedAt    time.Time
}

// SpeakerStore persists the pairing list.
type SpeakerStore interface {
	List(ctx context.Context, profileID int64) ([]*Speaker, error)
	Get(ctx context.Context, id string) (*Speaker, error)
	Upsert(ctx context.Context, s *Speaker) error
	Rename(ctx context.Context, id, name string) error
	TouchAddress(ctx context.Context, id, address string) error
	SaveState(ctx context.Context, id string, state map[string]any) error
	Delete(ctx context.Context, id string) error
}

// Speakers returns a SpeakerStore for this database.
func (db *DB) Speakers() SpeakerStore {
	return &speakerStore{db: db}
}

type speakerStore struct {
	db *DB
}

const speakerColumns = `id, profile_id, name, manufacturer, model_name, model_number, wlan_mac,
	address, state, COALESCE(last_seen, ''), paired_at, updated_at`

func scanSpeaker(row rowScanner) (*Speaker, error) {
	sp := &Speaker{}
	var state, lastSeen, pairedAt, updatedAt string
	err := row.Scan(&sp.ID, &sp.ProfileID, &sp.Name, &sp.Manufacturer, &sp.ModelName, &sp.ModelNumber,
		&sp.WlanMAC, &sp.Address, &state, &lastSeen, &pairedAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSpeakerNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(state), &sp.State); err != nil {
		return nil, fmt.Errorf("speaker %s: invalid stored state: %w", sp.ID, err)
	}
	if sp.State == nil {
		sp.State = map[string]any{}
	}
	sp.LastSeen = parseTime(lastSeen)
	sp.PairedAt = parseTime(pairedAt)
	sp.UpdatedAt = parseTime(updatedAt)
	return sp, nil
}

func (s *speakerStore) List(ctx context.Context, profileID int64) ([]*Speaker, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+speakerColumns+` FROM speakers WHERE profile_id = ? ORDER BY name, id`, profileID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var speakers []*Speaker
	for rows.Next() {
		sp, err := scanSpeaker(rows)
		if err != nil {
			return nil, err
		}
		speakers = append(speakers, sp)
	}
	return speakers, rows.Err()
}

func (s *speakerStore) Get(ctx context.Context, id string) (*Speaker, error) {
	return scanSpeaker(s.db.QueryRowContext(ctx, `SELECT `+speakerColumns+` FROM speakers WHERE id = ?`, id))
}

// Upsert pairs a speaker. Re-pairing an existing id refreshes its hardware
// metadata and address but keeps the user-chosen name and stored state.
func (s *speakerStore) Upsert(ctx context.Context, sp *Speaker) error {
	if sp.ID == "" {
		return errors.New("speaker id is required")
	}
	if sp.Name == "" {
		sp.Name = sp.ID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO speakers (id, profile_id, name, manufacturer, model_name, model_number, wlan_mac, address, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(id) DO UPDATE SET
			profile_id = excluded.profile_id,
			manufacturer = excluded.manufacturer,
			model_name = excluded.model_name,
			model_number = excluded.model_number,
			wlan_mac = excluded.wlan_mac,
			address = excluded.address,
			last_seen = excluded.last_seen,
			updated_at = datetime('now')
	`, sp.ID, sp.ProfileID, sp.Name, sp.Manufacturer, sp.ModelName, sp.ModelNumber, sp.WlanMAC, sp.Address)
	if err != nil {
		return fmt.Errorf("failed to store speaker: %w", err)
	}
	return nil
}

func (s *speakerStore) Rename(ctx context.Context, id, name string) error {
	if name == "" {
		return errors.New("speaker name is required")
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE speakers SET name = ?, updated_at = datetime('now') WHERE id = ?`, name, id)
	if err != nil {
		return err
	}
	return requireAffected(result, ErrSpeakerNotFound)
}

// TouchAddress records a fresh sighting of id at address.
func (s *speakerStore) TouchAddress(ctx context.Context, id, address string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE speakers SET address = ?, last_seen = datetime('now') WHERE id = ?`, address, id)
	if err != nil {
		return err
	}
	return requireAffected(result, ErrSpeakerNotFound)
}

func (s *speakerStore) SaveState(ctx context.Context, id string, state map[string]any) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode speaker state: %w", err)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE speakers SET state = ?, updated_at = datetime('now') WHERE id = ?`, string(data), id)
	if err != nil {
		return err
	}
	return requireAffected(result, ErrSpeakerNotFound)
}

func (s *speakerStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM speakers WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(result, ErrSpeakerNotFound)
}
