package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "bridge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Bootstrap(ctx))
	return db
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Migrate(ctx))
	v, err := db.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, currentSchemaVersion, v)
}

func TestBootstrap_Defaults(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Bootstrap(ctx), "second bootstrap is a no-op")
	profiles, err := db.Profiles().List(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 1)

	cfg, err := db.ActiveConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.Profile.Name)
	assert.Equal(t, "0.0.0.0:8080", cfg.APIAddress())
	assert.Equal(t, 5*time.Second, cfg.RetryInterval())
	assert.Equal(t, time.Minute, cfg.DiscoveryInterval())
	assert.Equal(t, []string{"Denon"}, cfg.Manufacturers())

	broker, base := cfg.MQTT()
	assert.Empty(t, broker)
	assert.Equal(t, "heos", base)
}

func TestActiveConfig_NoProfile(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "bridge.db"))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	require.NoError(t, db.Migrate(context.Background()))

	_, err = db.ActiveConfig(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveProfile)
}

func TestProfiles(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	store := db.Profiles()

	p := &Profile{Name: "upstairs", Timezone: "Europe/Berlin"}
	require.NoError(t, store.Create(ctx, p))
	require.NotZero(t, p.ID)

	require.NoError(t, store.SetActive(ctx, p.ID))
	active, err := store.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "upstairs", active.Name)

	assert.ErrorIs(t, store.SetActive(ctx, 999), ErrProfileNotFound)
	_, err = store.GetByName(ctx, "missing")
	assert.ErrorIs(t, err, ErrProfileNotFound)

	require.NoError(t, store.Delete(ctx, p.ID))
	assert.ErrorIs(t, store.Delete(ctx, p.ID), ErrProfileNotFound)
}

func TestAPIServers_Upsert(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	cfg, err := db.ActiveConfig(ctx)
	require.NoError(t, err)

	require.NoError(t, db.APIServers().Upsert(ctx, &APIServer{ProfileID: cfg.ProfileID(), Host: "127.0.0.1", Port: 9090}))
	a, err := db.APIServers().Get(ctx, cfg.ProfileID())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", a.Address())
}

func TestSettings_Upsert(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	cfg, err := db.ActiveConfig(ctx)
	require.NoError(t, err)

	st := &Settings{
		ProfileID:         cfg.ProfileID(),
		RetryInterval:     1500 * time.Millisecond,
		DiscoveryInterval: 30 * time.Second,
		Manufacturers:     []string{"Denon", " Marantz ", ""},
		MQTTBroker:        "tcp://broker:1883",
		MQTTTopicBase:     "home/heos",
	}
	require.NoError(t, db.Settings().Upsert(ctx, st))

	got, err := db.Settings().Get(ctx, cfg.ProfileID())
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, got.RetryInterval)
	assert.Equal(t, 30*time.Second, got.DiscoveryInterval)
	assert.Equal(t, []string{"Denon", "Marantz"}, got.Manufacturers)
	assert.Equal(t, "tcp://broker:1883", got.MQTTBroker)

	st.RetryInterval = 0
	assert.Error(t, db.Settings().Upsert(ctx, st))
}

func TestSpeakers(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	cfg, err := db.ActiveConfig(ctx)
	require.NoError(t, err)
	store := db.Speakers()

	sp := &Speaker{
		ID:           "speaker-1",
		ProfileID:    cfg.ProfileID(),
		Name:         "Living Room",
		Manufacturer: "Denon",
		ModelName:    "HEOS 7",
		Address:      "10.0.0.9",
	}
	require.NoError(t, store.Upsert(ctx, sp))
	require.NoError(t, store.Rename(ctx, "speaker-1", "Lounge"))

	// re-pairing keeps the chosen name
	sp.Name = "Living Room"
	sp.Address = "10.0.0.10"
	require.NoError(t, store.Upsert(ctx, sp))

	got, err := store.Get(ctx, "speaker-1")
	require.NoError(t, err)
	assert.Equal(t, "Lounge", got.Name)
	assert.Equal(t, "10.0.0.10", got.Address)
	assert.Empty(t, got.State)
	assert.False(t, got.LastSeen.IsZero())

	require.NoError(t, store.SaveState(ctx, "speaker-1", map[string]any{"volume_set": 0.35, "speaker_playing": true}))
	got, err = store.Get(ctx, "speaker-1")
	require.NoError(t, err)
	assert.Equal(t, 0.35, got.State["volume_set"])
	assert.Equal(t, true, got.State["speaker_playing"])

	require.NoError(t, store.TouchAddress(ctx, "speaker-1", "10.0.0.11"))
	list, err := store.List(ctx, cfg.ProfileID())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "10.0.0.11", list[0].Address)

	require.NoError(t, store.Delete(ctx, "speaker-1"))
	_, err = store.Get(ctx, "speaker-1")
	assert.ErrorIs(t, err, ErrSpeakerNotFound)
	assert.ErrorIs(t, store.Rename(ctx, "speaker-1", "x"), ErrSpeakerNotFound)
	assert.ErrorIs(t, store.TouchAddress(ctx, "speaker-1", "x"), ErrSpeakerNotFound)
}

func TestSpeakers_CascadeOnProfileDelete(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	p := &Profile{Name: "guest", Timezone: "UTC"}
	require.NoError(t, db.Profiles().Create(ctx, p))
	require.NoError(t, db.Speakers().Upsert(ctx, &Speaker{ID: "speaker-9", ProfileID: p.ID}))

	require.NoError(t, db.Profiles().Delete(ctx, p.ID))
	_, err := db.Speakers().Get(ctx, "speaker-9")
	assert.ErrorIs(t, err, ErrSpeakerNotFound)
}
