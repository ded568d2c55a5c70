package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/urmzd/heos-bridge/pkg/api"
	"github.com/urmzd/heos-bridge/pkg/bridge"
	"github.com/urmzd/heos-bridge/pkg/db"
	"github.com/urmzd/heos-bridge/pkg/device"

	_ "github.com/urmzd/heos-bridge/docs"
)

// @title           HEOS Bridge API
// @version         1.0
// @description     REST API for pairing and controlling HEOS speakers

// @host      localhost:8080
// @BasePath  /api/v1
// @schemes   http https

func main() {
	// Configure logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Parse flags
	dbPath := flag.String("db", "", "Path to database file (default: ~/.config/heos-bridge/heos-bridge.db)")
	mqttBroker := flag.String("mqtt", "", "MQTT broker URL, overrides the stored setting (e.g. tcp://localhost:1883)")
	mqttBase := flag.String("mqtt-topic", "", "MQTT topic base, overrides the stored setting")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open database
	database, err := db.Open(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}()

	log.Info().Str("path", database.Path()).Msg("Database opened")

	// Run migrations
	if err := database.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Bootstrap if needed (first run)
	needsBootstrap, err := database.NeedsBootstrap(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to check bootstrap status")
	}
	if needsBootstrap {
		log.Info().Msg("First run detected, bootstrapping database...")
		if err := database.Bootstrap(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to bootstrap database")
		}
		log.Info().Msg("Database bootstrapped successfully")
	}

	// Load configuration
	cfg, err := database.ActiveConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().
		Str("profile", cfg.Profile.Name).
		Str("timezone", cfg.Timezone()).
		Str("api_address", cfg.APIAddress()).
		Strs("manufacturers", cfg.Manufacturers()).
		Msg("Configuration loaded")

	// Start the bridge; fall back to NullController so health and docs stay up
	var controller device.Controller
	var eventSubscriber device.EventSubscriber

	ctrl, shutdown, err := bridge.Boot(ctx, database, cfg, bridge.BootOptions{
		MQTTBroker:    *mqttBroker,
		MQTTTopicBase: *mqttBase,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Bridge unavailable, using null controller")
		controller = device.NewNullController()
		eventSubscriber = device.NewNullEventSubscriber()
	} else {
		defer shutdown()
		controller = ctrl
		eventSubscriber = ctrl
	}

	router := api.NewRouter(controller, eventSubscriber)

	addr := cfg.APIAddress()
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", addr).Msg("Starting API server")
		errCh <- router.Run(addr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down...")
	case err := <-errCh:
		log.Error().Err(err).Msg("Server failed")
	}
}
