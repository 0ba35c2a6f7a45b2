// FleetGate - device fleet broker gateway
//
// This is the main entry point for the FleetGate daemon. FleetGate sits
// between a fleet of credentialed devices and a shared MQTT broker,
// owning per-device connection lifecycle, wildcard subscription
// routing, telemetry schema discovery and scheduled publications.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/fleetgate/fleetgate-core/migrations"

	"github.com/fleetgate/fleetgate-core/internal/bridge"
	"github.com/fleetgate/fleetgate-core/internal/catalog"
	"github.com/fleetgate/fleetgate-core/internal/device"
	"github.com/fleetgate/fleetgate-core/internal/gateway"
	"github.com/fleetgate/fleetgate-core/internal/infrastructure/config"
	"github.com/fleetgate/fleetgate-core/internal/infrastructure/database"
	"github.com/fleetgate/fleetgate-core/internal/infrastructure/influxdb"
	"github.com/fleetgate/fleetgate-core/internal/infrastructure/logging"
	"github.com/fleetgate/fleetgate-core/internal/scheduler"
	"github.com/fleetgate/fleetgate-core/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting FleetGate",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Repositories
	deviceRepo := device.NewSQLiteRepository(db.DB)
	topicRepo := catalog.NewSQLiteRepository(db.DB)
	subscriptionRepo := gateway.NewSQLiteSubscriptionRepository(db.DB)
	publicationRepo := gateway.NewSQLitePublicationRepository(db.DB)
	telemetryRepo := telemetry.NewSQLiteRepository(db.DB)
	schedulerRepo := scheduler.NewSQLiteRepository(db.DB)

	// Telemetry mirror (optional)
	var mirror telemetry.Mirror
	if cfg.InfluxDB.Enabled {
		influxClient, connErr := influxdb.Connect(cfg.InfluxDB)
		if connErr != nil && !errors.Is(connErr, influxdb.ErrDisabled) {
			return fmt.Errorf("connecting to InfluxDB: %w", connErr)
		}
		if influxClient != nil {
			defer func() {
				log.Info("closing InfluxDB connection")
				if closeErr := influxClient.Close(); closeErr != nil {
					log.Error("error closing InfluxDB", "error", closeErr)
				}
			}()
			influxClient.SetOnError(func(err error) {
				log.Error("InfluxDB write error", "error", err)
			})
			mirror = influxClient
			log.Info("InfluxDB telemetry mirror connected",
				"url", cfg.InfluxDB.URL,
				"org", cfg.InfluxDB.Org,
				"bucket", cfg.InfluxDB.Bucket,
			)
		}
	} else {
		log.Info("InfluxDB telemetry mirror disabled")
	}

	ingestor := telemetry.NewIngestor(telemetryRepo, mirror, log)

	registry := bridge.NewRegistry(bridge.Config{
		ConnectTimeout: cfg.Broker.GetConnectTimeout(),
		RetryInterval:  cfg.Broker.GetRetryInterval(),
		Sink:           ingestor,
		Logger:         log,
	})

	var svc *gateway.Service
	engine := scheduler.NewEngine(schedulerRepo, publisherFunc(func(ctx context.Context, deviceID, topic string, payload []byte, qos byte, retain bool) error {
		return svc.Publish(ctx, deviceID, topic, payload, qos, retain)
	}), cfg.Scheduler.GetInterval(), log)

	svc = gateway.NewService(gateway.Deps{
		Devices:       deviceRepo,
		Topics:        topicRepo,
		Subscriptions: subscriptionRepo,
		Publications:  publicationRepo,
		Registry:      registry,
		Engine:        engine,
		BrokerURL:     cfg.Broker.URL(),
		Logger:        log,
	})

	// Replay persisted subscriptions into live connections.
	installed, err := svc.InitializeAllSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("replaying subscriptions: %w", err)
	}
	log.Info("subscriptions replayed", "installed", installed)

	// Start the scheduled-publication driver: one immediate pass, then
	// one per interval.
	engine.Start(ctx)
	log.Info("scheduler started", "interval", cfg.Scheduler.GetInterval())

	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal",
		"broker", cfg.Broker.URL(),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	svc.ShutdownAll()

	log.Info("FleetGate stopped")
	return nil
}

// publisherFunc adapts a function to the scheduler.Publisher interface,
// breaking the construction cycle between the engine and the facade.
type publisherFunc func(ctx context.Context, deviceID, topic string, payload []byte, qos byte, retain bool) error

func (f publisherFunc) Publish(ctx context.Context, deviceID, topic string, payload []byte, qos byte, retain bool) error {
	return f(ctx, deviceID, topic, payload, qos, retain)
}

// getConfigPath returns the configuration file path.
// Uses FLEETGATE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("FLEETGATE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
