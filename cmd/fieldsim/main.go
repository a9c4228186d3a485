// fieldsim - simulated agricultural sensor network
//
// This is the main entry point for the fieldsim core service. It runs a
// registry of simulated soil moisture sensors, irrigation controllers and
// environmental monitors, synthesizes their telemetry, schedules irrigation
// runs and serves it all over HTTP, WebSocket and MQTT.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nerrad567/fieldsim-core/internal/api"
	"github.com/nerrad567/fieldsim-core/internal/device"
	"github.com/nerrad567/fieldsim-core/internal/events"
	"github.com/nerrad567/fieldsim-core/internal/history"
	"github.com/nerrad567/fieldsim-core/internal/infrastructure/config"
	"github.com/nerrad567/fieldsim-core/internal/infrastructure/database"
	"github.com/nerrad567/fieldsim-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/fieldsim-core/internal/infrastructure/logging"
	"github.com/nerrad567/fieldsim-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/fieldsim-core/internal/irrigation"
	"github.com/nerrad567/fieldsim-core/internal/metrics"
	"github.com/nerrad567/fieldsim-core/internal/simulation"
	"github.com/nerrad567/fieldsim-core/internal/telemetry"
	"github.com/nerrad567/fieldsim-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// shutdownTimeout bounds the final snapshot and scheduler shutdown.
const shutdownTimeout = 10 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup/shutdown sequence
	log := logging.Default()
	log.Info("starting fieldsim",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"site", cfg.Site.ID,
		"level", cfg.Logging.Level,
	)

	clock := simulation.RealClock{}
	source := simulation.NewRandomSource(cfg.Simulation.Seed)

	registry := device.NewRegistry(source, clock)
	registry.SetLogger(log.Component("device"))

	// Snapshot store (optional)
	var (
		db   *database.DB
		repo device.Repository
	)
	if cfg.Database.Enabled {
		db, err = database.Open(ctx, database.Config{
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

		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}

		repo = device.NewSQLiteRepository(db.DB)
		records, loadErr := repo.Load(ctx)
		if loadErr != nil {
			return fmt.Errorf("loading snapshot: %w", loadErr)
		}
		if restoreErr := registry.Restore(ctx, records); restoreErr != nil {
			return fmt.Errorf("restoring registry: %w", restoreErr)
		}
		log.Info("database ready", "path", cfg.Database.Path, "devices", registry.Count())
	} else {
		log.Info("database disabled, registry is in-memory only")
	}

	synth := telemetry.NewSynthesizer(source, synthConfig(cfg))
	telemetrySvc := telemetry.NewService(registry, synth, clock)
	telemetrySvc.SetLogger(log.Component("telemetry"))

	scheduler := irrigation.NewScheduler(registry, clock, cfg.Simulation.Minute)
	scheduler.SetLogger(log.Component("irrigation"))

	aggregator := history.NewAggregator(registry, clock)
	aggregator.SetLogger(log.Component("history"))

	collectors := metrics.New(registry.Count, func() int {
		return len(registry.ActiveEvents(context.Background()))
	})

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	go hub.Run(ctx)

	sinks := []events.Sink{
		events.NewHubSink(hub),
		events.NewMetricsSink(collectors),
	}

	// MQTT (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(ctx, cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		mqttClient.SetLogger(log.Component("mqtt"))
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		sinks = append(sinks, events.NewMQTTSink(mqttClient, events.NewBreaker("mqtt", log)))
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		sinks = append(sinks, events.NewInfluxSink(influxClient))
	} else {
		log.Info("InfluxDB disabled")
	}

	// Kafka (optional)
	if cfg.Kafka.Enabled {
		writer := events.NewKafkaWriter(cfg.Kafka)
		defer func() {
			log.Info("closing Kafka writer")
			if closeErr := writer.Close(); closeErr != nil {
				log.Error("error closing Kafka writer", "error", closeErr)
			}
		}()
		log.Info("Kafka sink enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
		sinks = append(sinks, events.NewKafkaSink(writer, events.NewBreaker("kafka", log)))
	}

	dispatcher := events.NewDispatcher(events.DefaultQueueSize, sinks...)
	dispatcher.SetLogger(log.Component("events"))
	dispatcher.SetOnDrop(collectors.EventsDropped.Inc)
	scheduler.AddObserver(dispatcher)
	telemetrySvc.AddObserver(dispatcher)

	// The dispatcher outlives ctx so completions fired during shutdown
	// still reach the sinks.
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	dispatchDone := make(chan struct{})
	go func() {
		dispatcher.Run(dispatchCtx)
		close(dispatchDone)
	}()

	resumed, err := scheduler.Resume(ctx)
	if err != nil {
		stopDispatch()
		return fmt.Errorf("resuming irrigation: %w", err)
	}
	if resumed > 0 {
		log.Info("resumed irrigation runs", "count", resumed)
	}

	var commands *events.CommandHandler
	if mqttClient != nil {
		commands = events.NewCommandHandler(scheduler)
		commands.SetLogger(log.Component("commands"))
		//nolint:gosec // QoS validated to 0..2
		if subErr := commands.Subscribe(ctx, mqttClient, byte(cfg.MQTT.QoS)); subErr != nil {
			stopDispatch()
			return fmt.Errorf("subscribing to irrigation commands: %w", subErr)
		}
	}

	var wg sync.WaitGroup

	auto := irrigation.NewAutoController(registry, scheduler, cfg.Irrigation.AutoCheckInterval)
	auto.SetLogger(log.Component("auto"))
	wg.Add(1)
	go func() {
		defer wg.Done()
		auto.Run(ctx)
	}()

	if repo != nil && cfg.Database.SnapshotInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runSnapshots(ctx, repo, registry, cfg.Database.SnapshotInterval, log)
		}()
	}

	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Metrics:     cfg.Metrics,
		Logger:      log.Component("api"),
		Registry:    registry,
		Telemetry:   telemetrySvc,
		Scheduler:   scheduler,
		History:     aggregator,
		Collectors:  collectors,
		MQTT:        mqttClient,
		DB:          dbHandle(db),
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		stopDispatch()
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		stopDispatch()
		return fmt.Errorf("starting API server: %w", err)
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		log.Warn("health check failed", "error", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		"devices", registry.Count(),
	)

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	if closeErr := server.Close(); closeErr != nil {
		log.Error("error closing API server", "error", closeErr)
	}

	if commands != nil {
		if unsubErr := commands.Unsubscribe(mqttClient); unsubErr != nil {
			log.Warn("error unsubscribing from irrigation commands", "error", unsubErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Armed runs stay active in the snapshot and are re-armed by Resume.
	if err := scheduler.Shutdown(shutdownCtx); err != nil {
		log.Error("error shutting down scheduler", "error", err)
	}
	wg.Wait()

	if repo != nil {
		saveSnapshot(shutdownCtx, repo, registry, log)
	}

	stopDispatch()
	<-dispatchDone

	// Deferred Close() calls run in reverse order:
	// Kafka, InfluxDB, MQTT, database.
	log.Info("fieldsim stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses FIELDSIM_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("FIELDSIM_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

func synthConfig(cfg *config.Config) telemetry.SynthConfig {
	return telemetry.SynthConfig{
		HistoryPoints:   cfg.Simulation.HistoryPoints,
		HistoryInterval: cfg.Simulation.HistoryInterval,
		Location:        cfg.Location(),
		DayStart:        cfg.Simulation.DayStart,
		DayEnd:          cfg.Simulation.DayEnd,
		NightStart:      cfg.Simulation.NightStart,
		NightEnd:        cfg.Simulation.NightEnd,
	}
}

// runSnapshots persists the registry every interval until ctx is cancelled.
func runSnapshots(ctx context.Context, repo device.Repository, registry *device.Registry, interval time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			saveSnapshot(ctx, repo, registry, log)
		}
	}
}

func saveSnapshot(ctx context.Context, repo device.Repository, registry *device.Registry, log *logging.Logger) {
	records := registry.Snapshot(ctx)
	if err := repo.Save(ctx, records); err != nil {
		log.Error("saving registry snapshot failed", "error", err)
		return
	}
	log.Debug("registry snapshot saved", "devices", len(records))
}

// dbHandle exposes the pool for the system endpoint, or nil when the
// database is disabled.
func dbHandle(db *database.DB) *sql.DB {
	if db == nil {
		return nil
	}
	return db.DB
}

// healthCheck verifies the enabled infrastructure connections.
// Nil components are skipped.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
