// Glue Home bridge
//
// This is the main entry point of the Glue Home smart-lock bridge. It polls
// the Glue Home cloud for the locks on an account, publishes them on the
// Gray Logic MQTT bus and a local REST/WebSocket API, and runs lock and
// unlock commands through the cloud until they settle.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nerrad567/gray-logic-gluehome/internal/api"
	"github.com/nerrad567/gray-logic-gluehome/internal/bridges/gluehome"
	"github.com/nerrad567/gray-logic-gluehome/internal/cloud"
	"github.com/nerrad567/gray-logic-gluehome/internal/coordinator"
	"github.com/nerrad567/gray-logic-gluehome/internal/credential"
	"github.com/nerrad567/gray-logic-gluehome/internal/entity"
	"github.com/nerrad567/gray-logic-gluehome/internal/history"
	"github.com/nerrad567/gray-logic-gluehome/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-gluehome/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-gluehome/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-gluehome/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-gluehome/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-gluehome/internal/metrics"
	"github.com/nerrad567/gray-logic-gluehome/internal/operation"
	"github.com/nerrad567/gray-logic-gluehome/migrations"
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
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := runToken(os.Stdout, os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Glue Home bridge",
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
	log.Info("configuration loaded", "path", configPath, "gluehome", cfg.GlueHome.String())

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

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	bridgeMetrics := metrics.New(registry, version)

	// Cloud client and credential
	cloudClient := cloud.NewClient(cloud.Options{Host: cfg.GlueHome.Host})
	credentials := credential.NewProvider(credential.NewRepository(db.DB), cloudClient, log)

	apiKey, err := credentials.Resolve(ctx, cfg.GlueHome)
	if err != nil {
		return fmt.Errorf("resolving Glue Home API key: %w", err)
	}

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
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
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Coordinator, operation runner and entities
	coord := coordinator.New(coordinator.Options{
		Fetcher:      cloudClient,
		APIKey:       apiKey,
		Interval:     cfg.GlueHome.GetPollInterval(),
		Timeout:      cfg.GlueHome.GetRefreshTimeout(),
		SetupTimeout: cfg.GlueHome.GetSetupTimeout(),
		Logger:       log.With("component", "coordinator"),
		OnRefresh:    bridgeMetrics.ObserveRefresh,
	})

	historyRepo := history.NewRepository(db.DB, log)
	observers := []operation.Observer{historyRepo.Observe, bridgeMetrics.ObserveOperation}
	if influxClient != nil {
		observers = append(observers, operationTelemetry(influxClient))
	}

	runner := operation.NewRunner(operation.Options{
		Client:      cloudClient,
		APIKey:      apiKey,
		Refresher:   coord,
		PollDelay:   cfg.GlueHome.GetOperationPollDelay(),
		MaxAttempts: cfg.GlueHome.OperationMaxAttempts,
		Logger:      log.With("component", "operation"),
		Observers:   observers,
	})
	entities := entity.NewSet(coord, runner)
	defer coord.Subscribe(entities.Observe)()

	defer coord.Subscribe(bridgeMetrics.ObserveDirectory)()
	if influxClient != nil {
		defer coord.Subscribe(lockTelemetry(influxClient, entities))()
	}

	// First refresh gates startup; a rejected credential stops the bridge.
	dir, err := coord.FirstRefresh(ctx)
	if err != nil {
		if errors.Is(err, cloud.ErrInvalidAuth) {
			if forgetErr := credentials.Forget(ctx, cfg.GlueHome); forgetErr != nil {
				log.Error("error forgetting stored API key", "error", forgetErr)
			}
			return fmt.Errorf("API key rejected by Glue Home: %w", err)
		}
		return fmt.Errorf("loading lock directory: %w", err)
	}
	log.Info("lock directory loaded", "locks", len(dir.Locks))

	// MQTT and the bus bridge
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	// Retained state may have been lost with the broker; republish it.
	mqttClient.SetOnConnect(coord.RequestRefresh)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	bridge, err := gluehome.NewBridge(gluehome.BridgeOptions{
		MQTTClient:  &mqttBridgeAdapter{client: mqttClient},
		Coordinator: coord,
		Entities:    entities,
		Version:     version,
		Logger:      log.With("component", "bridge"),
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		bridge.Stop()
	}()

	// REST / WebSocket API
	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:      cfg.API,
			WS:          cfg.WebSocket,
			Logger:      log,
			Coordinator: coord,
			Entities:    entities,
			History:     historyRepo,
			Gatherer:    registry,
			MQTT:        mqttClient,
			Version:     version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, polling lock directory",
		"interval", cfg.GlueHome.GetPollInterval(),
	)

	// Run blocks until shutdown or until the credential is rejected.
	if err := coord.Run(ctx); err != nil {
		if forgetErr := credentials.Forget(context.Background(), cfg.GlueHome); forgetErr != nil {
			log.Error("error forgetting stored API key", "error", forgetErr)
		}
		return fmt.Errorf("lock directory polling stopped: %w", err)
	}

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GLUEHOME_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GLUEHOME_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthChecker is satisfied by every infrastructure client.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db, mqttClient healthChecker, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
