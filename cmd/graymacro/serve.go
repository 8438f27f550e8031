package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-macro-core/internal/api"
	"github.com/nerrad567/gray-macro-core/internal/bridge"
	"github.com/nerrad567/gray-macro-core/internal/engine"
	"github.com/nerrad567/gray-macro-core/internal/infrastructure/config"
	"github.com/nerrad567/gray-macro-core/internal/infrastructure/database"
	"github.com/nerrad567/gray-macro-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-macro-core/internal/infrastructure/logging"
	"github.com/nerrad567/gray-macro-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-macro-core/internal/macro"
	"github.com/nerrad567/gray-macro-core/internal/variables"
)

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the macro library, item editor and run control over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), opts)
		},
	}
}

// serve is the long-running server, separated from the cobra command for
// testability. Returning an error allows main to handle exit codes
// consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - opts: Global flags
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func serve(ctx context.Context, opts *options) error { //nolint:gocognit,gocyclo // sequential start-up with a defer per component
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Macro",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", opts.configPath)

	// Reinitialise logger with config settings
	applyFlags(cfg, opts)
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database and run migrations
	db, err := database.OpenMigrated(ctx, database.Config{
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
	schema, err := db.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	log.Info("database ready", "path", cfg.Database.Path, "schema", schema)

	// Macro library
	types := newTypeRegistry(cfg)
	repo := macro.NewSQLiteRepository(db.DB)
	library := macro.NewLibrary(repo, types)
	library.SetLogger(log)
	library.SetMaxItems(cfg.Engine.MaxItems)
	if refreshErr := library.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading macro library: %w", refreshErr)
	}
	log.Info("macro library initialised", "macros", library.GetMacroCount())

	// Connect to MQTT broker
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
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB (optional)
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Bridges supply input, image location and capture
	delegates, stopBridges, err := startBridges(cfg, mqttClient, log)
	if err != nil {
		return fmt.Errorf("starting bridges: %w", err)
	}
	defer stopBridges()
	vars := variables.NewSQLiteStore(db.DB)
	delegates.Variables = vars
	if cfg.Engine.AllowCommands {
		delegates.Commands = engine.ExecRunner{}
		log.Warn("run_command steps are enabled on this host")
	}

	// Run notices and node events go to WebSocket clients and, when
	// enabled, to MQTT.
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	hubs := macro.MultiHub{hub}
	sinks := []engine.EventSink{hub}
	if cfg.Bridges.PublishEvents {
		publisher := bridge.NewEventPublisher(mqttClient, log)
		publisher.Start()
		defer func() {
			publisher.Close()
			if n := publisher.Dropped(); n > 0 {
				log.Warn("event publisher dropped messages", "count", n)
			}
		}()
		hubs = append(hubs, publisher)
		sinks = append(sinks, publisher)
	}

	runner := macro.NewRunner(library, types, repo, delegates, hubs, log)
	for _, sink := range sinks {
		runner.AddEventSink(sink)
	}
	runner.SetMaxRunTime(cfg.Engine.MaxRunTimeDuration())
	runner.SetPollInterval(cfg.Engine.PollIntervalDuration())
	if influxClient != nil {
		runner.SetMetrics(influxClient)
	}
	defer func() {
		log.Info("stopping active runs")
		runner.Shutdown()
	}()

	// HTTP API
	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Logger:      log,
		Library:     library,
		Runner:      runner,
		Runs:        repo,
		Variables:   vars,
		MQTT:        mqttClient,
		DB:          db,
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API server, active runs,
	// event publisher, bridges, InfluxDB, MQTT, database.
	log.Info("Gray Macro stopped")
	return nil
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
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
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

	// Bridge clients verify their response subscriptions in Start().
	return nil
}
