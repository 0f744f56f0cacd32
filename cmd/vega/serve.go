package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	_ "github.com/nerrad567/vega-nmos-core/migrations"

	"github.com/nerrad567/vega-nmos-core/internal/api"
	"github.com/nerrad567/vega-nmos-core/internal/connection"
	"github.com/nerrad567/vega-nmos-core/internal/discovery"
	"github.com/nerrad567/vega-nmos-core/internal/infrastructure/config"
	"github.com/nerrad567/vega-nmos-core/internal/infrastructure/database"
	"github.com/nerrad567/vega-nmos-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/vega-nmos-core/internal/infrastructure/logging"
	"github.com/nerrad567/vega-nmos-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/vega-nmos-core/internal/metrics"
	"github.com/nerrad567/vega-nmos-core/internal/nmos"
	"github.com/nerrad567/vega-nmos-core/internal/notify"
	"github.com/nerrad567/vega-nmos-core/internal/registration"
	"github.com/nerrad567/vega-nmos-core/internal/registry"
	"github.com/nerrad567/vega-nmos-core/internal/resource"
)

const (
	// unregisterTimeout bounds the registry DELETEs issued on shutdown.
	unregisterTimeout = 5 * time.Second

	// historyPruneInterval is how often old connection history is removed.
	historyPruneInterval = time.Hour
)

// newServeCommand runs the long-lived service.
func newServeCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Vega core service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), getConfigPath(rootOpts.ConfigPath))
		},
	}
}

// run is the service logic, separated from the command for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: YAML configuration file to load
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Vega core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database (connection history)
	var db *database.DB
	if cfg.Database.Path != "" {
		db, err = database.Open(ctx, database.FromConfig(cfg.Database))
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
	}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
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
	} else {
		log.Info("MQTT disabled")
	}

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

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	// Notification fan-out: UI hub, then the optional MQTT and telemetry sinks
	hub := api.NewHub(cfg.WebSocket, log)
	sinks := notify.Fanout{hub}
	if mqttClient != nil {
		sinks = append(sinks, notify.NewMQTTSink(mqttClient, byte(cfg.MQTT.QoS), log))
	}
	if influxClient != nil {
		sinks = append(sinks, notify.NewTelemetrySink(influxClient))
	}

	// Synchronisation engine
	store := resource.NewStore()
	registryClient := registry.NewClient(nmos.NewClient(
		nmos.WithTimeout(cfg.RegistryTimeout()),
		nmos.WithObserver(metrics.HTTPObserver{Target: "registry"}),
	))
	registryClient.SetLogger(log.With("component", "registry"))

	engine := discovery.New(discovery.Options{
		Registry:        registryClient,
		Store:           store,
		Sink:            sinks,
		Dialer:          discovery.WebSocketDialer{HandshakeTimeout: cfg.RegistryTimeout()},
		Logger:          log.With("component", "discovery"),
		MaxUpdateRateMS: cfg.Discovery.MaxUpdateRateMS,
		Persist:         cfg.Discovery.Persist,
		Backoff:         backoffConfig(cfg.Discovery.Reconnect),
	})
	defer func() {
		log.Info("stopping discovery engine")
		engine.Close()
	}()

	// Connection orchestrator
	orchOpts := connection.Options{
		Resources: store,
		HTTP: nmos.NewClient(
			nmos.WithTimeout(cfg.ConnectionTimeout()),
			nmos.WithObserver(metrics.HTTPObserver{Target: "device"}),
		),
		Sink:   sinks,
		Logger: log.With("component", "connection"),
	}
	if cfg.Connection.HistoryEnabled && db != nil {
		historyRepo := connection.NewSQLiteHistoryRepository(db.DB)
		orchOpts.History = historyRepo
		go pruneHistory(ctx, historyRepo, cfg.Connection.HistoryRetentionHours, log)
	}
	orchestrator := connection.New(orchOpts)

	if mqttClient != nil {
		if err := subscribeCommands(ctx, mqttClient, orchestrator, byte(cfg.MQTT.QoS), cfg.ConnectionTimeout(), log); err != nil {
			return fmt.Errorf("subscribing to MQTT commands: %w", err)
		}
	}

	// Self-registration (optional)
	var regService *registration.Service
	if cfg.Registry.RegistrationURL != "" {
		regService, err = newRegistration(cfg, log)
		if err != nil {
			return fmt.Errorf("creating registration service: %w", err)
		}
	}

	// API server
	deps := api.Deps{
		Config:       cfg.API,
		WS:           cfg.WebSocket,
		Logger:       log,
		Engine:       engine,
		Orchestrator: orchestrator,
		DB:           db,
		ExternalHub:  hub,
		Version:      version,
	}
	if regService != nil {
		deps.Registration = regService
	}
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	go hub.Run(ctx)
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if regService != nil {
		go func() {
			if err := regService.Start(ctx); err != nil && ctx.Err() == nil {
				log.Error("self-registration failed", "error", err)
			}
		}()
		defer func() {
			unregCtx, cancel := context.WithTimeout(context.Background(), unregisterTimeout)
			defer cancel()
			if err := regService.Unregister(unregCtx); err != nil {
				log.Warn("unregistering from registry", "error", err)
			}
		}()
	}

	if cfg.Discovery.AutoDiscover && cfg.Registry.QueryURL != "" {
		go func() {
			snap, err := engine.Discover(ctx, cfg.Registry.QueryURL)
			if err != nil {
				if ctx.Err() == nil {
					log.Error("initial discovery failed", "registry", cfg.Registry.QueryURL, "error", err)
				}
				return
			}
			log.Info("initial discovery complete", "registry", cfg.Registry.QueryURL, "counts", snap.Counts())
		}()
	}

	log.Info("initialisation complete, waiting for shutdown signal", "address", server.Addr())

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. Registration removed from the registry
	// 2. API server
	// 3. Discovery engine
	// 4. InfluxDB, MQTT, database (when enabled)

	log.Info("Vega core stopped")
	return nil
}

// healthCheck verifies all infrastructure connections are healthy.
// Disabled components are passed as nil and skipped.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check (may be nil)
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
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

// backoffConfig converts the millisecond reconnect settings.
func backoffConfig(rc config.ReconnectConfig) discovery.BackoffConfig {
	return discovery.BackoffConfig{
		InitialDelay: time.Duration(rc.InitialDelayMS) * time.Millisecond,
		MaxDelay:     time.Duration(rc.MaxDelayMS) * time.Millisecond,
		Multiplier:   rc.Multiplier,
		MaxAttempts:  rc.MaxAttempts,
	}
}

// newRegistration builds the self-registration service from config.
// The hostname falls back to the OS hostname and the href to
// http://{hostname}:{api.port}/.
func newRegistration(cfg *config.Config, log *logging.Logger) (*registration.Service, error) {
	hostname := cfg.Node.Hostname
	if hostname == "" {
		h, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("resolving hostname: %w", err)
		}
		hostname = h
	}

	href := cfg.Node.Href
	if href == "" {
		scheme := "http"
		if cfg.API.TLS.Enabled {
			scheme = "https"
		}
		href = fmt.Sprintf("%s://%s:%d/", scheme, hostname, cfg.API.Port)
	}

	return registration.New(registration.Options{
		RegistrationURL:   cfg.Registry.RegistrationURL,
		NodeID:            cfg.Node.ID,
		DeviceID:          cfg.Node.DeviceID,
		Label:             cfg.Node.Label,
		Hostname:          hostname,
		Href:              href,
		HeartbeatInterval: cfg.HeartbeatInterval(),
		HTTP: nmos.NewClient(
			nmos.WithTimeout(cfg.RegistryTimeout()),
			nmos.WithObserver(metrics.HTTPObserver{Target: "registration"}),
		),
		Logger: log.With("component", "registration"),
	})
}

// commandPayload is the body of an MQTT connect or disconnect request.
type commandPayload struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}

// subscribeCommands lets MQTT clients drive the orchestrator. Outcomes are
// reported through the connection state topics, so handlers only log.
func subscribeCommands(ctx context.Context, client *mqtt.Client, orch *connection.Orchestrator, qos byte, timeout time.Duration, log *logging.Logger) error {
	handle := func(op string) mqtt.MessageHandler {
		return func(topic string, payload []byte) error {
			var cmd commandPayload
			if err := json.Unmarshal(payload, &cmd); err != nil {
				return fmt.Errorf("decoding %s command: %w", op, err)
			}

			// Allow the PATCH and its state query to finish within one command.
			opCtx, cancel := context.WithTimeout(ctx, 2*timeout)
			defer cancel()

			var err error
			switch op {
			case connection.OpConnect:
				_, err = orch.Connect(opCtx, cmd.SenderID, cmd.ReceiverID)
			default:
				_, err = orch.Disconnect(opCtx, cmd.ReceiverID)
			}
			if err != nil {
				log.Warn("MQTT command failed",
					"topic", topic,
					"receiver_id", cmd.ReceiverID,
					"error", err,
				)
			}
			return nil
		}
	}

	topics := client.Topics()
	if err := client.Subscribe(topics.Command(connection.OpConnect), qos, handle(connection.OpConnect)); err != nil {
		return err
	}
	return client.Subscribe(topics.Command(connection.OpDisconnect), qos, handle(connection.OpDisconnect))
}

// pruneHistory removes connection history older than the retention window
// at startup and then hourly. A zero retention keeps everything.
func pruneHistory(ctx context.Context, repo *connection.SQLiteHistoryRepository, retentionHours int, log *logging.Logger) {
	if retentionHours <= 0 {
		return
	}
	retention := time.Duration(retentionHours) * time.Hour

	prune := func() {
		n, err := repo.Prune(ctx, time.Now().Add(-retention))
		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			log.Warn("pruning connection history", "error", err)
		case n > 0:
			log.Info("connection history pruned", "rows", n)
		}
	}

	prune()
	ticker := time.NewTicker(historyPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
