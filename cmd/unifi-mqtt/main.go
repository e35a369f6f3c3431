// UniFi MQTT bridge
//
// This is the main entry point for the bridge. It logs in to a UniFi
// console, streams events from the network, access and protect subsystems
// and republishes every event on MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/nerrad567/unifi-mqtt/internal/api"
	"github.com/nerrad567/unifi-mqtt/internal/infrastructure/config"
	"github.com/nerrad567/unifi-mqtt/internal/infrastructure/database"
	"github.com/nerrad567/unifi-mqtt/internal/infrastructure/influxdb"
	"github.com/nerrad567/unifi-mqtt/internal/infrastructure/logging"
	"github.com/nerrad567/unifi-mqtt/internal/infrastructure/mqtt"
	"github.com/nerrad567/unifi-mqtt/internal/metrics"
	"github.com/nerrad567/unifi-mqtt/internal/status"
	"github.com/nerrad567/unifi-mqtt/internal/telemetry"
	"github.com/nerrad567/unifi-mqtt/internal/translator"
	"github.com/nerrad567/unifi-mqtt/internal/unifi"
	"github.com/nerrad567/unifi-mqtt/migrations"
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

// configEnv names the environment variable that overrides the config path.
const configEnv = "UNIFI_MQTT_CONFIG"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cliFlags holds the parsed command line.
type cliFlags struct {
	configPath  string
	showVersion bool
	migrateDown bool
	overrides   []config.Override
}

// parseFlags parses the command line into a config path and a set of
// overrides. Only flags given explicitly override the loaded configuration.
func parseFlags(args []string) (*cliFlags, error) {
	fs := pflag.NewFlagSet("unifi-mqtt", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		f          cliFlags
		host       string
		port       int
		username   string
		password   string
		site       string
		insecure   bool
		subsystems []string
	)
	fs.StringVarP(&f.configPath, "config", "c", getConfigPath(), "path to the YAML configuration file")
	fs.BoolVar(&f.showVersion, "version", false, "print version information and exit")
	fs.BoolVar(&f.migrateDown, "migrate-down", false, "roll back the latest database migration and exit")
	fs.StringVar(&host, "host", "", "controller host name or address")
	fs.IntVar(&port, "port", 0, "controller HTTPS port")
	fs.StringVarP(&username, "username", "u", "", "controller account name")
	fs.StringVarP(&password, "password", "p", "", "controller account password")
	fs.StringVar(&site, "site", "", "controller site name")
	fs.BoolVar(&insecure, "insecure", false, "skip TLS certificate verification")
	fs.StringSliceVar(&subsystems, "subsystem", nil, "subsystem to stream (repeatable): network, access, protect")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	if fs.Changed("host") {
		f.overrides = append(f.overrides, func(c *config.Config) { c.Controller.Host = host })
	}
	if fs.Changed("port") {
		f.overrides = append(f.overrides, func(c *config.Config) { c.Controller.Port = port })
	}
	if fs.Changed("username") {
		f.overrides = append(f.overrides, func(c *config.Config) { c.Controller.Username = username })
	}
	if fs.Changed("password") {
		f.overrides = append(f.overrides, func(c *config.Config) { c.Controller.Password = password })
	}
	if fs.Changed("site") {
		f.overrides = append(f.overrides, func(c *config.Config) { c.Controller.Site = site })
	}
	if fs.Changed("insecure") {
		f.overrides = append(f.overrides, func(c *config.Config) { c.Controller.VerifyTLS = !insecure })
	}
	if fs.Changed("subsystem") {
		f.overrides = append(f.overrides, func(c *config.Config) { c.Controller.Subsystems = subsystems })
	}

	return &f, nil
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command line arguments without the program name
//   - stdout: Destination for --version output
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string, stdout io.Writer) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}
	if flags.showVersion {
		fmt.Fprintf(stdout, "unifi-mqtt %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	log := logging.Default()
	log.Info("starting unifi-mqtt",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(flags.configPath, flags.overrides...)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", flags.configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Status tracking, persisted when the database is enabled
	var db *database.DB
	var statusRepo status.Repository
	if cfg.Database.Enabled {
		db, err = database.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("database connected", "path", db.Path())

		if flags.migrateDown {
			if downErr := db.MigrateDown(ctx, migrations.FS); downErr != nil {
				return fmt.Errorf("rolling back migration: %w", downErr)
			}
			log.Info("latest database migration rolled back")
			return nil
		}

		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database migrations complete")
		statusRepo = status.NewSQLiteRepository(db.DB)
	} else {
		if flags.migrateDown {
			return fmt.Errorf("--migrate-down requires database.enabled")
		}
		log.Info("database disabled, status is kept in memory")
	}

	tracker := status.NewTracker(statusRepo)
	tracker.SetLogger(log)
	if loadErr := tracker.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading subsystem status: %w", loadErr)
	}

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
		"prefix", mqttClient.Topics().Prefix(),
		"events", mqttClient.Topics().AllEvents(),
	)

	// Connect to InfluxDB (optional)
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
	} else {
		log.Info("InfluxDB disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	ctrl, err := unifi.New(controllerOptions(cfg, log))
	if err != nil {
		return fmt.Errorf("creating controller: %w", err)
	}

	collector := metrics.NewCollector()
	handlers := []unifi.Handler{collector, tracker}
	if influxClient != nil {
		handlers = append(handlers, telemetry.NewRecorder(influxClient))
	}
	for _, h := range handlers {
		if addErr := ctrl.AddHandler(h); addErr != nil {
			return fmt.Errorf("registering handler: %w", addErr)
		}
	}

	tr := translator.New(mqttClient, mqttClient.Topics())
	tr.SetLogger(log)
	if attachErr := tr.Attach(ctrl); attachErr != nil {
		return fmt.Errorf("attaching translator: %w", attachErr)
	}

	if cfg.API.Enabled {
		deps := api.Deps{
			Config:     cfg.API,
			Logger:     log,
			Controller: ctrl,
			Status:     tracker,
			MQTT:       mqttClient,
			Metrics:    collector.Handler(),
			Version:    version,
		}
		// A nil *database.DB in the interface would pass the nil check.
		if db != nil {
			deps.Database = db
		}
		srv, apiErr := api.New(deps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error stopping API server", "error", closeErr)
			}
		}()
		log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)
	}

	log.Info("connecting to controller",
		"host", cfg.Controller.Host,
		"site", cfg.Controller.Site,
		"subsystems", ctrl.Subsystems(),
	)
	connectDone := make(chan struct{})
	go func() {
		defer close(connectDone)
		if connErr := ctrl.Connect(ctx); connErr != nil && !errors.Is(connErr, context.Canceled) {
			log.Error("controller connect cycle ended", "error", connErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	if closeErr := ctrl.Close(); closeErr != nil {
		log.Error("error closing controller", "error", closeErr)
	}
	<-connectDone
	ctrl.Wait()
	if detachErr := tr.Detach(ctrl); detachErr != nil {
		log.Warn("detaching translator", "error", detachErr)
	}

	log.Info("unifi-mqtt stopped")
	return nil
}

// controllerOptions maps the loaded configuration onto controller options.
func controllerOptions(cfg *config.Config, log *logging.Logger) unifi.Options {
	heartbeat := cfg.GetHeartbeatInterval()
	if heartbeat == 0 {
		// Zero in the file means off; zero in Options means the default.
		heartbeat = -1
	}
	return unifi.Options{
		Credentials: unifi.Credentials{
			Host:      cfg.Controller.Host,
			Port:      cfg.Controller.Port,
			Username:  cfg.Controller.Username,
			Password:  cfg.Controller.Password,
			Site:      cfg.Controller.Site,
			VerifyTLS: cfg.Controller.VerifyTLS,
		},
		Subsystems:          cfg.Controller.Subsystems,
		ReconnectInterval:   cfg.GetReconnectInterval(),
		HeartbeatInterval:   heartbeat,
		ProtectLastUpdateID: cfg.Controller.Protect.LastUpdateID,
		Logger:              log,
	}
}

// getConfigPath returns the configuration file path.
// Uses UNIFI_MQTT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// db and influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
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
