package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the bridge.
// All configuration is loaded from YAML and can be overridden by environment
// variables and command-line flags.
type Config struct {
	Controller ControllerConfig `yaml:"controller"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Database   DatabaseConfig   `yaml:"database"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	API        APIConfig        `yaml:"api"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ControllerConfig contains the UniFi controller connection settings.
type ControllerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Site     string `yaml:"site"`

	// VerifyTLS controls certificate verification for both the REST session
	// and the streaming connections. Self-signed consoles need false.
	VerifyTLS bool `yaml:"verify_tls"`

	// Subsystems lists the event sources to stream: network, access, protect.
	Subsystems []string `yaml:"subsystems"`

	// ReconnectInterval is the fixed delay before a reconnect cycle (seconds).
	ReconnectInterval int `yaml:"reconnect_interval"`

	// HeartbeatInterval is the websocket ping interval (seconds). 0 disables it.
	HeartbeatInterval int `yaml:"heartbeat_interval"`

	Protect ProtectConfig `yaml:"protect"`
}

// ProtectConfig contains settings specific to the protect subsystem.
type ProtectConfig struct {
	// LastUpdateID resumes the update stream from a known cursor.
	LastUpdateID string `yaml:"last_update_id"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Retain      bool                `yaml:"retain"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// DatabaseConfig contains SQLite settings for the subsystem status store.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Override mutates a loaded configuration before validation.
// Command-line flags are applied through overrides.
type Override func(*Config)

// Load reads configuration from a YAML file and applies overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (skipped when path is empty)
//  3. Environment variables (UNIFI_MQTT_SECTION_KEY)
//  4. Overrides, in the order given
//
// The result is validated after all layers are applied.
func Load(path string, overrides ...Override) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	for _, o := range overrides {
		if o != nil {
			o(cfg)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Controller: ControllerConfig{
			Host:              "unifi",
			Port:              443,
			Site:              "default",
			VerifyTLS:         true,
			Subsystems:        []string{"network"},
			ReconnectInterval: 5,
			HeartbeatInterval: 15,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "unifi-mqtt",
			},
			QoS:         1,
			TopicPrefix: "unifi",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Database: DatabaseConfig{
			Enabled:     true,
			Path:        "./data/unifi-mqtt.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: UNIFI_MQTT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Controller
	if v := os.Getenv("UNIFI_MQTT_CONTROLLER_HOST"); v != "" {
		cfg.Controller.Host = v
	}
	if v := os.Getenv("UNIFI_MQTT_CONTROLLER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Controller.Port = port
		}
	}
	if v := os.Getenv("UNIFI_MQTT_CONTROLLER_USERNAME"); v != "" {
		cfg.Controller.Username = v
	}
	if v := os.Getenv("UNIFI_MQTT_CONTROLLER_PASSWORD"); v != "" {
		cfg.Controller.Password = v
	}
	if v := os.Getenv("UNIFI_MQTT_CONTROLLER_SITE"); v != "" {
		cfg.Controller.Site = v
	}
	if v := os.Getenv("UNIFI_MQTT_CONTROLLER_SUBSYSTEMS"); v != "" {
		cfg.Controller.Subsystems = splitList(v)
	}

	// MQTT
	if v := os.Getenv("UNIFI_MQTT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("UNIFI_MQTT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("UNIFI_MQTT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("UNIFI_MQTT_MQTT_TOPIC_PREFIX"); v != "" {
		cfg.MQTT.TopicPrefix = v
	}

	// Database
	if v := os.Getenv("UNIFI_MQTT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API
	if v := os.Getenv("UNIFI_MQTT_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("UNIFI_MQTT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Controller validation
	if c.Controller.Host == "" {
		errs = append(errs, "controller.host is required")
	}
	if c.Controller.Port < 1 || c.Controller.Port > 65535 {
		errs = append(errs, "controller.port must be between 1 and 65535")
	}
	if c.Controller.Site == "" {
		errs = append(errs, "controller.site is required")
	}
	if len(c.Controller.Subsystems) == 0 {
		errs = append(errs, "controller.subsystems must name at least one subsystem")
	}
	if c.Controller.ReconnectInterval < 0 {
		errs = append(errs, "controller.reconnect_interval must not be negative")
	}
	if c.Controller.HeartbeatInterval < 0 {
		errs = append(errs, "controller.heartbeat_interval must not be negative")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required")
	} else if strings.ContainsAny(c.MQTT.TopicPrefix, "+#") {
		errs = append(errs, "mqtt.topic_prefix must not contain wildcards")
	}

	// Database validation
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReconnectInterval returns the controller reconnect delay as a Duration.
func (c *Config) GetReconnectInterval() time.Duration {
	return time.Duration(c.Controller.ReconnectInterval) * time.Second
}

// GetHeartbeatInterval returns the websocket heartbeat interval as a Duration.
func (c *Config) GetHeartbeatInterval() time.Duration {
	return time.Duration(c.Controller.HeartbeatInterval) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
