package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Vega.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Node       NodeConfig       `yaml:"node"`
	Registry   RegistryConfig   `yaml:"registry"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	Connection ConnectionConfig `yaml:"connection"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// NodeConfig describes the identity this service announces to the registry.
//
// Empty IDs are generated at startup, so a restart registers a fresh node
// unless IDs are pinned in the config file.
type NodeConfig struct {
	ID       string `yaml:"id"`
	DeviceID string `yaml:"device_id"`
	Label    string `yaml:"label"`
	Hostname string `yaml:"hostname"`
	// Href is the externally reachable base address of this service.
	// Defaults to http://{hostname}:{api.port}/
	Href string `yaml:"href"`
}

// RegistryConfig contains registry endpoints and request settings.
type RegistryConfig struct {
	// QueryURL is the registry Query API base, e.g. http://registry:8870/x-nmos/query/v1.3
	QueryURL string `yaml:"query_url"`

	// RegistrationURL is the registry Registration API base. Empty disables
	// self-registration.
	RegistrationURL string `yaml:"registration_url"`

	// HeartbeatInterval is the node heartbeat period in seconds.
	HeartbeatInterval int `yaml:"heartbeat_interval"`

	// RequestTimeout bounds every registry HTTP call, in seconds.
	RequestTimeout int `yaml:"request_timeout"`
}

// DiscoveryConfig contains synchronisation engine settings.
type DiscoveryConfig struct {
	// AutoDiscover runs discovery against registry.query_url at startup.
	// Ignored when no query URL is configured.
	AutoDiscover bool `yaml:"auto_discover"`

	// MaxUpdateRateMS is requested from the registry for each subscription.
	MaxUpdateRateMS int `yaml:"max_update_rate_ms"`

	// Persist requests persistent subscriptions on the registry.
	Persist bool `yaml:"persist"`

	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig contains push-channel reconnection settings.
type ReconnectConfig struct {
	InitialDelayMS int     `yaml:"initial_delay_ms"`
	MaxDelayMS     int     `yaml:"max_delay_ms"`
	Multiplier     float64 `yaml:"multiplier"`
	MaxAttempts    int     `yaml:"max_attempts"`
}

// ConnectionConfig contains connection orchestrator settings.
type ConnectionConfig struct {
	// RequestTimeout bounds every device control call, in seconds.
	RequestTimeout int `yaml:"request_timeout"`

	// HistoryEnabled records each connect/disconnect attempt in SQLite.
	HistoryEnabled bool `yaml:"history_enabled"`

	// HistoryRetentionHours prunes history rows older than this. 0 keeps everything.
	HistoryRetentionHours int `yaml:"history_retention_hours"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
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
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
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

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern VEGA_SECTION_KEY, e.g.
// VEGA_REGISTRY_QUERY_URL or VEGA_API_PORT. See envOverrides for the list.
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
//
// It is also used directly by one-shot CLI commands that run without a
// config file.
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			Label: "Vega NMOS Control Panel",
		},
		Registry: RegistryConfig{
			HeartbeatInterval: 5,
			RequestTimeout:    5,
		},
		Discovery: DiscoveryConfig{
			AutoDiscover:    true,
			MaxUpdateRateMS: 100,
			Persist:         true,
			Reconnect: ReconnectConfig{
				InitialDelayMS: 1000,
				MaxDelayMS:     30000,
				Multiplier:     1.5,
				MaxAttempts:    10,
			},
		},
		Connection: ConnectionConfig{
			RequestTimeout:        5,
			HistoryEnabled:        true,
			HistoryRetentionHours: 24 * 7,
		},
		Database: DatabaseConfig{
			Path:        "./data/vega.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: false,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "vega-core",
			},
			QoS:         1,
			TopicPrefix: "vega",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 3000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// envPrefix starts every override variable.
const envPrefix = "VEGA_"

// envOverrides maps VEGA_* variables onto config fields. Numeric and
// boolean values that fail to parse are ignored.
var envOverrides = map[string]func(*Config, string){
	"REGISTRY_QUERY_URL":        func(c *Config, v string) { c.Registry.QueryURL = v },
	"REGISTRY_REGISTRATION_URL": func(c *Config, v string) { c.Registry.RegistrationURL = v },
	"REGISTRY_HEARTBEAT_INTERVAL": func(c *Config, v string) {
		setInt(&c.Registry.HeartbeatInterval, v)
	},
	"NODE_ID":        func(c *Config, v string) { c.Node.ID = v },
	"NODE_HOSTNAME":  func(c *Config, v string) { c.Node.Hostname = v },
	"NODE_HREF":      func(c *Config, v string) { c.Node.Href = v },
	"DISCOVERY_AUTO": func(c *Config, v string) { setBool(&c.Discovery.AutoDiscover, v) },
	"DATABASE_PATH":  func(c *Config, v string) { c.Database.Path = v },
	"MQTT_ENABLED":   func(c *Config, v string) { setBool(&c.MQTT.Enabled, v) },
	"MQTT_HOST":      func(c *Config, v string) { c.MQTT.Broker.Host = v },
	"MQTT_PORT":      func(c *Config, v string) { setInt(&c.MQTT.Broker.Port, v) },
	"MQTT_USERNAME":  func(c *Config, v string) { c.MQTT.Auth.Username = v },
	"MQTT_PASSWORD":  func(c *Config, v string) { c.MQTT.Auth.Password = v },
	"API_HOST":       func(c *Config, v string) { c.API.Host = v },
	"API_PORT":       func(c *Config, v string) { setInt(&c.API.Port, v) },
	"INFLUXDB_ENABLED": func(c *Config, v string) {
		setBool(&c.InfluxDB.Enabled, v)
	},
	"INFLUXDB_URL":   func(c *Config, v string) { c.InfluxDB.URL = v },
	"INFLUXDB_TOKEN": func(c *Config, v string) { c.InfluxDB.Token = v },
	"LOG_LEVEL":      func(c *Config, v string) { c.Logging.Level = v },
}

// applyEnvOverrides applies every non-empty VEGA_* variable in envOverrides.
func applyEnvOverrides(cfg *Config) {
	for key, apply := range envOverrides {
		if v := os.Getenv(envPrefix + key); v != "" {
			apply(cfg, v)
		}
	}
}

func setInt(dst *int, v string) {
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func setBool(dst *bool, v string) {
	if b, err := strconv.ParseBool(v); err == nil {
		*dst = b
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Registry validation
	if c.Registry.QueryURL != "" && !isHTTPURL(c.Registry.QueryURL) {
		errs = append(errs, "registry.query_url must be an http(s) URL")
	}
	if c.Registry.RegistrationURL != "" && !isHTTPURL(c.Registry.RegistrationURL) {
		errs = append(errs, "registry.registration_url must be an http(s) URL")
	}
	if c.Registry.RequestTimeout <= 0 {
		errs = append(errs, "registry.request_timeout must be positive")
	}
	if c.Registry.RegistrationURL != "" && c.Registry.HeartbeatInterval <= 0 {
		errs = append(errs, "registry.heartbeat_interval must be positive when registration is enabled")
	}

	// Discovery validation
	if c.Discovery.MaxUpdateRateMS < 0 {
		errs = append(errs, "discovery.max_update_rate_ms must not be negative")
	}
	rc := c.Discovery.Reconnect
	if rc.InitialDelayMS <= 0 || rc.MaxDelayMS < rc.InitialDelayMS {
		errs = append(errs, "discovery.reconnect delays must satisfy 0 < initial_delay_ms <= max_delay_ms")
	}
	if rc.Multiplier < 1 {
		errs = append(errs, "discovery.reconnect.multiplier must be at least 1")
	}
	if rc.MaxAttempts <= 0 {
		errs = append(errs, "discovery.reconnect.max_attempts must be positive")
	}

	// Connection validation
	if c.Connection.RequestTimeout <= 0 {
		errs = append(errs, "connection.request_timeout must be positive")
	}
	if c.Connection.HistoryEnabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when connection.history_enabled is set")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.PongTimeout <= 0 {
		errs = append(errs, "websocket.ping_interval and websocket.pong_timeout must be positive")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && (!isHTTPURL(c.InfluxDB.URL) || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// isHTTPURL reports whether raw parses as an absolute http or https URL.
func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
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

// RegistryTimeout returns the registry request timeout as a Duration.
func (c *Config) RegistryTimeout() time.Duration {
	return time.Duration(c.Registry.RequestTimeout) * time.Second
}

// ConnectionTimeout returns the device control request timeout as a Duration.
func (c *Config) ConnectionTimeout() time.Duration {
	return time.Duration(c.Connection.RequestTimeout) * time.Second
}

// HeartbeatInterval returns the registration heartbeat period as a Duration.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Registry.HeartbeatInterval) * time.Second
}
