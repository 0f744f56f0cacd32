package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
registry:
  query_url: "http://registry.local:8870/x-nmos/query/v1.3"
  registration_url: "http://registry.local:8870/x-nmos/registration/v1.3"
  heartbeat_interval: 5
discovery:
  max_update_rate_ms: 250
  reconnect:
    initial_delay_ms: 500
    max_delay_ms: 10000
    multiplier: 2
    max_attempts: 4
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8080
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Registry.QueryURL != "http://registry.local:8870/x-nmos/query/v1.3" {
		t.Errorf("Registry.QueryURL = %q", cfg.Registry.QueryURL)
	}
	if cfg.Discovery.MaxUpdateRateMS != 250 {
		t.Errorf("Discovery.MaxUpdateRateMS = %d, want 250", cfg.Discovery.MaxUpdateRateMS)
	}
	if cfg.Discovery.Reconnect.Multiplier != 2 {
		t.Errorf("Discovery.Reconnect.Multiplier = %v, want 2", cfg.Discovery.Reconnect.Multiplier)
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	// Unset values keep their defaults.
	if cfg.Connection.RequestTimeout != 5 {
		t.Errorf("Connection.RequestTimeout = %d, want default 5", cfg.Connection.RequestTimeout)
	}
	if !cfg.Discovery.Persist {
		t.Error("Discovery.Persist = false, want default true")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
registry:
  query_url: "ftp://registry.local/"
api:
  port: 8080
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for non-http query_url, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(_ *Config) {},
			wantErr: false,
		},
		{
			name: "valid registry urls",
			mutate: func(c *Config) {
				c.Registry.QueryURL = "https://registry/x-nmos/query/v1.3"
				c.Registry.RegistrationURL = "http://registry/x-nmos/registration/v1.3"
			},
			wantErr: false,
		},
		{
			name:    "query url without host",
			mutate:  func(c *Config) { c.Registry.QueryURL = "http://" },
			wantErr: true,
		},
		{
			name:    "zero registry timeout",
			mutate:  func(c *Config) { c.Registry.RequestTimeout = 0 },
			wantErr: true,
		},
		{
			name: "registration without heartbeat",
			mutate: func(c *Config) {
				c.Registry.RegistrationURL = "http://registry/x-nmos/registration/v1.3"
				c.Registry.HeartbeatInterval = 0
			},
			wantErr: true,
		},
		{
			name:    "max delay below initial",
			mutate:  func(c *Config) { c.Discovery.Reconnect.MaxDelayMS = 10 },
			wantErr: true,
		},
		{
			name:    "multiplier below one",
			mutate:  func(c *Config) { c.Discovery.Reconnect.Multiplier = 0.5 },
			wantErr: true,
		},
		{
			name:    "no reconnect attempts",
			mutate:  func(c *Config) { c.Discovery.Reconnect.MaxAttempts = 0 },
			wantErr: true,
		},
		{
			name:    "history without database",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name: "history disabled without database",
			mutate: func(c *Config) {
				c.Database.Path = ""
				c.Connection.HistoryEnabled = false
			},
			wantErr: false,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name: "mqtt enabled without prefix",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.TopicPrefix = ""
			},
			wantErr: true,
		},
		{
			name:    "invalid port low",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "zero websocket ping interval",
			mutate:  func(c *Config) { c.WebSocket.PingInterval = 0 },
			wantErr: true,
		},
		{
			name:    "influxdb enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: true,
		},
		{
			name: "influxdb enabled",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.URL = "http://influx:8086"
				c.InfluxDB.Bucket = "nmos"
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
		Registry:   RegistryConfig{RequestTimeout: 3, HeartbeatInterval: 7},
		Connection: ConnectionConfig{RequestTimeout: 4},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
	if got := cfg.RegistryTimeout(); got != 3*time.Second {
		t.Errorf("RegistryTimeout() = %v, want 3s", got)
	}
	if got := cfg.ConnectionTimeout(); got != 4*time.Second {
		t.Errorf("ConnectionTimeout() = %v, want 4s", got)
	}
	if got := cfg.HeartbeatInterval(); got != 7*time.Second {
		t.Errorf("HeartbeatInterval() = %v, want 7s", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()

	t.Setenv("VEGA_REGISTRY_QUERY_URL", "http://registry:8870/x-nmos/query/v1.3")
	t.Setenv("VEGA_REGISTRY_REGISTRATION_URL", "http://registry:8870/x-nmos/registration/v1.3")
	t.Setenv("VEGA_REGISTRY_HEARTBEAT_INTERVAL", "9")
	t.Setenv("VEGA_NODE_HOSTNAME", "panel-01")
	t.Setenv("VEGA_DATABASE_PATH", "/custom/path.db")
	t.Setenv("VEGA_MQTT_HOST", "mqtt.example.com")
	t.Setenv("VEGA_MQTT_USERNAME", "testuser")
	t.Setenv("VEGA_MQTT_PASSWORD", "testpass")
	t.Setenv("VEGA_API_HOST", "192.168.1.1")
	t.Setenv("VEGA_API_PORT", "9090")
	t.Setenv("VEGA_INFLUXDB_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

	if cfg.Registry.QueryURL != "http://registry:8870/x-nmos/query/v1.3" {
		t.Errorf("Registry.QueryURL = %q", cfg.Registry.QueryURL)
	}
	if cfg.Registry.RegistrationURL != "http://registry:8870/x-nmos/registration/v1.3" {
		t.Errorf("Registry.RegistrationURL = %q", cfg.Registry.RegistrationURL)
	}
	if cfg.Registry.HeartbeatInterval != 9 {
		t.Errorf("Registry.HeartbeatInterval = %d, want 9", cfg.Registry.HeartbeatInterval)
	}
	if cfg.Node.Hostname != "panel-01" {
		t.Errorf("Node.Hostname = %q, want %q", cfg.Node.Hostname, "panel-01")
	}
	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
}

func TestApplyEnvOverrides_Toggles(t *testing.T) {
	cfg := Default()
	t.Setenv("VEGA_MQTT_ENABLED", "true")
	t.Setenv("VEGA_MQTT_PORT", "8883")
	t.Setenv("VEGA_INFLUXDB_ENABLED", "1")
	t.Setenv("VEGA_INFLUXDB_URL", "http://influx:8086")
	t.Setenv("VEGA_DISCOVERY_AUTO", "false")
	t.Setenv("VEGA_NODE_ID", "3b8be755-08ff-452b-b217-c9151eb21193")
	t.Setenv("VEGA_LOG_LEVEL", "debug")

	applyEnvOverrides(cfg)

	if !cfg.MQTT.Enabled || cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT = enabled:%v port:%d", cfg.MQTT.Enabled, cfg.MQTT.Broker.Port)
	}
	if !cfg.InfluxDB.Enabled || cfg.InfluxDB.URL != "http://influx:8086" {
		t.Errorf("InfluxDB = %+v", cfg.InfluxDB)
	}
	if cfg.Discovery.AutoDiscover {
		t.Error("Discovery.AutoDiscover still true")
	}
	if cfg.Node.ID != "3b8be755-08ff-452b-b217-c9151eb21193" || cfg.Logging.Level != "debug" {
		t.Errorf("Node.ID = %q Logging.Level = %q", cfg.Node.ID, cfg.Logging.Level)
	}
}

func TestApplyEnvOverrides_IgnoresUnparsable(t *testing.T) {
	cfg := Default()
	t.Setenv("VEGA_API_PORT", "not-a-port")
	t.Setenv("VEGA_MQTT_ENABLED", "sometimes")

	applyEnvOverrides(cfg)

	if cfg.API.Port != 3000 {
		t.Errorf("API.Port = %d, want default 3000", cfg.API.Port)
	}
	if cfg.MQTT.Enabled {
		t.Error("MQTT.Enabled flipped by an unparsable value")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Database.Path == "" {
		t.Error("Default should have non-empty Database.Path")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("Default MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 3000 {
		t.Errorf("Default API.Port = %d, want 3000", cfg.API.Port)
	}

	rc := cfg.Discovery.Reconnect
	if rc.InitialDelayMS != 1000 || rc.MaxDelayMS != 30000 || rc.Multiplier != 1.5 || rc.MaxAttempts != 10 {
		t.Errorf("Default reconnect = %+v, want 1000/30000/1.5/10", rc)
	}
	if cfg.Discovery.MaxUpdateRateMS != 100 {
		t.Errorf("Default MaxUpdateRateMS = %d, want 100", cfg.Discovery.MaxUpdateRateMS)
	}
}
