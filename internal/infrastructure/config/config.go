package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root of configs/config.yaml.
//
// Values resolve in three layers: built-in defaults, then the YAML file,
// then GRAYMACRO_* environment variables (see env.go).
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Engine    EngineConfig    `yaml:"engine"`
	Bridges   BridgesConfig   `yaml:"bridges"`
}

type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig locates the SQLite file holding macros, runs and
// variables. BusyTimeout is in seconds.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig is the broker shared by bridge requests, run events and the
// health relay.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig delays are in seconds. MaxAttempts 0 retries
// forever.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig holds HTTP server timeouts in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig lists browser origins allowed to call the API. Empty allows
// any origin.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig intervals are in seconds; MaxMessageSize is in bytes.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig enables run statistics export. FlushInterval is in
// seconds.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig guards the API with HS256 bearer tokens.
type JWTConfig struct {
	// Enabled requires a valid bearer token on every /api/v1 route
	// except health.
	Enabled bool   `yaml:"enabled"`
	Secret  string `yaml:"secret"`
	Issuer  string `yaml:"issuer"`
}

// EngineConfig bounds macro execution.
type EngineConfig struct {
	// MaxRunTime is the hard limit for a single run, in seconds.
	MaxRunTime int `yaml:"max_run_time"`

	// PollInterval is the default condition polling interval, in milliseconds.
	PollInterval int `yaml:"poll_interval"`

	// MaxLoopCount caps the iteration count a loop step may declare.
	MaxLoopCount int `yaml:"max_loop_count"`

	// MaxWait caps wait and condition timeouts, in seconds.
	MaxWait int `yaml:"max_wait"`

	// MaxCommandTime caps run_command timeouts, in seconds.
	MaxCommandTime int `yaml:"max_command_time"`

	// MaxItems caps the length of a macro's item list.
	MaxItems int `yaml:"max_items"`

	// DefaultThreshold is the image match confidence used when a step sets none.
	DefaultThreshold float64 `yaml:"default_threshold"`

	// AllowCommands enables the run_command step on this host.
	AllowCommands bool `yaml:"allow_commands"`
}

// BridgesConfig names the bridge protocols that serve input and vision
// requests over MQTT.
type BridgesConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Input          string `yaml:"input"`
	Vision         string `yaml:"vision"`
	RequestTimeout int    `yaml:"request_timeout"` // seconds
	PublishEvents  bool   `yaml:"publish_events"`
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. Unknown keys are rejected so a
// misspelt setting does not silently fall back to its default. A missing
// file yields an error matching fs.ErrNotExist.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in defaults with environment overrides
// applied, unvalidated. One-shot CLI commands use it when no config file
// exists.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{ID: "site-001", Name: "Gray Macro"},
		Database: DatabaseConfig{
			Path:        "./data/graymacro.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{Host: "localhost", Port: 1883, ClientID: "graymacro-core"},
			QoS:    1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host:     "127.0.0.1",
			Port:     8090,
			Timeouts: APITimeoutConfig{Read: 30, Write: 30, Idle: 60},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{BatchSize: 100, FlushInterval: 10},
		Logging:  LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		Security: SecurityConfig{
			JWT: JWTConfig{Enabled: true, Issuer: "graymacro"},
		},
		Engine: EngineConfig{
			MaxRunTime:       1800,
			PollInterval:     250,
			MaxLoopCount:     10000,
			MaxWait:          3600,
			MaxCommandTime:   600,
			MaxItems:         2000,
			DefaultThreshold: 0.9,
		},
		Bridges: BridgesConfig{
			Enabled:        true,
			Input:          "input",
			Vision:         "vision",
			RequestTimeout: 10,
		},
	}
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// ReadTimeout returns the HTTP read timeout.
func (t APITimeoutConfig) ReadTimeout() time.Duration { return seconds(t.Read) }

// WriteTimeout returns the HTTP write timeout.
func (t APITimeoutConfig) WriteTimeout() time.Duration { return seconds(t.Write) }

// IdleTimeout returns the HTTP keep-alive idle timeout.
func (t APITimeoutConfig) IdleTimeout() time.Duration { return seconds(t.Idle) }

// MaxRunTimeDuration returns the per-run limit.
func (e EngineConfig) MaxRunTimeDuration() time.Duration { return seconds(e.MaxRunTime) }

// PollIntervalDuration returns the default condition polling interval.
func (e EngineConfig) PollIntervalDuration() time.Duration {
	return time.Duration(e.PollInterval) * time.Millisecond
}

// MaxWaitDuration returns the cap on wait and condition timeouts.
func (e EngineConfig) MaxWaitDuration() time.Duration { return seconds(e.MaxWait) }

// MaxCommandDuration returns the cap on run_command timeouts.
func (e EngineConfig) MaxCommandDuration() time.Duration { return seconds(e.MaxCommandTime) }

// RequestTimeoutDuration returns how long a bridge request may take.
func (b BridgesConfig) RequestTimeoutDuration() time.Duration { return seconds(b.RequestTimeout) }
