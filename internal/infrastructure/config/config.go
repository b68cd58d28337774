package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for valvectl.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	GPIO      GPIOConfig      `yaml:"gpio"`
	Run       RunConfig       `yaml:"run"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// Driver names accepted in gpio.driver.
const (
	DriverRPIO   = "rpio"
	DriverMQTT   = "mqtt"
	DriverMemory = "memory"
)

// GPIOConfig selects and configures the output channel driver.
type GPIOConfig struct {
	// Driver is one of "rpio", "mqtt" or "memory".
	Driver string `yaml:"driver"`

	// ActiveLow maps the logical active level to an electrical LOW.
	// Most opto-isolated relay boards are active-low.
	ActiveLow bool `yaml:"active_low"`

	// ReleaseOnCleanup switches pins back to input mode during final teardown.
	// Leave false on boards where a floating input energises the relay.
	ReleaseOnCleanup bool `yaml:"release_on_cleanup"`

	// Pins lists the BCM channel numbers wired to relays. Used by `valvectl init`.
	Pins []int `yaml:"pins"`
}

// RunConfig contains defaults for a single actuation run.
type RunConfig struct {
	// DefaultDurationMinutes applies to records without a duration.
	DefaultDurationMinutes float64 `yaml:"default_duration_minutes"`

	// PIDFile is where `valvectl run` records its PID for `valvectl stop`.
	PIDFile string `yaml:"pid_file"`

	// CleanupTimeout bounds final hardware teardown, in seconds.
	CleanupTimeout int `yaml:"cleanup_timeout"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
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
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix string              `yaml:"topic_prefix"`
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
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
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
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
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

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret string `yaml:"secret"`
	// TokenTTL is the default lifetime of minted tokens, in minutes.
	TokenTTL int `yaml:"token_ttl"`
}

// minJWTSecretLength is the shortest HMAC secret accepted for the API.
const minJWTSecretLength = 32

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: VALVECTL_SECTION_KEY
// For example: VALVECTL_DATABASE_PATH, VALVECTL_GPIO_DRIVER
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for defaults only
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

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

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults for a Raspberry Pi relay board.
func Default() *Config {
	return &Config{
		GPIO: GPIOConfig{
			Driver:    DriverRPIO,
			ActiveLow: true,
			Pins:      []int{17, 27, 22, 5, 6, 13, 19, 26},
		},
		Run: RunConfig{
			DefaultDurationMinutes: 10,
			PIDFile:                "/tmp/valve_controller.pid",
			CleanupTimeout:         5,
		},
		Database: DatabaseConfig{
			Enabled:     true,
			Path:        "./data/valvectl.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "valvectl",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix: "valvectl",
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
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				TokenTTL: 1440,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: VALVECTL_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// GPIO
	if v := os.Getenv("VALVECTL_GPIO_DRIVER"); v != "" {
		cfg.GPIO.Driver = v
	}
	if v := os.Getenv("VALVECTL_GPIO_ACTIVE_LOW"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.GPIO.ActiveLow = b
		}
	}

	// Run
	if v := os.Getenv("VALVECTL_PID_FILE"); v != "" {
		cfg.Run.PIDFile = v
	}

	// Database
	if v := os.Getenv("VALVECTL_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("VALVECTL_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("VALVECTL_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("VALVECTL_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("VALVECTL_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("VALVECTL_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("VALVECTL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Security
	if v := os.Getenv("VALVECTL_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	switch c.GPIO.Driver {
	case DriverRPIO, DriverMemory:
	case DriverMQTT:
		if !c.MQTT.Enabled {
			errs = append(errs, "gpio.driver mqtt requires mqtt.enabled")
		}
	default:
		errs = append(errs, fmt.Sprintf("gpio.driver must be one of rpio, mqtt, memory (got %q)", c.GPIO.Driver))
	}
	for _, pin := range c.GPIO.Pins {
		if pin < 0 {
			errs = append(errs, fmt.Sprintf("gpio.pins contains negative pin %d", pin))
		}
	}

	if c.Run.DefaultDurationMinutes < 0 {
		errs = append(errs, "run.default_duration_minutes must not be negative")
	}
	if c.Run.PIDFile == "" {
		errs = append(errs, "run.pid_file is required")
	}
	if c.Run.CleanupTimeout < 0 {
		errs = append(errs, "run.cleanup_timeout must not be negative")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Security.JWT.Secret != "" && len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ValidateServe checks settings only the HTTP service needs.
// The API drives physical valves, so it refuses to start without a token secret.
func (c *Config) ValidateServe() error {
	if c.Security.JWT.Secret == "" {
		return fmt.Errorf("security.jwt.secret is required (set VALVECTL_JWT_SECRET environment variable)")
	}
	return nil
}

// DefaultDuration returns run.default_duration_minutes as a Duration.
func (c *Config) DefaultDuration() time.Duration {
	return time.Duration(c.Run.DefaultDurationMinutes * float64(time.Minute))
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

// GetCleanupTimeout returns run.cleanup_timeout as a Duration.
func (c *Config) GetCleanupTimeout() time.Duration {
	return time.Duration(c.Run.CleanupTimeout) * time.Second
}

// GetTokenTTL returns security.jwt.token_ttl as a Duration.
func (c *Config) GetTokenTTL() time.Duration {
	return time.Duration(c.Security.JWT.TokenTTL) * time.Minute
}
