package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
gpio:
  driver: "memory"
  active_low: false
  pins: [17, 18]
run:
  default_duration_minutes: 2.5
  pid_file: "/tmp/test.pid"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
api:
  host: "127.0.0.1"
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

	if cfg.GPIO.Driver != DriverMemory {
		t.Errorf("GPIO.Driver = %q, want %q", cfg.GPIO.Driver, DriverMemory)
	}
	if cfg.GPIO.ActiveLow {
		t.Error("GPIO.ActiveLow = true, want false")
	}
	if len(cfg.GPIO.Pins) != 2 || cfg.GPIO.Pins[0] != 17 {
		t.Errorf("GPIO.Pins = %v, want [17 18]", cfg.GPIO.Pins)
	}
	if cfg.Run.PIDFile != "/tmp/test.pid" {
		t.Errorf("Run.PIDFile = %q, want %q", cfg.Run.PIDFile, "/tmp/test.pid")
	}
	if cfg.DefaultDuration() != 150*time.Second {
		t.Errorf("DefaultDuration() = %v, want 2m30s", cfg.DefaultDuration())
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	// Unset sections keep their defaults
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want default 1883", cfg.MQTT.Broker.Port)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.GPIO.Driver != DriverRPIO {
		t.Errorf("GPIO.Driver = %q, want %q", cfg.GPIO.Driver, DriverRPIO)
	}
	if cfg.Run.DefaultDurationMinutes != 10 {
		t.Errorf("Run.DefaultDurationMinutes = %v, want 10", cfg.Run.DefaultDurationMinutes)
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
gpio:
  driver: "sysfs"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error for unknown driver, got nil")
	}
	if !strings.Contains(err.Error(), "gpio.driver") {
		t.Errorf("error = %v, want mention of gpio.driver", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.GPIO.Driver = "gpiod" },
			wantErr: true,
		},
		{
			name:    "mqtt driver without mqtt",
			mutate:  func(c *Config) { c.GPIO.Driver = DriverMQTT },
			wantErr: true,
		},
		{
			name: "mqtt driver with mqtt",
			mutate: func(c *Config) {
				c.GPIO.Driver = DriverMQTT
				c.MQTT.Enabled = true
			},
			wantErr: false,
		},
		{
			name:    "negative pin",
			mutate:  func(c *Config) { c.GPIO.Pins = []int{17, -1} },
			wantErr: true,
		},
		{
			name:    "negative default duration",
			mutate:  func(c *Config) { c.Run.DefaultDurationMinutes = -1 },
			wantErr: true,
		},
		{
			name:    "missing pid file",
			mutate:  func(c *Config) { c.Run.PIDFile = "" },
			wantErr: true,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name: "database disabled without path",
			mutate: func(c *Config) {
				c.Database.Enabled = false
				c.Database.Path = ""
			},
			wantErr: false,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "short JWT secret",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "short" },
			wantErr: true,
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

func TestConfig_ValidateServe(t *testing.T) {
	cfg := Default()
	if err := cfg.ValidateServe(); err == nil {
		t.Error("ValidateServe() expected error without JWT secret")
	}

	cfg.Security.JWT.Secret = "test-secret-key-at-least-32-chars!"
	if err := cfg.ValidateServe(); err != nil {
		t.Errorf("ValidateServe() error = %v", err)
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
		Run:      RunConfig{CleanupTimeout: 8},
		Security: SecurityConfig{JWT: JWTConfig{TokenTTL: 15}},
	}

	if got := cfg.GetReadTimeout(); got != 30*time.Second {
		t.Errorf("GetReadTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetWriteTimeout(); got != 45*time.Second {
		t.Errorf("GetWriteTimeout() = %v, want 45s", got)
	}
	if got := cfg.GetIdleTimeout(); got != 60*time.Second {
		t.Errorf("GetIdleTimeout() = %v, want 60s", got)
	}
	if got := cfg.GetCleanupTimeout(); got != 8*time.Second {
		t.Errorf("GetCleanupTimeout() = %v, want 8s", got)
	}
	if got := cfg.GetTokenTTL(); got != 15*time.Minute {
		t.Errorf("GetTokenTTL() = %v, want 15m", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("VALVECTL_GPIO_DRIVER", "memory")
	t.Setenv("VALVECTL_GPIO_ACTIVE_LOW", "false")
	t.Setenv("VALVECTL_PID_FILE", "/run/valvectl.pid")
	t.Setenv("VALVECTL_DATABASE_PATH", "/custom/path.db")
	t.Setenv("VALVECTL_MQTT_HOST", "mqtt.example.com")
	t.Setenv("VALVECTL_LOG_LEVEL", "debug")
	t.Setenv("VALVECTL_JWT_SECRET", "env-secret-key-at-least-32-chars!")

	cfg := Default()
	applyEnvOverrides(cfg)

	if cfg.GPIO.Driver != "memory" {
		t.Errorf("GPIO.Driver = %q, want %q", cfg.GPIO.Driver, "memory")
	}
	if cfg.GPIO.ActiveLow {
		t.Error("GPIO.ActiveLow = true, want false")
	}
	if cfg.Run.PIDFile != "/run/valvectl.pid" {
		t.Errorf("Run.PIDFile = %q, want %q", cfg.Run.PIDFile, "/run/valvectl.pid")
	}
	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Security.JWT.Secret != "env-secret-key-at-least-32-chars!" {
		t.Errorf("Security.JWT.Secret not overridden")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if !cfg.GPIO.ActiveLow {
		t.Error("default GPIO.ActiveLow = false, want true")
	}
	if cfg.Run.PIDFile != "/tmp/valve_controller.pid" {
		t.Errorf("default Run.PIDFile = %q", cfg.Run.PIDFile)
	}
	if cfg.MQTT.QoS != 1 {
		t.Errorf("default MQTT.QoS = %d, want 1", cfg.MQTT.QoS)
	}
	if cfg.API.Port != 3000 {
		t.Errorf("default API.Port = %d, want 3000", cfg.API.Port)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("default Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
}
