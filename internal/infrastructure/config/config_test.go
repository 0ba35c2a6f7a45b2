package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeConfigFile writes a temporary config file and returns its path.
func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Run("loads valid config", func(t *testing.T) {
		path := writeConfigFile(t, `
database:
  path: /tmp/test.db
broker:
  host: broker.example.com
  port: 8883
  tls: true
scheduler:
  interval: 30
`)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Broker.Host != "broker.example.com" {
			t.Errorf("Broker.Host = %q, want %q", cfg.Broker.Host, "broker.example.com")
		}
		if cfg.Broker.URL() != "ssl://broker.example.com:8883" {
			t.Errorf("Broker.URL() = %q", cfg.Broker.URL())
		}
		if cfg.Scheduler.Interval != 30 {
			t.Errorf("Scheduler.Interval = %d, want 30", cfg.Scheduler.Interval)
		}
	})

	t.Run("defaults applied", func(t *testing.T) {
		path := writeConfigFile(t, `
broker:
  host: localhost
`)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Broker.Port != 1883 {
			t.Errorf("Broker.Port = %d, want default 1883", cfg.Broker.Port)
		}
		if cfg.Scheduler.Interval != 60 {
			t.Errorf("Scheduler.Interval = %d, want default 60", cfg.Scheduler.Interval)
		}
		if cfg.Logging.Level != "info" {
			t.Errorf("Logging.Level = %q, want default info", cfg.Logging.Level)
		}
	})

	t.Run("missing broker host is fatal", func(t *testing.T) {
		path := writeConfigFile(t, `
database:
  path: /tmp/test.db
`)
		_, err := Load(path)
		if err == nil {
			t.Fatal("Load() expected error for missing broker host")
		}
		if !strings.Contains(err.Error(), "broker.host") {
			t.Errorf("error %q does not mention broker.host", err)
		}
	})

	t.Run("env override wins", func(t *testing.T) {
		t.Setenv("FLEETGATE_BROKER_HOST", "env-broker")
		path := writeConfigFile(t, `
broker:
  host: file-broker
`)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Broker.Host != "env-broker" {
			t.Errorf("Broker.Host = %q, want env override", cfg.Broker.Host)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := Load("/nonexistent/config.yaml"); err == nil {
			t.Error("Load() expected error for missing file")
		}
	})
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := defaultConfig()
		cfg.Broker.Host = "localhost"
		return cfg
	}

	t.Run("valid", func(t *testing.T) {
		if err := base().Validate(); err != nil {
			t.Errorf("Validate() error = %v", err)
		}
	})

	t.Run("bad port", func(t *testing.T) {
		cfg := base()
		cfg.Broker.Port = 0
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for port 0")
		}
	})

	t.Run("influx enabled without url", func(t *testing.T) {
		cfg := base()
		cfg.InfluxDB.Enabled = true
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for enabled influx without url")
		}
	})
}
