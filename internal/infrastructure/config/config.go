package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for FleetGate.
// All configuration is loaded from YAML and can be overridden by
// environment variables.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Broker    BrokerConfig    `yaml:"broker"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// BrokerConfig contains the shared MQTT broker connection settings.
//
// Per-device credentials come from device records; the broker address is
// the single process-wide setting and its absence is a fatal
// configuration error at startup.
type BrokerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	TLS            bool   `yaml:"tls"`
	ConnectTimeout int    `yaml:"connect_timeout"`
	RetryInterval  int    `yaml:"retry_interval"`
}

// URL returns the broker address in paho URL form.
func (b BrokerConfig) URL() string {
	scheme := "tcp"
	if b.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, b.Host, b.Port)
}

// GetConnectTimeout returns the broker connect timeout as a Duration.
func (b BrokerConfig) GetConnectTimeout() time.Duration {
	return time.Duration(b.ConnectTimeout) * time.Second
}

// GetRetryInterval returns the reconnect retry interval as a Duration.
func (b BrokerConfig) GetRetryInterval() time.Duration {
	return time.Duration(b.RetryInterval) * time.Second
}

// SchedulerConfig contains scheduled-publication engine settings.
type SchedulerConfig struct {
	// Interval is the due-processing poll interval in seconds.
	Interval int `yaml:"interval"`
}

// GetInterval returns the scheduler poll interval as a Duration.
func (s SchedulerConfig) GetInterval() time.Duration {
	return time.Duration(s.Interval) * time.Second
}

// InfluxDBConfig contains the optional telemetry mirror settings.
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

// Load reads configuration from a YAML file and applies environment
// variable overrides.
//
// The loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern FLEETGATE_SECTION_KEY, for
// example FLEETGATE_DATABASE_PATH or FLEETGATE_BROKER_HOST.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

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

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/fleetgate.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Broker: BrokerConfig{
			Port:           1883,
			ConnectTimeout: 10,
			RetryInterval:  10,
		},
		Scheduler: SchedulerConfig{
			Interval: 60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the
// configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FLEETGATE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("FLEETGATE_BROKER_HOST"); v != "" {
		cfg.Broker.Host = v
	}
	if v := os.Getenv("FLEETGATE_BROKER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Broker.Port = port
		}
	}

	if v := os.Getenv("FLEETGATE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// The broker host is required: FleetGate cannot establish any device
// connection without it, so a missing address fails startup rather than
// individual operations.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.Broker.Host == "" {
		errs = append(errs, "broker.host is required (set FLEETGATE_BROKER_HOST environment variable)")
	}
	if c.Broker.Port < 1 || c.Broker.Port > 65535 {
		errs = append(errs, "broker.port must be between 1 and 65535")
	}
	if c.Broker.ConnectTimeout < 1 {
		errs = append(errs, "broker.connect_timeout must be at least 1 second")
	}
	if c.Broker.RetryInterval < 1 {
		errs = append(errs, "broker.retry_interval must be at least 1 second")
	}

	if c.Scheduler.Interval < 1 {
		errs = append(errs, "scheduler.interval must be at least 1 second")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
