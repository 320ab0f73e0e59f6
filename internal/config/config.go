// Package config loads the host configuration: where data lives, how the
// coordinator paces itself, and where the remote service is.
//
// Precedence, lowest to highest: defaults, YAML file, environment
// (INITIATIVE_DB, INITIATIVE_REMOTE_URL, INITIATIVE_REMOTE_TOKEN), command
// flags. Flags are applied by the CLI after Load.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables read by Load.
const (
	EnvDB          = "INITIATIVE_DB"
	EnvRemoteURL   = "INITIATIVE_REMOTE_URL"
	EnvRemoteToken = "INITIATIVE_REMOTE_TOKEN"
)

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config is the full host configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Sync    SyncConfig    `yaml:"sync"`
	Remote  RemoteConfig  `yaml:"remote"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
	Schema  SchemaConfig  `yaml:"schema"`
}

// StorageConfig selects the durable medium.
type StorageConfig struct {
	Driver        string `yaml:"driver"`
	Path          string `yaml:"path"`
	Namespace     string `yaml:"namespace"`
	CapacityBytes int64  `yaml:"capacity_bytes"`
}

// SyncConfig paces the coordinator and the queue's retries.
type SyncConfig struct {
	Interval    time.Duration `yaml:"interval"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffMax  time.Duration `yaml:"backoff_max"`
}

// RemoteConfig locates the remote REST service.
type RemoteConfig struct {
	BaseURL       string        `yaml:"base_url"`
	Token         string        `yaml:"token"`
	HealthPath    string        `yaml:"health_path"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
	Timeout       time.Duration `yaml:"timeout"`
}

// MetricsConfig controls the Prometheus endpoint. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig controls the rotating log file used by long-running commands.
// Empty File logs to stderr only.
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// SchemaConfig selects payload schemas. Empty Path uses the built-in ones;
// Disabled turns schema checks off.
type SchemaConfig struct {
	Path     string `yaml:"path"`
	Disabled bool   `yaml:"disabled"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			Driver:    DriverSQLite,
			Path:      defaultDBPath(),
			Namespace: "initiative:",
		},
		Sync: SyncConfig{
			Interval:    30 * time.Second,
			BackoffBase: time.Second,
			BackoffMax:  30 * time.Second,
		},
		Remote: RemoteConfig{
			HealthPath:    "/health",
			ProbeInterval: 10 * time.Second,
			Timeout:       15 * time.Second,
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

func defaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "initiative.db"
	}
	return filepath.Join(dir, "initiative", "initiative.db")
}

// DefaultPath returns the config file location used when --config is not
// given: $XDG_CONFIG_HOME/initiative/config.yaml (or the OS equivalent).
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "initiative", "config.yaml")
}

// Load builds a Config from defaults, the file at path, and the
// environment. A missing file is not an error when path is the default.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := decode(bytes.NewReader(data), &cfg); err != nil {
				return Config{}, fmt.Errorf("config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvDB); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv(EnvRemoteURL); v != "" {
		cfg.Remote.BaseURL = v
	}
	if v := os.Getenv(EnvRemoteToken); v != "" {
		cfg.Remote.Token = v
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("storage.driver %q: want %q or %q", c.Storage.Driver, DriverSQLite, DriverMemory)
	}
	if c.Storage.CapacityBytes < 0 {
		return fmt.Errorf("storage.capacity_bytes must be >= 0")
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive")
	}
	if c.Sync.BackoffBase <= 0 || c.Sync.BackoffMax < c.Sync.BackoffBase {
		return fmt.Errorf("sync.backoff_base must be positive and <= sync.backoff_max")
	}
	if c.Remote.ProbeInterval <= 0 {
		return fmt.Errorf("remote.probe_interval must be positive")
	}
	return nil
}
