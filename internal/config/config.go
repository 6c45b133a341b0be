// Package config loads engine configuration from $TLT_HOME/config.yaml with
// TLT_* environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime settings for the engine and its CLI.
type Config struct {
	// Home is the base directory for all engine state.
	Home string `mapstructure:"-" yaml:"-"`

	// OwnerID identifies the worker whose shifts this device records.
	OwnerID string `mapstructure:"owner_id" yaml:"owner_id"`

	// DeviceID identifies this device to the remote service.
	DeviceID string `mapstructure:"device_id" yaml:"device_id"`

	Remote    RemoteConfig    `mapstructure:"remote" yaml:"remote"`
	Sync      SyncConfig      `mapstructure:"sync" yaml:"sync"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Dashboard DashboardConfig `mapstructure:"dashboard" yaml:"dashboard"`
	Geocode   GeocodeConfig   `mapstructure:"geocode" yaml:"geocode"`
}

// RemoteConfig configures the sync service client.
type RemoteConfig struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey  string        `mapstructure:"api_key" yaml:"api_key"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// SyncConfig configures the orchestrator and scheduler.
type SyncConfig struct {
	BatchSize         int           `mapstructure:"batch_size" yaml:"batch_size"`
	MaxAttempts       int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	AllowMetered      bool          `mapstructure:"allow_metered" yaml:"allow_metered"`
	MeteredBatchLimit int           `mapstructure:"metered_batch_limit" yaml:"metered_batch_limit"`
	UnmeteredDelay    time.Duration `mapstructure:"unmetered_delay" yaml:"unmetered_delay"`
	MeteredDelay      time.Duration `mapstructure:"metered_delay" yaml:"metered_delay"`
	BulkInterval      time.Duration `mapstructure:"bulk_interval" yaml:"bulk_interval"`

	// NetworkStateFile is the JSON file the platform shim writes network
	// class changes to.
	NetworkStateFile string `mapstructure:"network_state_file" yaml:"network_state_file"`
}

// StorageConfig configures the lifecycle monitor.
type StorageConfig struct {
	RetentionDays    int           `mapstructure:"retention_days" yaml:"retention_days"`
	CapacityBytes    int64         `mapstructure:"capacity_bytes" yaml:"capacity_bytes"`
	WarnFraction     float64       `mapstructure:"warn_fraction" yaml:"warn_fraction"`
	CriticalFraction float64       `mapstructure:"critical_fraction" yaml:"critical_fraction"`
	CheckInterval    time.Duration `mapstructure:"check_interval" yaml:"check_interval"`
	MaxAuditEntries  int           `mapstructure:"max_audit_entries" yaml:"max_audit_entries"`
}

// LogConfig configures the rotating sync log.
type LogConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days"`
	Debug      bool `mapstructure:"debug" yaml:"debug"`
}

// DashboardConfig configures the local observation server.
type DashboardConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" yaml:"port"`
}

// GeocodeConfig configures the optional reverse-geocode resolver used to
// label shift coordinates. An empty BaseURL disables lookups; listings then
// show raw coordinates.
type GeocodeConfig struct {
	BaseURL       string `mapstructure:"base_url" yaml:"base_url"`
	MaxConcurrent int64  `mapstructure:"max_concurrent" yaml:"max_concurrent"`
}

// Home resolves the engine state directory: $TLT_HOME if set, otherwise
// ~/.tlt.
func Home() (string, error) {
	if home := os.Getenv("TLT_HOME"); home != "" {
		return home, nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(userHome, ".tlt"), nil
}

// Load reads config.yaml from the engine home directory, applies defaults,
// and overlays TLT_* environment variables. A missing config file is not an
// error; defaults carry the engine.
func Load() (*Config, error) {
	home, err := Home()
	if err != nil {
		return nil, err
	}
	return LoadFrom(home)
}

// LoadFrom loads configuration rooted at the given directory.
func LoadFrom(home string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(home)

	v.SetEnvPrefix("TLT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, home)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Home = home
	return &cfg, nil
}

func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("owner_id", "")
	v.SetDefault("device_id", "")

	v.SetDefault("remote.base_url", "")
	v.SetDefault("remote.api_key", "")
	v.SetDefault("remote.timeout", 30*time.Second)

	v.SetDefault("sync.batch_size", 100)
	v.SetDefault("sync.max_attempts", 3)
	v.SetDefault("sync.allow_metered", true)
	v.SetDefault("sync.metered_batch_limit", 25)
	v.SetDefault("sync.unmetered_delay", 5*time.Second)
	v.SetDefault("sync.metered_delay", 30*time.Second)
	v.SetDefault("sync.bulk_interval", 5*time.Minute)
	v.SetDefault("sync.network_state_file", filepath.Join(home, "network.json"))

	v.SetDefault("storage.retention_days", 30)
	v.SetDefault("storage.capacity_bytes", int64(512*1024*1024))
	v.SetDefault("storage.warn_fraction", 0.80)
	v.SetDefault("storage.critical_fraction", 0.95)
	v.SetDefault("storage.check_interval", time.Hour)
	v.SetDefault("storage.max_audit_entries", 10000)

	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.debug", false)

	v.SetDefault("dashboard.enabled", false)
	v.SetDefault("dashboard.port", 7411)

	v.SetDefault("geocode.base_url", "")
	v.SetDefault("geocode.max_concurrent", 2)
}

// DatabasePath returns the SQLite database location under the engine home.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Home, "tlt.db")
}

// KeyPath returns the device encryption key location.
func (c *Config) KeyPath() string {
	return filepath.Join(c.Home, "device.key")
}

// LogPath returns the sync log location.
func (c *Config) LogPath() string {
	return filepath.Join(c.Home, "sync.log")
}

// EnsureHome creates the engine home directory if needed.
func (c *Config) EnsureHome() error {
	return os.MkdirAll(c.Home, 0o700)
}
