// Package config loads and saves the aw-sync configuration.
//
// Configuration is read from a TOML file (by default sync.toml under the
// user config directory), with AW_SYNC_* environment variables overriding
// individual keys.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// Config holds every tunable of the tool.
type Config struct {
	// Host and Port locate the live server.
	Host string `mapstructure:"host" toml:"host"`
	Port int    `mapstructure:"port" toml:"port"`

	// ClientName identifies this tool to the live server.
	ClientName string `mapstructure:"client_name" toml:"client_name"`

	// SyncDir is the shared directory replicated between devices.
	SyncDir string `mapstructure:"sync_dir" toml:"sync_dir"`

	// Buckets is the allow-list of bucket ids to sync. Empty means the
	// caller must name buckets explicitly; nothing syncs by default.
	Buckets []string `mapstructure:"buckets" toml:"buckets"`

	// Interval between daemon passes.
	Interval time.Duration `mapstructure:"interval" toml:"interval"`

	// LogFile, when set, receives rotating daemon logs.
	LogFile string `mapstructure:"log_file" toml:"log_file"`

	// DashboardAddr, when set, serves the live dashboard in daemon mode.
	DashboardAddr string `mapstructure:"dashboard_addr" toml:"dashboard_addr"`
}

// Default returns the configuration used when no file or overrides exist.
func Default() *Config {
	return &Config{
		Host:       "localhost",
		Port:       5600,
		ClientName: "aw-sync",
		SyncDir:    defaultSyncDir(),
		Interval:   5 * time.Minute,
	}
}

func defaultSyncDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "ActivitySync"
	}
	return filepath.Join(home, "ActivitySync")
}

// DefaultPath returns the standard config file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config directory: %w", err)
	}
	return filepath.Join(dir, "aw-sync", "sync.toml"), nil
}

// Load reads configuration from the given path. An empty path uses
// DefaultPath(); a missing file is not an error and yields the defaults
// (plus any environment overrides).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	def := Default()
	v.SetDefault("host", def.Host)
	v.SetDefault("port", def.Port)
	v.SetDefault("client_name", def.ClientName)
	v.SetDefault("sync_dir", def.SyncDir)
	v.SetDefault("buckets", def.Buckets)
	v.SetDefault("interval", def.Interval)
	v.SetDefault("log_file", def.LogFile)
	v.SetDefault("dashboard_addr", def.DashboardAddr)

	v.SetEnvPrefix("AW_SYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Save writes the configuration as TOML, creating parent directories as
// needed. Used by the setup wizard.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}
