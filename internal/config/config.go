// Package config loads and validates coffer configuration from a YAML file,
// with environment-variable overrides and hot-reload of the dynamic settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all coffer configuration.
type Config struct {
	// DataDir is where the database and logs live.
	DataDir string `yaml:"data_dir"`

	// Asset configures the protected asset and the vault's custody address.
	Asset AssetConfig `yaml:"asset"`

	// Roles configures the bootstrap role assignments.
	Roles RolesConfig `yaml:"roles"`

	// Timelock configures the delay authority.
	Timelock TimelockConfig `yaml:"timelock"`

	// Logging controls the category file logger. Hot-reloadable.
	Logging LoggingConfig `yaml:"logging"`
}

// AssetConfig identifies the protected asset.
type AssetConfig struct {
	ID           string   `yaml:"id"`            // asset identity, e.g. "USDX"
	VaultAddress string   `yaml:"vault_address"` // the vault's custody address
	Foreign      []string `yaml:"foreign"`       // known foreign assets, resolvable by sweep
}

// RolesConfig holds the bootstrap role assignments. TempOwner instantiates
// the system, wires the delay authority and guardian, then self-revokes.
type RolesConfig struct {
	TempOwner string   `yaml:"temp_owner"`
	Guardian  string   `yaml:"guardian"`
	Proposers []string `yaml:"proposers"` // may schedule/cancel timelock operations
}

// TimelockConfig configures the delay authority.
type TimelockConfig struct {
	Address  string `yaml:"address"`   // the authority's identity; holds Owner post-bootstrap
	MinDelay string `yaml:"min_delay"` // Go duration string, e.g. "48h"
}

// LoggingConfig controls the category file logger.
type LoggingConfig struct {
	Enabled    bool            `yaml:"enabled"`
	Level      string          `yaml:"level"` // debug/info/warn/error
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir: ".coffer",
		Asset: AssetConfig{
			ID:           "USDX",
			VaultAddress: "vault",
			Foreign:      []string{"WETH"},
		},
		Roles: RolesConfig{
			TempOwner: "deployer",
			Guardian:  "guardian",
			Proposers: []string{"deployer"},
		},
		Timelock: TimelockConfig{
			Address:  "timelock",
			MinDelay: "48h",
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
		},
	}
}

// Load reads the config file at path, applies defaults for missing fields,
// then environment overrides, then validates. A missing file yields the
// defaults (still subject to overrides and validation).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to path.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies COFFER_* environment variables over the loaded
// values. Empty variables are ignored.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("COFFER_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("COFFER_ASSET_ID"); v != "" {
		c.Asset.ID = v
	}
	if v := os.Getenv("COFFER_GUARDIAN"); v != "" {
		c.Roles.Guardian = v
	}
	if v := os.Getenv("COFFER_MIN_DELAY"); v != "" {
		c.Timelock.MinDelay = v
	}
	if v := os.Getenv("COFFER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the config for internal consistency.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Asset.ID == "" {
		return fmt.Errorf("asset.id is required")
	}
	if c.Asset.VaultAddress == "" {
		return fmt.Errorf("asset.vault_address is required")
	}
	if c.Roles.TempOwner == "" {
		return fmt.Errorf("roles.temp_owner is required")
	}
	if c.Roles.Guardian == "" {
		return fmt.Errorf("roles.guardian is required")
	}
	if c.Timelock.Address == "" {
		return fmt.Errorf("timelock.address is required")
	}
	if _, err := c.MinDelay(); err != nil {
		return err
	}
	return nil
}

// MinDelay parses the timelock minimum delay.
func (c *Config) MinDelay() (time.Duration, error) {
	d, err := time.ParseDuration(c.Timelock.MinDelay)
	if err != nil {
		return 0, fmt.Errorf("timelock.min_delay: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("timelock.min_delay must not be negative")
	}
	return d, nil
}

// DatabasePath returns the SQLite path under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "coffer.db")
}
