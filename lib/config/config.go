// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for a Hearth federation server.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Server configures the server's federation identity.
	Server ServerConfig `yaml:"server"`

	// Storage configures the event store.
	Storage StorageConfig `yaml:"storage"`

	// Federation configures inbound transaction processing.
	Federation FederationConfig `yaml:"federation"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Server     *ServerConfig     `yaml:"server,omitempty"`
	Storage    *StorageConfig    `yaml:"storage,omitempty"`
	Federation *FederationConfig `yaml:"federation,omitempty"`
	Log        *LogConfig        `yaml:"log,omitempty"`
}

// ServerConfig configures the server's federation identity.
type ServerConfig struct {
	// Name is the server name this homeserver federates as. Event
	// signatures and key documents are published under this name.
	Name string `yaml:"name"`

	// SigningKeyFile is the path to the ed25519 signing key in the
	// single-line "ed25519 <version> <seed>" format. Generated on
	// first start if absent.
	SigningKeyFile string `yaml:"signing_key_file"`

	// Socket is the Unix socket path for the admission socket, where
	// the transport front-end submits federation transactions.
	Socket string `yaml:"socket"`
}

// StorageConfig configures the event store.
type StorageConfig struct {
	// Database is the SQLite database path. The value ":memory:"
	// selects the in-memory store (events are lost on restart).
	Database string `yaml:"database"`
}

// FederationConfig configures inbound transaction processing.
type FederationConfig struct {
	// KeySeedFile is an optional JSONC file of pinned server keys,
	// mapping server name to key ID to base64 public key. Pinned keys
	// are trusted unconditionally and never refetched.
	KeySeedFile string `yaml:"key_seed_file"`

	// KeyFetchTimeout bounds a single server-key document fetch.
	// Default: 10s.
	KeyFetchTimeout time.Duration `yaml:"key_fetch_timeout"`

	// RetryAttempts bounds retries of key resolution and backfill
	// fetches, on top of the initial attempt. Default: 2.
	RetryAttempts int `yaml:"retry_attempts"`

	// RetryBackoff is the delay before the first retry, doubling per
	// attempt. Default: 500ms.
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// MaxBackfillDepth bounds recursive ancestor fetching for a
	// single event. Default: 10.
	MaxBackfillDepth int `yaml:"max_backfill_depth"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	// Default: debug (development), info (production).
	Level string `yaml:"level"`

	// Format is "text" or "json". Default: text.
	Format string `yaml:"format"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// They exist primarily to ensure all fields have sensible zero-values,
// not as a fallback - the config file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "hearth")

	return &Config{
		Environment: Development,
		Server: ServerConfig{
			SigningKeyFile: filepath.Join(defaultRoot, "signing.key"),
			Socket:         filepath.Join(defaultRoot, "federation.sock"),
		},
		Storage: StorageConfig{
			Database: filepath.Join(defaultRoot, "federation.db"),
		},
		Federation: FederationConfig{
			KeyFetchTimeout:  10 * time.Second,
			RetryAttempts:    2,
			RetryBackoff:     500 * time.Millisecond,
			MaxBackfillDepth: 10,
		},
		Log: LogConfig{
			Level:  "debug",
			Format: "text",
		},
	}
}

// Load loads configuration from the HEARTH_CONFIG environment variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or defaults - if HEARTH_CONFIG is not set, this fails.
// This ensures deterministic, auditable configuration with no hidden overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("HEARTH_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("HEARTH_CONFIG environment variable not set; " +
			"set it to the path of your hearth.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables do not
// override config values - this ensures deterministic, auditable configuration.
// The only expansion performed is ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	// Apply environment-specific overrides (development/staging/production sections in the file).
	cfg.applyEnvironmentOverrides()

	// Expand ${HOME} and similar variables in paths for portability.
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, c)
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: quieter logging.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Log: &LogConfig{
					Level: "info",
				},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Server != nil {
		if overrides.Server.Name != "" {
			c.Server.Name = overrides.Server.Name
		}
		if overrides.Server.SigningKeyFile != "" {
			c.Server.SigningKeyFile = overrides.Server.SigningKeyFile
		}
		if overrides.Server.Socket != "" {
			c.Server.Socket = overrides.Server.Socket
		}
	}

	if overrides.Storage != nil {
		if overrides.Storage.Database != "" {
			c.Storage.Database = overrides.Storage.Database
		}
	}

	if overrides.Federation != nil {
		if overrides.Federation.KeySeedFile != "" {
			c.Federation.KeySeedFile = overrides.Federation.KeySeedFile
		}
		if overrides.Federation.KeyFetchTimeout > 0 {
			c.Federation.KeyFetchTimeout = overrides.Federation.KeyFetchTimeout
		}
		if overrides.Federation.RetryAttempts > 0 {
			c.Federation.RetryAttempts = overrides.Federation.RetryAttempts
		}
		if overrides.Federation.RetryBackoff > 0 {
			c.Federation.RetryBackoff = overrides.Federation.RetryBackoff
		}
		if overrides.Federation.MaxBackfillDepth > 0 {
			c.Federation.MaxBackfillDepth = overrides.Federation.MaxBackfillDepth
		}
	}

	if overrides.Log != nil {
		if overrides.Log.Level != "" {
			c.Log.Level = overrides.Log.Level
		}
		if overrides.Log.Format != "" {
			c.Log.Format = overrides.Log.Format
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Server.SigningKeyFile = expandVars(c.Server.SigningKeyFile, vars)
	c.Server.Socket = expandVars(c.Server.Socket, vars)
	c.Storage.Database = expandVars(c.Storage.Database, vars)
	c.Federation.KeySeedFile = expandVars(c.Federation.KeySeedFile, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Server.Name == "" {
		errs = append(errs, fmt.Errorf("server.name is required"))
	}

	if c.Server.SigningKeyFile == "" {
		errs = append(errs, fmt.Errorf("server.signing_key_file is required"))
	}

	if c.Server.Socket == "" {
		errs = append(errs, fmt.Errorf("server.socket is required"))
	}

	if c.Storage.Database == "" {
		errs = append(errs, fmt.Errorf("storage.database is required"))
	}
	if c.Environment == Production && c.Storage.Database == ":memory:" {
		errs = append(errs, fmt.Errorf("storage.database must be persistent in production"))
	}

	logLevels := []string{"debug", "info", "warn", "error"}
	if !contains(logLevels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", logLevels))
	}
	logFormats := []string{"text", "json"}
	if !contains(logFormats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", logFormats))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the parent directories of all configured file
// paths if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Server.SigningKeyFile,
		c.Server.Socket,
		c.Storage.Database,
	}

	for _, path := range paths {
		if path == "" || path == ":memory:" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
		}
	}

	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
