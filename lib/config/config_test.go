// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}

	if cfg.Federation.RetryAttempts != 2 {
		t.Errorf("expected retry_attempts=2, got %d", cfg.Federation.RetryAttempts)
	}

	if cfg.Federation.KeyFetchTimeout != 10*time.Second {
		t.Errorf("expected key_fetch_timeout=10s, got %s", cfg.Federation.KeyFetchTimeout)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level=debug for development, got %s", cfg.Log.Level)
	}
}

func TestLoad_RequiresHearthConfig(t *testing.T) {
	// Save and restore HEARTH_CONFIG.
	origConfig := os.Getenv("HEARTH_CONFIG")
	defer os.Setenv("HEARTH_CONFIG", origConfig)

	// Unset HEARTH_CONFIG - Load() should fail.
	os.Unsetenv("HEARTH_CONFIG")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when HEARTH_CONFIG not set, got nil")
	}

	expectedMsg := "HEARTH_CONFIG environment variable not set"
	if err.Error()[:len(expectedMsg)] != expectedMsg {
		t.Errorf("expected error message to start with %q, got %q", expectedMsg, err.Error())
	}
}

func TestLoad_WithHearthConfig(t *testing.T) {
	// Save and restore HEARTH_CONFIG.
	origConfig := os.Getenv("HEARTH_CONFIG")
	defer os.Setenv("HEARTH_CONFIG", origConfig)

	// Create temp config file.
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "hearth.yaml")

	configContent := `
environment: staging
server:
  name: hearth.example.org
storage:
  database: /test/federation.db
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	// Set HEARTH_CONFIG and load.
	os.Setenv("HEARTH_CONFIG", configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}

	if cfg.Server.Name != "hearth.example.org" {
		t.Errorf("expected name=hearth.example.org, got %s", cfg.Server.Name)
	}

	if cfg.Storage.Database != "/test/federation.db" {
		t.Errorf("expected database=/test/federation.db, got %s", cfg.Storage.Database)
	}
}

func TestLoadFile(t *testing.T) {
	// Create temp config file.
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "hearth.yaml")

	configContent := `
environment: staging

server:
  name: hearth.example.org
  signing_key_file: /custom/signing.key

storage:
  database: /custom/federation.db

federation:
  retry_attempts: 5
  retry_backoff: 2s
  max_backfill_depth: 30

log:
  level: warn
  format: json
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}

	if cfg.Server.SigningKeyFile != "/custom/signing.key" {
		t.Errorf("expected signing_key_file=/custom/signing.key, got %s", cfg.Server.SigningKeyFile)
	}

	if cfg.Federation.RetryAttempts != 5 {
		t.Errorf("expected retry_attempts=5, got %d", cfg.Federation.RetryAttempts)
	}

	if cfg.Federation.RetryBackoff != 2*time.Second {
		t.Errorf("expected retry_backoff=2s, got %s", cfg.Federation.RetryBackoff)
	}

	if cfg.Federation.MaxBackfillDepth != 30 {
		t.Errorf("expected max_backfill_depth=30, got %d", cfg.Federation.MaxBackfillDepth)
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("expected log level=warn, got %s", cfg.Log.Level)
	}

	if cfg.Log.Format != "json" {
		t.Errorf("expected log format=json, got %s", cfg.Log.Format)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "hearth.yaml")

	configContent := `
environment: production

server:
  name: hearth.example.org

storage:
  database: /default/federation.db

log:
  level: debug

production:
  storage:
    database: /prod/federation.db
  log:
    level: error
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	// Production overrides should be applied.
	if cfg.Storage.Database != "/prod/federation.db" {
		t.Errorf("expected database=/prod/federation.db, got %s", cfg.Storage.Database)
	}

	if cfg.Log.Level != "error" {
		t.Errorf("expected log level=error from production override, got %s", cfg.Log.Level)
	}
}

func TestProductionDefaultsQuietLogging(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "hearth.yaml")

	// No explicit production section: the implicit production defaults
	// still raise the log level.
	configContent := `
environment: production
server:
  name: hearth.example.org
storage:
  database: /prod/federation.db
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("expected log level=info from production defaults, got %s", cfg.Log.Level)
	}
}

func TestEnvVarsDoNotOverride(t *testing.T) {
	// Verify that environment variables do NOT override config file values.
	// The config file is the single source of truth for deterministic configuration.

	// Save and restore env vars.
	origName := os.Getenv("HEARTH_SERVER_NAME")
	origDB := os.Getenv("HEARTH_DATABASE")
	origEnv := os.Getenv("HEARTH_ENVIRONMENT")
	defer func() {
		os.Setenv("HEARTH_SERVER_NAME", origName)
		os.Setenv("HEARTH_DATABASE", origDB)
		os.Setenv("HEARTH_ENVIRONMENT", origEnv)
	}()

	// Set env vars that should be ignored.
	os.Setenv("HEARTH_SERVER_NAME", "env.example.org")
	os.Setenv("HEARTH_DATABASE", "/env/federation.db")
	os.Setenv("HEARTH_ENVIRONMENT", "staging")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "hearth.yaml")

	configContent := `
environment: development
server:
  name: file.example.org
storage:
  database: /file/federation.db
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	// File values should be used, NOT env vars.
	if cfg.Environment != Development {
		t.Errorf("expected environment=development from file, got %s (env vars should not override)", cfg.Environment)
	}

	if cfg.Server.Name != "file.example.org" {
		t.Errorf("expected name=file.example.org from file, got %s (env vars should not override)", cfg.Server.Name)
	}

	if cfg.Storage.Database != "/file/federation.db" {
		t.Errorf("expected database=/file/federation.db from file, got %s (env vars should not override)", cfg.Storage.Database)
	}
}

func TestExpandVars(t *testing.T) {
	tests := []struct {
		input    string
		vars     map[string]string
		expected string
	}{
		{
			input:    "${HOME}/hearth",
			vars:     map[string]string{"HOME": "/home/user"},
			expected: "/home/user/hearth",
		},
		{
			input:    "${MISSING:-default}",
			vars:     map[string]string{},
			expected: "default",
		},
		{
			input:    "${PRESENT:-default}",
			vars:     map[string]string{"PRESENT": "value"},
			expected: "value",
		},
		{
			input:    "${A}/${B}",
			vars:     map[string]string{"A": "first", "B": "second"},
			expected: "first/second",
		},
		{
			input:    "no variables here",
			vars:     map[string]string{},
			expected: "no variables here",
		},
	}

	for _, tt := range tests {
		result := expandVars(tt.input, tt.vars)
		if result != tt.expected {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name: "valid config",
			modify: func(c *Config) {
				c.Server.Name = "hearth.example.org"
			},
			wantErr: false,
		},
		{
			name:    "missing server name",
			modify:  func(c *Config) {},
			wantErr: true,
		},
		{
			name: "invalid environment",
			modify: func(c *Config) {
				c.Server.Name = "hearth.example.org"
				c.Environment = "invalid"
			},
			wantErr: true,
		},
		{
			name: "empty database path",
			modify: func(c *Config) {
				c.Server.Name = "hearth.example.org"
				c.Storage.Database = ""
			},
			wantErr: true,
		},
		{
			name: "in-memory database in production",
			modify: func(c *Config) {
				c.Server.Name = "hearth.example.org"
				c.Environment = Production
				c.Storage.Database = ":memory:"
			},
			wantErr: true,
		},
		{
			name: "invalid log level",
			modify: func(c *Config) {
				c.Server.Name = "hearth.example.org"
				c.Log.Level = "verbose"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnsurePaths(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := Default()
	cfg.Server.SigningKeyFile = filepath.Join(tmpDir, "keys", "signing.key")
	cfg.Storage.Database = filepath.Join(tmpDir, "data", "federation.db")

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths failed: %v", err)
	}

	// Verify parent directories were created.
	for _, dir := range []string{filepath.Join(tmpDir, "keys"), filepath.Join(tmpDir, "data")} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Errorf("path %s not created: %v", dir, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("path %s is not a directory", dir)
		}
	}
}
