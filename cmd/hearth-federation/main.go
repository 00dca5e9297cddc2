// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/hearth/federation/keyring"
	"github.com/bureau-foundation/hearth/federation/storage"
	"github.com/bureau-foundation/hearth/federation/transaction"
	"github.com/bureau-foundation/hearth/lib/config"
	"github.com/bureau-foundation/hearth/lib/ref"
	"github.com/bureau-foundation/hearth/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "hearth-federation: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var printKeyDocument bool
	var showVersion bool

	flagSet := pflag.NewFlagSet("hearth-federation", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to hearth.yaml (overrides HEARTH_CONFIG)")
	flagSet.BoolVar(&printKeyDocument, "print-key-document", false, "print the self-signed server key document and exit")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}
	if showVersion {
		fmt.Println(version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	serverName, err := ref.ParseServerName(cfg.Server.Name)
	if err != nil {
		return fmt.Errorf("server.name: %w", err)
	}

	signingKey, err := loadOrGenerateKey(cfg.Server.SigningKeyFile, logger)
	if err != nil {
		return err
	}

	if printKeyDocument {
		document, err := keyring.ServerKeyDocument(serverName, signingKey, time.Now().Add(7*24*time.Hour))
		if err != nil {
			return err
		}
		fmt.Println(string(document))
		return nil
	}

	ring := keyring.NewStore(keyring.Config{
		Logger:       logger,
		FetchTimeout: cfg.Federation.KeyFetchTimeout,
	})
	ring.AddTrusted(serverName, signingKey.ID, signingKey.Public())
	if cfg.Federation.KeySeedFile != "" {
		if err := ring.LoadSeed(cfg.Federation.KeySeedFile); err != nil {
			return err
		}
	}

	store, closeStore, err := openStore(cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	processor, err := transaction.New(transaction.Config{
		Store:            store,
		Verifier:         ring,
		Logger:           logger,
		RetryAttempts:    cfg.Federation.RetryAttempts,
		RetryBackoff:     cfg.Federation.RetryBackoff,
		MaxBackfillDepth: cfg.Federation.MaxBackfillDepth,
	})
	if err != nil {
		return err
	}
	logger.Info("federation node ready",
		"server_name", serverName,
		"key_id", signingKey.ID,
		"database", cfg.Storage.Database,
		"socket", cfg.Server.Socket,
		"environment", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	socket := &admissionSocket{
		path:      cfg.Server.Socket,
		processor: processor,
		logger:    logger,
	}
	if err := socket.serve(ctx); err != nil {
		return err
	}
	logger.Info("shutting down")
	return nil
}

// loadConfig resolves the configuration source: the --config flag wins
// over HEARTH_CONFIG.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// newLogger builds the process logger from the log section.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	options := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, options))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, options))
}

// loadOrGenerateKey reads the signing key, generating and persisting a
// fresh one on first start.
func loadOrGenerateKey(path string, logger *slog.Logger) (keyring.SigningKey, error) {
	key, err := keyring.LoadSigningKey(path)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return keyring.SigningKey{}, err
	}

	key, err = keyring.GenerateSigningKey(keyVersionNow())
	if err != nil {
		return keyring.SigningKey{}, err
	}
	if err := os.WriteFile(path, key.Encode(), 0600); err != nil {
		return keyring.SigningKey{}, fmt.Errorf("write signing key: %w", err)
	}
	logger.Info("generated signing key", "path", path, "key_id", key.ID)
	return key, nil
}

// keyVersionNow derives a key version string from the current date, so
// rotated keys sort chronologically in key documents.
func keyVersionNow() string {
	return "a_" + time.Now().UTC().Format("20060102")
}

// openStore opens the configured event store. ":memory:" selects the
// in-memory store.
func openStore(cfg config.StorageConfig, logger *slog.Logger) (storage.Store, func(), error) {
	if cfg.Database == ":memory:" {
		return storage.NewMemory(), func() {}, nil
	}
	store, err := storage.OpenSQLite(cfg.Database, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open event store: %w", err)
	}
	return store, func() { store.Close() }, nil
}
