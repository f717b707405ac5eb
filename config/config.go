// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Protocol rules: per-network Params, immutable, must match the network
//   - Node settings: Runtime configuration, can vary per installation
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// SyncMode selects where the initial history comes from.
type SyncMode string

const (
	// SyncFull verifies every header from genesis.
	SyncFull SyncMode = "full"
	// SyncAPI starts from a trusted checkpoint and restores history from the
	// primary indexer, failing over to the secondary for old ranges.
	SyncAPI SyncMode = "api"
	// SyncBlockchair uses the complete-history indexer only.
	SyncBlockchair SyncMode = "blockchair"
)

// SyncModes lists every mode, in the order their data directories are
// created.
var SyncModes = []SyncMode{SyncAPI, SyncFull, SyncBlockchair}

// =============================================================================
// Node Configuration (runtime settings)
// =============================================================================

// Config holds runtime configuration.
// These settings can vary between installations without breaking consensus.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// Wallet identity and watched addresses
	Wallet WalletConfig

	// Sync session
	Sync SyncConfig

	// Remote history providers
	Provider ProviderConfig

	// Logging
	Log LogConfig

	// Maintenance (not persisted in config file)
	Clear bool
}

// WalletConfig identifies the wallet whose chain data is synced.
type WalletConfig struct {
	ID        string   `conf:"wallet.id"`
	Addresses []string `conf:"wallet.addresses"` // Watched addresses (provider format)
}

// SyncConfig holds sync session settings.
type SyncConfig struct {
	Mode      SyncMode `conf:"sync.mode"`
	BatchSize int      `conf:"sync.batch"`   // Headers requested per round trip, capped by the provider
	Retries   int      `conf:"sync.retries"` // Transient failures tolerated per request
}

// ProviderConfig holds the remote provider endpoints.
type ProviderConfig struct {
	PrimaryURL       string        `conf:"provider.primary.url"`
	PrimaryRetention time.Duration `conf:"provider.primary.retention"`
	SecondaryURL     string        `conf:"provider.secondary.url"`
	SecondaryKey     string        `conf:"provider.secondary.key"`
	Timeout          time.Duration `conf:"provider.timeout"`
	RPS              float64       `conf:"provider.rps"` // Requests per second per provider (0 = unlimited)
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.ecashkit
//	macOS:   ~/Library/Application Support/ECashKit
//	Windows: %APPDATA%\ECashKit
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ecashkit"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "ECashKit")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "ECashKit")
		}
		return filepath.Join(home, "AppData", "Roaming", "ECashKit")
	default:
		return filepath.Join(home, ".ecashkit")
	}
}

// ChainDataDir returns the network-specific data directory.
func (c *Config) ChainDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "ecashd.conf")
}
