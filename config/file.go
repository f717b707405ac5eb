package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFile loads configuration from a .conf file.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a config value by key.
// Only runtime settings, NOT protocol rules.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	// Core
	case "network":
		cfg.Network = NetworkType(value)
	case "datadir":
		cfg.DataDir = value

	// Wallet
	case "wallet.id", "wallet":
		cfg.Wallet.ID = value
	case "wallet.addresses":
		cfg.Wallet.Addresses = parseStringList(value)

	// Sync
	case "sync.mode":
		cfg.Sync.Mode = SyncMode(strings.ToLower(value))
	case "sync.batch":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Sync.BatchSize = n
	case "sync.retries":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Sync.Retries = n

	// Providers
	case "provider.primary.url":
		cfg.Provider.PrimaryURL = value
	case "provider.primary.retention":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		cfg.Provider.PrimaryRetention = d
	case "provider.secondary.url":
		cfg.Provider.SecondaryURL = value
	case "provider.secondary.key":
		cfg.Provider.SecondaryKey = value
	case "provider.timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		cfg.Provider.Timeout = d
	case "provider.rps":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		cfg.Provider.RPS = f

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		// Unknown keys are ignored
	}
	return nil
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseStringList parses a comma-separated list.
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// WriteDefaultConfig writes a default configuration file.
func WriteDefaultConfig(path string, network NetworkType) error {
	cfg := Default(network)
	content := `# ecashd configuration
#
# This file contains runtime settings only.
# Protocol rules (fork heights, retarget parameters, checkpoints) are
# compiled in per network and cannot be changed here.

# Network: mainnet or testnet
network = ` + string(network) + `

# Data directory (default: ~/.ecashkit)
# datadir = ~/.ecashkit

# ============================================================================
# Wallet
# ============================================================================

# Chain data is kept per wallet identity.
wallet.id = ` + cfg.Wallet.ID + `

# Addresses whose transactions are fetched (comma-separated)
# wallet.addresses =

# ============================================================================
# Sync
# ============================================================================

# full, api or blockchair
sync.mode = ` + string(cfg.Sync.Mode) + `
sync.batch = ` + strconv.Itoa(cfg.Sync.BatchSize) + `
sync.retries = ` + strconv.Itoa(cfg.Sync.Retries) + `

# ============================================================================
# Providers
# ============================================================================

provider.primary.url = ` + cfg.Provider.PrimaryURL + `
provider.primary.retention = ` + cfg.Provider.PrimaryRetention.String() + `
provider.secondary.url = ` + cfg.Provider.SecondaryURL + `
# provider.secondary.key =
provider.timeout = ` + cfg.Provider.Timeout.String() + `
provider.rps = ` + strconv.FormatFloat(cfg.Provider.RPS, 'f', -1, 64) + `

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}
