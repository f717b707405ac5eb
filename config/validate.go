package config

import (
	"fmt"
	"strings"
)

// Validate checks runtime config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if strings.TrimSpace(cfg.Wallet.ID) == "" {
		return fmt.Errorf("wallet.id must not be empty")
	}

	switch cfg.Sync.Mode {
	case SyncFull, SyncAPI:
		if cfg.Provider.PrimaryURL == "" && cfg.Provider.SecondaryURL == "" {
			return fmt.Errorf("sync.mode=%s requires at least one provider url", cfg.Sync.Mode)
		}
	case SyncBlockchair:
		if cfg.Provider.SecondaryURL == "" {
			return fmt.Errorf("sync.mode=blockchair requires provider.secondary.url")
		}
	default:
		return fmt.Errorf("sync.mode must be full, api, or blockchair")
	}
	if cfg.Sync.BatchSize <= 0 {
		return fmt.Errorf("sync.batch must be > 0")
	}
	if cfg.Sync.Retries < 0 {
		return fmt.Errorf("sync.retries must be >= 0")
	}

	if cfg.Provider.PrimaryRetention < 0 {
		return fmt.Errorf("provider.primary.retention must be >= 0")
	}
	if cfg.Provider.Timeout <= 0 {
		return fmt.Errorf("provider.timeout must be > 0")
	}
	if cfg.Provider.RPS < 0 {
		return fmt.Errorf("provider.rps must be >= 0")
	}

	seen := make(map[string]struct{}, len(cfg.Wallet.Addresses))
	for i, addr := range cfg.Wallet.Addresses {
		if _, ok := seen[addr]; ok {
			return fmt.Errorf("wallet.addresses[%d] is a duplicate of %q", i, addr)
		}
		seen[addr] = struct{}{}
	}

	return nil
}
