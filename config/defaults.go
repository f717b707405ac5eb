package config

import "time"

// Default provider endpoints.
const (
	DefaultChronikURL    = "https://chronik.e.cash"
	DefaultBlockchairURL = "https://api.blockchair.com/ecash"
)

// DefaultBatchSize is the default sync.batch. The primary indexer serves at
// most 500 headers per request and the secondary at most 100, so larger
// values only cost memory.
const DefaultBatchSize = 500

// DefaultPrimaryRetention is how far back the primary indexer serves history.
const DefaultPrimaryRetention = 90 * 24 * time.Hour

// DefaultMainnet returns the default configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		Wallet: WalletConfig{
			ID: "default",
		},
		Sync: SyncConfig{
			Mode:      SyncAPI,
			BatchSize: DefaultBatchSize,
			Retries:   5,
		},
		Provider: ProviderConfig{
			PrimaryURL:       DefaultChronikURL,
			PrimaryRetention: DefaultPrimaryRetention,
			SecondaryURL:     DefaultBlockchairURL,
			Timeout:          30 * time.Second,
			RPS:              5,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default configuration for testnet.
// There are no public testnet indexers, so both endpoints start empty.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.Provider.PrimaryURL = ""
	cfg.Provider.SecondaryURL = ""
	return cfg
}

// Default returns the default configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	default:
		return DefaultMainnet()
	}
}
