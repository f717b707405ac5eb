package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Flags holds parsed command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool
	Clear   bool

	// Core
	Network string
	DataDir string
	Config  string

	// Wallet
	WalletID  string
	Addresses string

	// Sync
	SyncMode  string
	SyncBatch int

	// Providers
	PrimaryURL   string
	SecondaryURL string
	SecondaryKey string
	Timeout      time.Duration

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args
	Args []string

	// Explicitly-set bool flags (for true/false overrides).
	SetLogJSON bool
}

// NewFlagSet registers every flag on a new FlagSet bound to f.
func NewFlagSet(f *Flags) *flag.FlagSet {
	fs := flag.NewFlagSet("ecashd", flag.ContinueOnError)

	// Commands
	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")
	fs.BoolVar(&f.Clear, "clear", false, "Delete the wallet's chain data for every sync mode and exit")

	// Core
	fs.StringVar(&f.Network, "network", "", "Network type (mainnet or testnet)")
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")

	// Wallet
	fs.StringVar(&f.WalletID, "wallet", "", "Wallet identity")
	fs.StringVar(&f.Addresses, "addresses", "", "Watched addresses (comma-separated)")

	// Sync
	fs.StringVar(&f.SyncMode, "sync-mode", "", "Sync mode: full, api, or blockchair")
	fs.IntVar(&f.SyncBatch, "sync-batch", 0, "Headers per request")

	// Providers
	fs.StringVar(&f.PrimaryURL, "primary-url", "", "Primary (retention-limited) indexer URL")
	fs.StringVar(&f.SecondaryURL, "secondary-url", "", "Secondary (complete history) indexer URL")
	fs.StringVar(&f.SecondaryKey, "secondary-key", "", "Secondary indexer API key")
	fs.DurationVar(&f.Timeout, "provider-timeout", 0, "Per-request timeout")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	fs.SetOutput(io.Discard)
	fs.Usage = func() {
		printUsage()
	}
	return fs
}

// ParseArgs parses args (without the program name).
func ParseArgs(args []string) (*Flags, error) {
	f := &Flags{}
	fs := NewFlagSet(f)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	f.SetLogJSON = isFlagSet(fs, "log-json")
	f.Args = fs.Args()

	// Detect unparsed flags caused by positional arguments stopping the parser.
	for _, arg := range f.Args {
		if strings.HasPrefix(arg, "-") {
			return nil, fmt.Errorf("flag %q was not parsed (positional argument stopped parsing)", arg)
		}
	}
	return f, nil
}

// ParseFlags parses os.Args, exiting on malformed input.
func ParseFlags() *Flags {
	f, err := ParseArgs(os.Args[1:])
	if err != nil {
		if err == flag.ErrHelp {
			printUsage()
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return f
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	// Core
	if f.Network != "" {
		cfg.Network = NetworkType(f.Network)
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}
	cfg.Clear = f.Clear

	// Wallet
	if f.WalletID != "" {
		cfg.Wallet.ID = f.WalletID
	}
	if f.Addresses != "" {
		cfg.Wallet.Addresses = parseStringList(f.Addresses)
	}

	// Sync
	if f.SyncMode != "" {
		cfg.Sync.Mode = SyncMode(strings.ToLower(f.SyncMode))
	}
	if f.SyncBatch != 0 {
		cfg.Sync.BatchSize = f.SyncBatch
	}

	// Providers
	if f.PrimaryURL != "" {
		cfg.Provider.PrimaryURL = f.PrimaryURL
	}
	if f.SecondaryURL != "" {
		cfg.Provider.SecondaryURL = f.SecondaryURL
	}
	if f.SecondaryKey != "" {
		cfg.Provider.SecondaryKey = f.SecondaryKey
	}
	if f.Timeout != 0 {
		cfg.Provider.Timeout = f.Timeout
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func printUsage() {
	usage := `ecashd - eCash header sync daemon

Usage:
  ecashd [options]
  ecashd --help

Commands:
  --help, -h      Show this help message
  --version, -v   Show version information
  --clear         Delete the wallet's chain data (all sync modes) and exit

Core Options:
  --network       Network type: mainnet (default) or testnet
  --datadir       Data directory (default: ~/.ecashkit)
  --config, -c    Config file path (default: <datadir>/ecashd.conf)

Wallet Options:
  --wallet        Wallet identity (default: default)
  --addresses     Watched addresses (comma-separated)

Sync Options:
  --sync-mode     full, api (default), or blockchair
  --sync-batch    Headers per request (default: 500; pages are capped at 500 chronik, 100 blockchair)

Provider Options:
  --primary-url       Primary indexer URL (default: chronik.e.cash)
  --secondary-url     Secondary indexer URL (default: blockchair)
  --secondary-key     Secondary indexer API key
  --provider-timeout  Per-request timeout (default: 30s)

Logging Options:
  --log-level     Log level: trace, debug, info, warn, error (default: info)
  --log-file      Log file path (default: stdout)
  --log-json      Output logs as JSON

Examples:
  # Restore a wallet's history from the indexers
  ecashd --wallet=alice --addresses=ecash:qq...

  # Verify every header from genesis
  ecashd --sync-mode=full

  # Drop alice's chain data
  ecashd --wallet=alice --clear
`
	fmt.Print(usage)
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
func Load() (*Config, *Flags, error) {
	flags := ParseFlags()

	if flags.Help {
		printUsage()
		os.Exit(0)
	}
	if flags.Version {
		fmt.Println("ecashd version 0.1.0")
		os.Exit(0)
	}

	cfg, err := LoadWith(flags)
	if err != nil {
		return nil, nil, err
	}
	return cfg, flags, nil
}

// LoadWith runs the precedence chain for already parsed flags.
func LoadWith(flags *Flags) (*Config, error) {
	// Determine network first (needed for defaults)
	network := Mainnet
	if strings.ToLower(flags.Network) == string(Testnet) {
		network = Testnet
	}

	cfg := Default(network)
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	if err := EnsureDataDirs(cfg); err != nil {
		return nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}

	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, fmt.Errorf("applying config file: %w", err)
	}

	// Flags have the highest precedence.
	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist. Safe to call on every startup.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.ChainDataDir(),
		cfg.LogsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg.Network); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}

	return nil
}
