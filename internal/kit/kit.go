// Package kit provides a reusable wallet sync engine that can be embedded
// in any binary (daemon, mobile bridge, tests).
package kit

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"

	"github.com/Klingon-tech/ecashkit/config"
	"github.com/Klingon-tech/ecashkit/internal/chain"
	"github.com/Klingon-tech/ecashkit/internal/consensus"
	klog "github.com/Klingon-tech/ecashkit/internal/log"
	"github.com/Klingon-tech/ecashkit/internal/provider"
	"github.com/Klingon-tech/ecashkit/internal/provider/blockchair"
	"github.com/Klingon-tech/ecashkit/internal/provider/chronik"
	"github.com/Klingon-tech/ecashkit/internal/provider/httpapi"
	"github.com/Klingon-tech/ecashkit/internal/storage"
	"github.com/Klingon-tech/ecashkit/internal/syncer"
	"github.com/Klingon-tech/ecashkit/internal/syncstate"
)

// ErrNoProvider is returned when the sync mode has no usable endpoint.
var ErrNoProvider = errors.New("no provider endpoint configured")

// Option customizes a Kit.
type Option func(*options)

type options struct {
	clock    clock.Clock
	onStatus func(syncer.Update)
	interval time.Duration
}

// WithClock sets the clock used for checkpoint selection, retention checks
// and the resync timer.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithStatusHandler registers a callback for sync status updates.
func WithStatusHandler(fn func(syncer.Update)) Option {
	return func(o *options) { o.onStatus = fn }
}

// WithInterval sets the delay between sync sessions. The default is the
// network's block spacing.
func WithInterval(d time.Duration) Option {
	return func(o *options) { o.interval = d }
}

// Kit is a fully-initialized sync engine for one wallet.
type Kit struct {
	cfg    *config.Config
	params *config.Params
	opts   options
	logger zerolog.Logger

	db      *storage.BadgerDB
	tracker *syncstate.Tracker
	chain   *chain.Chain
	source  provider.Provider
	syncer  *syncer.Syncer

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates and initializes a Kit. It opens storage and wires consensus,
// providers and the syncer, but does not contact any provider. Call Start
// for that.
func New(cfg *config.Config, opts ...Option) (*Kit, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = clock.NewDefaultClock()
	}

	params, err := config.ParamsFor(cfg.Network)
	if err != nil {
		return nil, err
	}
	if o.interval <= 0 {
		o.interval = params.TargetSpacing
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := klog.WithWallet(string(cfg.Network), cfg.Wallet.ID)

	validators, err := consensus.NewValidatorSet(params)
	if err != nil {
		return nil, fmt.Errorf("create validator set: %w", err)
	}

	dir := WalletDir(cfg.DataDir, cfg.Network, cfg.Wallet.ID)
	db, err := storage.NewBadger(dir)
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", dir, err)
	}
	scoped := storage.NewPrefixDB(db, modePrefix(cfg.Sync.Mode))

	tracker, err := syncstate.NewTracker(scoped, cfg.Sync.Mode)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load sync state: %w", err)
	}
	ch, err := chain.New(scoped, validators, tracker)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open chain: %w", err)
	}
	source, err := newSource(cfg, tracker, o.clock)
	if err != nil {
		db.Close()
		return nil, err
	}

	k := &Kit{
		cfg:     cfg,
		params:  params,
		opts:    o,
		logger:  logger,
		db:      db,
		tracker: tracker,
		chain:   ch,
		source:  source,
	}
	k.syncer = syncer.New(syncer.Config{
		WalletKey: WalletKey(cfg.Network, cfg.Wallet.ID, cfg.Sync.Mode),
		BatchSize: cfg.Sync.BatchSize,
		Addresses: cfg.Wallet.Addresses,
	}, ch, tracker, syncstate.NewResolver(params, tracker, o.clock), source, o.onStatus)

	cur := tracker.Cursor()
	if cur.IsZero() {
		logger.Info().
			Str("mode", string(cfg.Sync.Mode)).
			Str("provider", source.Name()).
			Str("path", dir).
			Msg("Wallet opened with empty chain")
	} else {
		logger.Info().
			Str("mode", string(cfg.Sync.Mode)).
			Str("provider", source.Name()).
			Uint32("height", cur.Height).
			Str("tip", cur.Hash.String()[:16]+"...").
			Msg("Wallet resumed from database")
	}
	return k, nil
}

// newSource builds the provider stack of the configured sync mode. api and
// full sync use the primary and fail over to the secondary for old ranges.
// blockchair sync restores the same way, then follows the tip on the
// secondary alone.
func newSource(cfg *config.Config, tracker *syncstate.Tracker, clk clock.Clock) (provider.Provider, error) {
	var primary, secondary provider.Provider

	if cfg.Provider.PrimaryURL != "" {
		api, err := httpapi.New(cfg.Provider.PrimaryURL, cfg.Provider.Timeout, cfg.Provider.RPS)
		if err != nil {
			return nil, fmt.Errorf("primary provider: %w", err)
		}
		primary = provider.NewRetrying(chronik.New(api, cfg.Provider.PrimaryRetention, clk), cfg.Sync.Retries)
	}
	if cfg.Provider.SecondaryURL != "" {
		api, err := httpapi.New(cfg.Provider.SecondaryURL, cfg.Provider.Timeout, cfg.Provider.RPS,
			httpapi.WithQuery("key", cfg.Provider.SecondaryKey))
		if err != nil {
			return nil, fmt.Errorf("secondary provider: %w", err)
		}
		secondary = provider.NewRetrying(blockchair.New(api), cfg.Sync.Retries)
	}
	if primary == nil && secondary == nil {
		return nil, fmt.Errorf("%w for %s sync", ErrNoProvider, cfg.Sync.Mode)
	}
	failover, err := provider.NewFailover(primary, secondary, tracker)
	if err != nil {
		return nil, err
	}
	if cfg.Sync.Mode != config.SyncBlockchair {
		return failover, nil
	}
	if secondary == nil {
		return nil, fmt.Errorf("%w for %s sync", ErrNoProvider, cfg.Sync.Mode)
	}
	return provider.NewRestoring(failover, secondary, tracker)
}

// Start launches the background sync loop. The first session starts at once;
// later ones follow the configured interval.
func (k *Kit) Start() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.started {
		return errors.New("kit already started")
	}
	k.started = true
	k.ctx, k.cancel = context.WithCancel(context.Background())

	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		k.runSyncLoop()
	}()
	return nil
}

// Stop cancels the running session, waits for it and closes storage. The
// batch in flight is discarded.
func (k *Kit) Stop() {
	k.mu.Lock()
	if k.cancel != nil {
		k.cancel()
	}
	k.mu.Unlock()
	k.wg.Wait()

	if k.db != nil {
		if err := k.db.Close(); err != nil {
			k.logger.Warn().Err(err).Msg("Database close failed")
		}
		k.db = nil
	}
	k.logger.Info().Msg("Goodbye!")
}

// Status returns the last sync status.
func (k *Kit) Status() syncer.Update {
	return k.syncer.Status()
}

// Height returns the height of the last committed header.
func (k *Kit) Height() uint32 {
	return k.chain.Height()
}

// Provider returns the name of the provider currently serving requests.
func (k *Kit) Provider() string {
	return k.source.Name()
}

func (k *Kit) runSyncLoop() {
	for {
		err := k.syncer.Run(k.ctx)
		if k.ctx.Err() != nil {
			return
		}
		if k.syncer.Status().Status == syncer.Failed {
			k.logger.Error().Err(err).Msg("Sync halted; restart required")
			return
		}
		select {
		case <-k.ctx.Done():
			return
		case <-k.opts.clock.TickAfter(k.opts.interval):
		}
	}
}

// WalletKey names the sync session of a wallet in one mode.
func WalletKey(network config.NetworkType, walletID string, mode config.SyncMode) string {
	return fmt.Sprintf("ECash-%s-%s-%s", network, walletID, mode)
}

// WalletDir returns the database directory of a wallet. Wallet ids are
// hashed so arbitrary ids map to safe directory names.
func WalletDir(dataDir string, network config.NetworkType, walletID string) string {
	sum := blake3.Sum256([]byte(walletID))
	return filepath.Join(dataDir, string(network), "wallets", hex.EncodeToString(sum[:8]))
}

func modePrefix(mode config.SyncMode) []byte {
	return []byte(string(mode) + "/")
}

// Clear deletes the chain data a wallet holds under every sync mode. The
// wallet must not be open.
func Clear(dataDir string, network config.NetworkType, walletID string) error {
	dir := WalletDir(dataDir, network, walletID)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	db, err := storage.NewBadger(dir)
	if err != nil {
		return fmt.Errorf("open database at %s: %w", dir, err)
	}
	defer db.Close()

	for _, mode := range config.SyncModes {
		if err := storage.NewPrefixDB(db, modePrefix(mode)).DeleteAll(); err != nil {
			return fmt.Errorf("clear %s data: %w", mode, err)
		}
	}
	klog.Kit.Info().
		Str("network", string(network)).
		Str("wallet", walletID).
		Msg("Wallet chain data cleared")
	return nil
}
