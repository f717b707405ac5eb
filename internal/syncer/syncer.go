// Package syncer runs the sync session of one wallet: resolve the starting
// point, fetch header batches, validate and commit them, then fetch the
// wallet's transactions.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/Klingon-tech/ecashkit/config"
	"github.com/Klingon-tech/ecashkit/internal/chain"
	"github.com/Klingon-tech/ecashkit/internal/consensus"
	klog "github.com/Klingon-tech/ecashkit/internal/log"
	"github.com/Klingon-tech/ecashkit/internal/provider"
	"github.com/Klingon-tech/ecashkit/internal/syncstate"
	"github.com/Klingon-tech/ecashkit/pkg/tx"
)

// Session errors.
var (
	ErrStalled = errors.New("sync stalled")
	ErrBusy    = errors.New("sync session already running for wallet")
)

// DefaultBatchSize is the number of headers requested at once. Providers
// may return shorter pages.
const DefaultBatchSize = config.DefaultBatchSize

// Status is the state of a sync session as reported to the caller.
type Status int

const (
	Idle Status = iota
	Syncing
	Synced
	Stalled  // provider unreachable after retries; retry later
	Rejected // provider served a branch that failed consensus
	Failed   // configuration or persistence error
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Syncing:
		return "syncing"
	case Synced:
		return "synced"
	case Stalled:
		return "stalled"
	case Rejected:
		return "rejected"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Update is one status report.
type Update struct {
	Status Status
	Height uint32
	Err    error
}

// Config configures a Syncer.
type Config struct {
	// WalletKey identifies the wallet; one session runs per key.
	WalletKey string
	BatchSize int
	Addresses []string
}

// Syncer drives header and transaction sync for one wallet.
type Syncer struct {
	cfg      Config
	chain    *chain.Chain
	tracker  *syncstate.Tracker
	resolver *syncstate.Resolver
	source   provider.Provider
	onStatus func(Update)

	mu     sync.Mutex
	status Update
}

// New creates a syncer. onStatus may be nil.
func New(cfg Config, ch *chain.Chain, tracker *syncstate.Tracker, resolver *syncstate.Resolver,
	source provider.Provider, onStatus func(Update)) *Syncer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Syncer{
		cfg:      cfg,
		chain:    ch,
		tracker:  tracker,
		resolver: resolver,
		source:   source,
		onStatus: onStatus,
		status:   Update{Status: Idle, Height: tracker.Cursor().Height},
	}
}

// Status returns the last reported status.
func (s *Syncer) Status() Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Syncer) report(st Status, err error) {
	u := Update{Status: st, Height: s.tracker.Cursor().Height, Err: err}
	s.mu.Lock()
	s.status = u
	s.mu.Unlock()
	if s.onStatus != nil {
		s.onStatus(u)
	}
}

// Run syncs until the provider has no newer headers, then fetches wallet
// transactions. Failures are reported through the status callback and
// returned. Cancelling ctx discards the batch in flight; the cursor stays at
// the last committed batch.
func (s *Syncer) Run(ctx context.Context) error {
	release, err := acquire(s.cfg.WalletKey)
	if err != nil {
		return err
	}
	defer release()

	s.report(Syncing, nil)
	err = s.run(ctx)
	if errors.Is(err, provider.ErrTransient) {
		err = fmt.Errorf("%w: %w", ErrStalled, err)
	}
	st := classify(err)
	if st == Synced {
		if perr := s.tracker.SetRestored(); perr != nil {
			err, st = perr, Failed
		}
	}
	s.report(st, err)

	ev := klog.Sync.Info()
	if st != Synced && st != Idle {
		ev = klog.Sync.Warn().Err(err)
	}
	ev.Str("wallet", s.cfg.WalletKey).
		Str("status", st.String()).
		Uint32("height", s.tracker.Cursor().Height).
		Msg("Sync session ended")
	return err
}

func (s *Syncer) run(ctx context.Context) error {
	start, err := s.resolver.Resolve()
	if err != nil {
		return err
	}
	if !start.Resume {
		if err := s.chain.Bootstrap(start); err != nil {
			return err
		}
	}
	klog.Sync.Info().
		Str("wallet", s.cfg.WalletKey).
		Uint32("from", start.Height).
		Bool("resume", start.Resume).
		Msg("Sync session started")

	if err := s.syncHeaders(ctx, start); err != nil {
		return err
	}
	if len(s.cfg.Addresses) > 0 {
		return s.syncTransactions(ctx)
	}
	return nil
}

func (s *Syncer) syncHeaders(ctx context.Context, start syncstate.Start) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		cur := s.tracker.Cursor()
		from := cur.Next()
		if cur.IsZero() {
			from = start.Height
		}

		headers, err := s.source.FetchHeaders(ctx, from, s.cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(headers) == 0 {
			return nil
		}
		// A cancelled session never commits the batch in flight.
		if err := ctx.Err(); err != nil {
			return err
		}
		next, err := s.chain.ConnectBatch(headers)
		if err != nil {
			return err
		}
		klog.Sync.Debug().
			Str("provider", s.source.Name()).
			Uint32("height", next.Height).
			Int("batch", len(headers)).
			Msg("Header batch committed")
		s.report(Syncing, nil)
	}
}

func (s *Syncer) syncTransactions(ctx context.Context) error {
	through := s.tracker.Cursor().Height
	done, err := s.chain.TxHeight()
	if err != nil {
		return err
	}
	from := s.chain.BaseHeight()
	if done > 0 {
		from = done + 1
	}
	if from > through {
		return nil
	}

	records, err := s.source.FetchTransactions(ctx, s.cfg.Addresses, from)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	// Records above the synced tip come back on the next session.
	kept := records[:0]
	for _, r := range records {
		if r.BlockHeight <= through {
			kept = append(kept, r)
		}
	}
	return s.chain.StoreTransactions(dedupe(kept), through)
}

func dedupe(records []*tx.Record) []*tx.Record {
	seen := make(map[chainhash.Hash]struct{}, len(records))
	out := records[:0]
	for _, r := range records {
		if _, ok := seen[r.Hash]; ok {
			continue
		}
		seen[r.Hash] = struct{}{}
		out = append(out, r)
	}
	return out
}

// classify maps a session error to the status reported for it.
func classify(err error) Status {
	switch {
	case err == nil:
		return Synced
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Idle
	case errors.Is(err, consensus.ErrConfiguration):
		return Failed
	case errors.Is(err, consensus.ErrRejected):
		return Rejected
	case errors.Is(err, ErrStalled):
		return Stalled
	default:
		return Failed
	}
}

var (
	sessionsMu sync.Mutex
	sessions   = make(map[string]struct{})
)

// acquire takes the process-wide session lock of a wallet.
func acquire(key string) (func(), error) {
	sessionsMu.Lock()
	defer sessionsMu.Unlock()
	if _, busy := sessions[key]; busy {
		return nil, fmt.Errorf("%w: %s", ErrBusy, key)
	}
	sessions[key] = struct{}{}
	return func() {
		sessionsMu.Lock()
		delete(sessions, key)
		sessionsMu.Unlock()
	}, nil
}
