// Package chain stores the validated header chain of one wallet and the
// wallet transactions anchored in it.
package chain

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/Klingon-tech/ecashkit/internal/consensus"
	klog "github.com/Klingon-tech/ecashkit/internal/log"
	"github.com/Klingon-tech/ecashkit/internal/storage"
	"github.com/Klingon-tech/ecashkit/internal/syncstate"
	"github.com/Klingon-tech/ecashkit/pkg/block"
	"github.com/Klingon-tech/ecashkit/pkg/tx"
)

// Chain errors.
var (
	ErrNotBootstrapped    = errors.New("chain has no starting checkpoint")
	ErrCheckpointMismatch = errors.New("header does not match starting checkpoint")
	ErrUnknownBlock       = errors.New("transaction references unknown block")
	ErrCorruptState       = errors.New("chain state inconsistent with sync cursor")
)

var keyTxHeight = []byte("s/txheight")

// Chain is the header chain of one wallet. Headers enter only through
// ConnectBatch, which validates them and commits them together with the
// sync cursor.
type Chain struct {
	mu         sync.RWMutex
	db         storage.DB
	store      *HeaderStore
	validators *consensus.ValidatorSet
	tracker    *syncstate.Tracker

	base    uint32
	hasBase bool
	start   *syncstate.Start // trusted first header of an empty chain
}

// New opens the chain stored in db. The tracker's cursor marks the tip.
func New(db storage.DB, validators *consensus.ValidatorSet, tracker *syncstate.Tracker) (*Chain, error) {
	if db == nil {
		return nil, fmt.Errorf("storage db is nil")
	}
	if validators == nil {
		return nil, fmt.Errorf("validator set is nil")
	}
	if tracker == nil {
		return nil, fmt.Errorf("sync tracker is nil")
	}
	store, err := NewHeaderStore(db, DefaultCacheSize)
	if err != nil {
		return nil, err
	}
	c := &Chain{db: db, store: store, validators: validators, tracker: tracker}

	base, ok, err := store.Base()
	if err != nil {
		return nil, err
	}
	c.base, c.hasBase = base, ok

	cur := tracker.Cursor()
	switch {
	case cur.IsZero() && ok:
		return nil, fmt.Errorf("%w: base %d stored without cursor", ErrCorruptState, base)
	case !cur.IsZero() && !ok:
		return nil, fmt.Errorf("%w: cursor %s without stored headers", ErrCorruptState, cur)
	case !cur.IsZero():
		tip, err := store.Header(cur.Height)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptState, err)
		}
		if tip.Hash() != cur.Hash {
			return nil, fmt.Errorf("%w: tip %s, cursor %s", ErrCorruptState, tip.Hash(), cur.Hash)
		}
	}

	klog.Chain.Debug().
		Str("cursor", cur.String()).
		Uint32("base", base).
		Msg("Chain opened")
	return c, nil
}

// Store returns the underlying header store.
func (c *Chain) Store() *HeaderStore {
	return c.store
}

// Tip returns the highest committed header, or nil on an empty chain.
func (c *Chain) Tip() (*block.Header, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tip()
}

func (c *Chain) tip() (*block.Header, error) {
	cur := c.tracker.Cursor()
	if cur.IsZero() {
		return nil, nil
	}
	return c.store.Header(cur.Height)
}

// Height returns the tip height, 0 on an empty chain.
func (c *Chain) Height() uint32 {
	return c.tracker.Cursor().Height
}

// HeaderAt implements consensus.HeaderSource over committed headers.
func (c *Chain) HeaderAt(height uint32) (*block.Header, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.hasBase || height < c.base {
		return nil, &consensus.MissingAncestorError{Height: height}
	}
	return c.store.Header(height)
}

// BaseHeight implements consensus.HeaderSource.
func (c *Chain) BaseHeight() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.base
}

// Bootstrap sets the trusted checkpoint an empty chain starts from. It is a
// no-op on a chain that already holds headers.
func (c *Chain) Bootstrap(start syncstate.Start) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hasBase {
		return nil
	}
	if start.Resume {
		return fmt.Errorf("%w: resume at %d on an empty chain", ErrCorruptState, start.Height)
	}
	c.start = &start
	return nil
}

// ConnectBatch validates headers on top of the tip and commits them with
// the advanced sync cursor. On an empty chain the first header must be the
// bootstrap checkpoint; it becomes the base and is trusted as is. Nothing is
// written when any header fails.
func (c *Chain) ConnectBatch(headers []*block.Header) (syncstate.Cursor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(headers) == 0 {
		return c.tracker.Cursor(), nil
	}

	base := c.base
	toValidate := headers
	var prev *block.Header
	if !c.hasBase {
		if c.start == nil {
			return syncstate.Cursor{}, ErrNotBootstrapped
		}
		first := headers[0]
		if first == nil || first.Height != c.start.Height || first.Hash() != c.start.Hash {
			return syncstate.Cursor{}, fmt.Errorf("%w: %w: want %d/%s",
				consensus.ErrRejected, ErrCheckpointMismatch, c.start.Height, c.start.Hash)
		}
		base = first.Height
		toValidate = headers[1:]
	} else {
		tip, err := c.tip()
		if err != nil {
			return syncstate.Cursor{}, err
		}
		prev = tip
	}

	if err := block.VerifyBatch(prev, headers); err != nil {
		return syncstate.Cursor{}, fmt.Errorf("%w: %w", consensus.ErrRejected, err)
	}

	view := &batchView{store: c.store, base: base, pending: headers}
	for _, h := range toValidate {
		if err := c.validators.Validate(h, view); err != nil {
			klog.Chain.Warn().
				Err(err).
				Uint32("height", h.Height).
				Str("hash", h.Hash().String()).
				Msg("Header rejected")
			return syncstate.Cursor{}, fmt.Errorf("header %d: %w", h.Height, err)
		}
	}

	b := storage.NewBatch(c.db)
	for _, h := range headers {
		if err := stageHeader(b, h); err != nil {
			return syncstate.Cursor{}, err
		}
	}
	if !c.hasBase {
		if err := stageBase(b, base); err != nil {
			return syncstate.Cursor{}, err
		}
	}

	last := headers[len(headers)-1]
	next := syncstate.Cursor{
		Strategy: c.tracker.Strategy(),
		Height:   last.Height,
		Hash:     last.Hash(),
	}
	if err := c.tracker.Commit(b, next); err != nil {
		return syncstate.Cursor{}, err
	}

	c.store.remember(headers)
	if !c.hasBase {
		c.base, c.hasBase = base, true
		c.start = nil
	}

	klog.Chain.Debug().
		Uint32("from", headers[0].Height).
		Uint32("to", last.Height).
		Msg("Header batch connected")
	return c.tracker.Cursor(), nil
}

// TxHeight returns the height through which wallet transactions were
// fetched.
func (c *Chain) TxHeight() (uint32, error) {
	data, err := c.db.Get(keyTxHeight)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("tx height get: %w", err)
	}
	if len(data) != 4 {
		return 0, fmt.Errorf("corrupt tx height: got %d bytes, want 4", len(data))
	}
	return binary.BigEndian.Uint32(data), nil
}

// StoreTransactions records wallet transactions fetched through height
// through. Confirmed records at or above the base must name the stored
// header at their height; records below the base predate the checkpoint and
// are kept as reported.
func (c *Chain) StoreTransactions(records []*tx.Record, through uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tipHeight := c.tracker.Cursor().Height
	if through > tipHeight {
		return fmt.Errorf("%w: tx height %d above tip %d", ErrUnknownBlock, through, tipHeight)
	}

	b := storage.NewBatch(c.db)
	for _, rec := range records {
		if rec.Confirmed() && c.hasBase && rec.BlockHeight >= c.base {
			h, err := c.store.Header(rec.BlockHeight)
			if err != nil {
				return fmt.Errorf("%w: tx %s at %d: %w", ErrUnknownBlock, rec.Hash, rec.BlockHeight, err)
			}
			if h.Hash() != rec.BlockHash {
				return fmt.Errorf("%w: tx %s names block %s, chain has %s at %d",
					ErrUnknownBlock, rec.Hash, rec.BlockHash, h.Hash(), rec.BlockHeight)
			}
		}
		if err := stageTx(b, rec); err != nil {
			return err
		}
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], through)
	if err := b.Put(keyTxHeight, buf[:]); err != nil {
		return fmt.Errorf("set tx height: %w", err)
	}
	if err := b.Commit(); err != nil {
		return fmt.Errorf("commit transactions: %w", err)
	}

	klog.Chain.Debug().
		Int("count", len(records)).
		Uint32("through", through).
		Msg("Wallet transactions stored")
	return nil
}

// batchView serves committed headers plus an uncommitted batch on top.
type batchView struct {
	store   *HeaderStore
	base    uint32
	pending []*block.Header
}

func (v *batchView) HeaderAt(height uint32) (*block.Header, error) {
	if height < v.base {
		return nil, &consensus.MissingAncestorError{Height: height}
	}
	if first := v.pending[0].Height; height >= first {
		if i := int(height - first); i < len(v.pending) {
			return v.pending[i], nil
		}
		return nil, &consensus.MissingAncestorError{Height: height}
	}
	return v.store.Header(height)
}

func (v *batchView) BaseHeight() uint32 {
	return v.base
}
