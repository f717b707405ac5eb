package chain

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Klingon-tech/ecashkit/internal/consensus"
	"github.com/Klingon-tech/ecashkit/internal/storage"
	"github.com/Klingon-tech/ecashkit/pkg/block"
	"github.com/Klingon-tech/ecashkit/pkg/tx"
)

// Key prefixes and state keys for the header store.
var (
	prefixHeader = []byte("h/") // h/<height(4)> -> header bytes
	prefixHash   = []byte("b/") // b/<hash(32)> -> height(4)
	prefixTx     = []byte("x/") // x/<txhash(32)> -> tx record
	keyBase      = []byte("s/base")
)

// DefaultCacheSize covers several DAA windows and the ASERT anchor lookups.
const DefaultCacheSize = 4096

// HeaderStore persists headers by height and indexes them by hash.
// Reads go through an LRU cache of committed headers.
type HeaderStore struct {
	db    storage.DB
	cache *lru.Cache[uint32, *block.Header]
}

// NewHeaderStore creates a header store backed by db.
func NewHeaderStore(db storage.DB, cacheSize int) (*HeaderStore, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[uint32, *block.Header](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("header cache: %w", err)
	}
	return &HeaderStore{db: db, cache: cache}, nil
}

// Header returns the committed header at height. Unknown heights yield an
// error wrapping consensus.ErrAncestorUnavailable and storage.ErrNotFound.
func (s *HeaderStore) Header(height uint32) (*block.Header, error) {
	if h, ok := s.cache.Get(height); ok {
		return h, nil
	}
	data, err := s.db.Get(headerKey(height))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: header %d: %w", consensus.ErrAncestorUnavailable, height, err)
	}
	if err != nil {
		return nil, fmt.Errorf("header get %d: %w", height, err)
	}
	h, err := block.FromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("corrupt header %d: %w", height, err)
	}
	if h.Height != height {
		return nil, fmt.Errorf("corrupt header index: key %d holds height %d", height, h.Height)
	}
	s.cache.Add(height, h)
	return h, nil
}

// HeightOf returns the height of the committed header with hash.
func (s *HeaderStore) HeightOf(hash chainhash.Hash) (uint32, error) {
	data, err := s.db.Get(hashKey(hash))
	if err != nil {
		return 0, fmt.Errorf("hash index get %s: %w", hash, err)
	}
	if len(data) != 4 {
		return 0, fmt.Errorf("corrupt hash index: got %d bytes, want 4", len(data))
	}
	return binary.BigEndian.Uint32(data), nil
}

// HasHeader reports whether a header with hash is committed.
func (s *HeaderStore) HasHeader(hash chainhash.Hash) (bool, error) {
	return s.db.Has(hashKey(hash))
}

// Base returns the lowest stored height. ok is false on an empty store.
func (s *HeaderStore) Base() (height uint32, ok bool, err error) {
	data, err := s.db.Get(keyBase)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("base get: %w", err)
	}
	if len(data) != 4 {
		return 0, false, fmt.Errorf("corrupt base: got %d bytes, want 4", len(data))
	}
	return binary.BigEndian.Uint32(data), true, nil
}

// Transaction returns the stored transaction record with hash.
func (s *HeaderStore) Transaction(hash chainhash.Hash) (*tx.Record, error) {
	data, err := s.db.Get(txKey(hash))
	if err != nil {
		return nil, fmt.Errorf("tx get %s: %w", hash, err)
	}
	return tx.RecordFromBytes(data)
}

// Transactions calls fn for every stored transaction record.
func (s *HeaderStore) Transactions(fn func(*tx.Record) error) error {
	return s.db.ForEach(prefixTx, func(_, value []byte) error {
		rec, err := tx.RecordFromBytes(value)
		if err != nil {
			return err
		}
		return fn(rec)
	})
}

// stageHeader writes h and its hash index into b.
func stageHeader(b storage.Batch, h *block.Header) error {
	if err := b.Put(headerKey(h.Height), h.Bytes()); err != nil {
		return fmt.Errorf("header put %d: %w", h.Height, err)
	}
	var heightBuf [4]byte
	binary.BigEndian.PutUint32(heightBuf[:], h.Height)
	if err := b.Put(hashKey(h.Hash()), heightBuf[:]); err != nil {
		return fmt.Errorf("hash index put %d: %w", h.Height, err)
	}
	return nil
}

func stageBase(b storage.Batch, height uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], height)
	if err := b.Put(keyBase, buf[:]); err != nil {
		return fmt.Errorf("set base: %w", err)
	}
	return nil
}

func stageTx(b storage.Batch, rec *tx.Record) error {
	if err := b.Put(txKey(rec.Hash), rec.Bytes()); err != nil {
		return fmt.Errorf("tx put %s: %w", rec.Hash, err)
	}
	return nil
}

// remember caches headers that are now committed.
func (s *HeaderStore) remember(headers []*block.Header) {
	for _, h := range headers {
		s.cache.Add(h.Height, h)
	}
}

// Key helpers.

func headerKey(height uint32) []byte {
	key := make([]byte, len(prefixHeader)+4)
	copy(key, prefixHeader)
	binary.BigEndian.PutUint32(key[len(prefixHeader):], height)
	return key
}

func hashKey(hash chainhash.Hash) []byte {
	key := make([]byte, len(prefixHash)+chainhash.HashSize)
	copy(key, prefixHash)
	copy(key[len(prefixHash):], hash[:])
	return key
}

func txKey(hash chainhash.Hash) []byte {
	key := make([]byte, len(prefixTx)+chainhash.HashSize)
	copy(key, prefixTx)
	copy(key[len(prefixTx):], hash[:])
	return key
}
