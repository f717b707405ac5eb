package consensus

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/Klingon-tech/ecashkit/pkg/block"
)

var zeroHash chainhash.Hash

// memSource is a HeaderSource backed by a map, for tests.
type memSource struct {
	headers map[uint32]*block.Header
	base    uint32
}

func newMemSource() *memSource {
	return &memSource{headers: make(map[uint32]*block.Header)}
}

func (m *memSource) HeaderAt(height uint32) (*block.Header, error) {
	h, ok := m.headers[height]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrAncestorUnavailable, height)
	}
	return h, nil
}

func (m *memSource) BaseHeight() uint32 { return m.base }

func (m *memSource) add(h *block.Header) *block.Header {
	m.headers[h.Height] = h
	return h
}

// makeHeader builds an unsolved header.
func makeHeader(height uint32, prev chainhash.Hash, ts int64, bits uint32) *block.Header {
	return block.NewHeader(height, wire.BlockHeader{
		Version:   0x20000000,
		PrevBlock: prev,
		Timestamp: time.Unix(ts, 0),
		Bits:      bits,
	})
}

// buildChain adds headers at heights [from, to] with timestamps start +
// (h-from)*spacing and constant bits, linked by prev hash.
func (m *memSource) buildChain(from, to uint32, start, spacing int64, bits uint32) *block.Header {
	var prev chainhash.Hash
	if p, ok := m.headers[from-1]; ok && from > 0 {
		prev = p.Hash()
	}
	var last *block.Header
	for h := from; h <= to; h++ {
		last = m.add(makeHeader(h, prev, start+int64(h-from)*spacing, bits))
		prev = last.Hash()
	}
	return last
}

// next returns an unsolved child of the header at height.
func (m *memSource) next(height uint32, ts int64, bits uint32) *block.Header {
	parent := m.headers[height]
	return makeHeader(height+1, parent.Hash(), ts, bits)
}
