// Package block defines the block header type shared by validation, storage
// and the remote data providers.
package block

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// HeaderSize is the serialized size of a header record: height(4) | wire header(80).
const HeaderSize = 4 + wire.MaxBlockHeaderPayload

// Header is a block header together with its height on the chain.
// The hash is derived from the wire encoding and never stored alongside it.
// Headers are immutable once constructed.
type Header struct {
	wire.BlockHeader
	Height uint32
}

// NewHeader wraps a wire header at the given height.
func NewHeader(height uint32, h wire.BlockHeader) *Header {
	return &Header{BlockHeader: h, Height: height}
}

// Hash computes the double-SHA256 block hash.
func (h *Header) Hash() chainhash.Hash {
	return h.BlockHash()
}

// Time returns the header timestamp in unix seconds.
func (h *Header) Time() int64 {
	return h.Timestamp.Unix()
}

// Bytes returns the canonical storage encoding.
// Format: height(4, little endian) | wire header(80)
func (h *Header) Bytes() []byte {
	var buf bytes.Buffer
	buf.Grow(HeaderSize)
	var hb [4]byte
	binary.LittleEndian.PutUint32(hb[:], h.Height)
	buf.Write(hb[:])
	// Serializing into a bytes.Buffer cannot fail.
	_ = h.BlockHeader.Serialize(&buf)
	return buf.Bytes()
}

// FromBytes decodes a header produced by Bytes.
func FromBytes(data []byte) (*Header, error) {
	if len(data) != HeaderSize {
		return nil, fmt.Errorf("header record is %d bytes, want %d", len(data), HeaderSize)
	}
	var wh wire.BlockHeader
	if err := wh.Deserialize(bytes.NewReader(data[4:])); err != nil {
		return nil, fmt.Errorf("decode wire header: %w", err)
	}
	return NewHeader(binary.LittleEndian.Uint32(data[:4]), wh), nil
}

// ParseHex decodes an 80-byte hex-encoded wire header, the format remote
// APIs return raw headers in.
func ParseHex(height uint32, s string) (*Header, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid header hex: %w", err)
	}
	if len(raw) != wire.MaxBlockHeaderPayload {
		return nil, fmt.Errorf("header must be %d bytes, got %d", wire.MaxBlockHeaderPayload, len(raw))
	}
	var wh wire.BlockHeader
	if err := wh.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("decode wire header: %w", err)
	}
	return NewHeader(height, wh), nil
}

