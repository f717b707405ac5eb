package consensus

import (
	"context"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/Klingon-tech/ecashkit/pkg/block"
)

// ProofOfWorkCheck verifies that a header's hash meets the target its bits
// declare, and that the target is within the network's limit.
// It holds no mutable state and is safe for concurrent use.
type ProofOfWorkCheck struct {
	PowLimit *big.Int
}

// NewProofOfWorkCheck creates a check bounded by the compact pow limit.
func NewProofOfWorkCheck(powLimitBits uint32) *ProofOfWorkCheck {
	return &ProofOfWorkCheck{PowLimit: blockchain.CompactToBig(powLimitBits)}
}

// Verify checks a single header. A hash equal to the target passes.
func (p *ProofOfWorkCheck) Verify(h *block.Header) error {
	target, err := DecodeBits(h.Bits)
	if err != nil {
		return err
	}
	if target.Cmp(p.PowLimit) > 0 {
		return fmt.Errorf("%w: height %d bits %08x", ErrTargetAboveLimit, h.Height, h.Bits)
	}
	if err := checkHash(h.Hash(), target); err != nil {
		return fmt.Errorf("%w: height %d", err, h.Height)
	}
	return nil
}

// checkHash compares a block hash, read as a little-endian 256-bit integer,
// against target.
func checkHash(hash chainhash.Hash, target *big.Int) error {
	if blockchain.HashToBig(&hash).Cmp(target) > 0 {
		return fmt.Errorf("%w: hash %s", ErrInsufficientWork, hash)
	}
	return nil
}

// DecodeBits expands a compact target, rejecting negative, zero and
// overflowing encodings.
func DecodeBits(bits uint32) (*big.Int, error) {
	mantissa := bits & 0x007fffff
	exponent := bits >> 24
	if mantissa != 0 && (exponent > 34 ||
		(mantissa > 0xff && exponent > 33) ||
		(mantissa > 0xffff && exponent > 32)) {
		return nil, fmt.Errorf("%w: %08x overflows 256 bits", ErrBadBits, bits)
	}
	t := blockchain.CompactToBig(bits)
	if t.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %08x is not positive", ErrBadBits, bits)
	}
	return t, nil
}

// Solve searches nonces until h meets its own target, for building test
// chains under an easy pow limit. When the context is cancelled, the search
// stops and ctx.Err() is returned.
func Solve(ctx context.Context, h *block.Header) error {
	target, err := DecodeBits(h.Bits)
	if err != nil {
		return err
	}
	for nonce := uint32(0); ; nonce++ {
		// Check cancellation every 65536 iterations.
		if nonce&0xFFFF == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		h.Nonce = nonce
		if checkHash(h.Hash(), target) == nil {
			return nil
		}
		if nonce == ^uint32(0) {
			return fmt.Errorf("nonce space exhausted")
		}
	}
}

func bitsHex(bits uint32) string {
	return fmt.Sprintf("%08x", bits)
}
