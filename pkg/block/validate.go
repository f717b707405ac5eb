package block

import (
	"errors"
	"fmt"
)

// Structural errors.
var (
	ErrNilHeader     = errors.New("nil header")
	ErrZeroTimestamp = errors.New("header timestamp is zero")
	ErrBadLink       = errors.New("header does not extend previous header")
)

// Validate checks header fields that do not depend on chain state.
// This does NOT verify consensus rules (use consensus.ValidatorSet for that).
func (h *Header) Validate() error {
	if h == nil {
		return ErrNilHeader
	}
	if h.Timestamp.Unix() <= 0 {
		return ErrZeroTimestamp
	}
	return nil
}

// Extends reports whether h is the direct child of prev: one height above it
// and referencing its hash.
func (h *Header) Extends(prev *Header) error {
	if prev == nil {
		return ErrNilHeader
	}
	if h.Height != prev.Height+1 {
		return fmt.Errorf("%w: height %d after %d", ErrBadLink, h.Height, prev.Height)
	}
	if h.PrevBlock != prev.Hash() {
		return fmt.Errorf("%w: prev hash %s, tip is %s", ErrBadLink, h.PrevBlock, prev.Hash())
	}
	return nil
}

// VerifyBatch checks that headers form a contiguous chain on top of prev.
// prev may be nil when the batch starts at a trusted checkpoint.
func VerifyBatch(prev *Header, headers []*Header) error {
	for i, h := range headers {
		if err := h.Validate(); err != nil {
			return fmt.Errorf("header %d: %w", h.Height, err)
		}
		parent := prev
		if i > 0 {
			parent = headers[i-1]
		}
		if parent == nil {
			continue
		}
		if err := h.Extends(parent); err != nil {
			return err
		}
	}
	return nil
}
