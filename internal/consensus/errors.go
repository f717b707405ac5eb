package consensus

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Error classes. Every error returned by this package wraps exactly one of
// them.
var (
	// ErrConfiguration means the network parameters cannot describe the
	// chain being validated. It is fatal for the session.
	ErrConfiguration = errors.New("consensus configuration error")

	// ErrRejected means the header violates consensus. The branch carrying
	// it must be discarded.
	ErrRejected = errors.New("header rejected")
)

// Configuration errors.
var (
	ErrNoApplicableAlgorithm = fmt.Errorf("%w: no retarget algorithm applies", ErrConfiguration)
)

// Rejections.
var (
	ErrInsufficientWork = fmt.Errorf("%w: hash does not meet target", ErrRejected)
	ErrTargetAboveLimit = fmt.Errorf("%w: target above proof-of-work limit", ErrRejected)
	ErrBadBits          = fmt.Errorf("%w: malformed compact target", ErrRejected)
)

// ErrAncestorUnavailable is returned when a header needed for validation is
// not held locally.
var ErrAncestorUnavailable = errors.New("ancestor unavailable")

// AnchorMismatchError reports that the header at a hash-anchored fork height
// is not the anchor: the chain being validated is on the other side of the
// split.
type AnchorMismatchError struct {
	Height uint32
	Want   chainhash.Hash
	Got    chainhash.Hash
}

func (e *AnchorMismatchError) Error() string {
	return fmt.Sprintf("fork anchor mismatch at height %d: want %s, got %s", e.Height, e.Want, e.Got)
}

func (e *AnchorMismatchError) Unwrap() error { return ErrConfiguration }

// BitsMismatchError reports a header whose declared difficulty differs from
// the one required by the canonical retarget algorithm.
type BitsMismatchError struct {
	Height uint32
	Want   uint32
	Got    uint32
}

func (e *BitsMismatchError) Error() string {
	return fmt.Sprintf("bad difficulty at height %d: want %08x, got %08x", e.Height, e.Want, e.Got)
}

func (e *BitsMismatchError) Unwrap() error { return ErrRejected }

// MissingAncestorError names the height that could not be loaded.
type MissingAncestorError struct {
	Height uint32
}

func (e *MissingAncestorError) Error() string {
	return fmt.Sprintf("%v: height %d", ErrAncestorUnavailable, e.Height)
}

func (e *MissingAncestorError) Unwrap() error { return ErrAncestorUnavailable }
