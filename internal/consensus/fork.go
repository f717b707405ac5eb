package consensus

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ForkPoint is a height at which a rule change activates. A non-nil Anchor
// additionally requires the header at Height to have exactly that hash, which
// pins the fork to one side of a chain split.
type ForkPoint struct {
	Height uint32
	Anchor *chainhash.Hash
}

// Gate binds a fork point to the retarget algorithm it introduced.
type Gate struct {
	Point ForkPoint
	Algo  Retarget
}

// Activates reports whether the gate's algorithm governs the candidate of
// ctx. An anchored gate whose anchor height holds a different header does not
// activate and returns an *AnchorMismatchError.
func (g Gate) Activates(ctx *ChainContext) (bool, error) {
	candidate := ctx.Candidate()
	if candidate.Height < g.Point.Height {
		return false, nil
	}
	if g.Point.Anchor == nil {
		return true, nil
	}
	// Below the base the trusted checkpoint vouches for the anchor.
	if g.Point.Height < ctx.BaseHeight() {
		return true, nil
	}

	h, err := ctx.AncestorAt(g.Point.Height)
	if err != nil {
		return false, err
	}
	if got := h.Hash(); got != *g.Point.Anchor {
		return false, &AnchorMismatchError{Height: g.Point.Height, Want: *g.Point.Anchor, Got: got}
	}
	return true, nil
}
