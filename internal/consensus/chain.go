package consensus

import (
	"errors"
	"fmt"
	"slices"

	klog "github.com/Klingon-tech/ecashkit/internal/log"
	"github.com/Klingon-tech/ecashkit/pkg/block"
)

// ValidatorChain selects the retarget algorithm canonical at a height and
// checks headers against it. It is immutable after construction and safe for
// concurrent use.
type ValidatorChain struct {
	gates    []Gate // newest fork first
	fallback Retarget
}

// Selection is the outcome of algorithm selection for one candidate.
type Selection struct {
	Algo Retarget
	// Fork is the activated fork point, nil when the fallback applies.
	Fork *ForkPoint
}

// NewValidatorChain builds a chain from gates in activation order (ascending
// height) and the algorithm used below every fork.
func NewValidatorChain(fallback Retarget, gates ...Gate) (*ValidatorChain, error) {
	if fallback == nil {
		return nil, ErrNoApplicableAlgorithm
	}
	for i, g := range gates {
		if g.Algo == nil {
			return nil, fmt.Errorf("%w: fork at %d has no algorithm", ErrConfiguration, g.Point.Height)
		}
		if i > 0 && g.Point.Height <= gates[i-1].Point.Height {
			return nil, fmt.Errorf("%w: fork heights not ascending at %d", ErrConfiguration, g.Point.Height)
		}
	}
	ordered := slices.Clone(gates)
	slices.Reverse(ordered)
	return &ValidatorChain{gates: ordered, fallback: fallback}, nil
}

// Select returns the algorithm governing the candidate of ctx. When an
// anchored gate refuses because of a hash mismatch, Select still reports the
// algorithm it fell through to, together with the mismatch error.
func (vc *ValidatorChain) Select(ctx *ChainContext) (Selection, error) {
	var mismatch error
	for i := range vc.gates {
		g := &vc.gates[i]
		ok, err := g.Activates(ctx)
		if err != nil {
			var am *AnchorMismatchError
			if !errors.As(err, &am) {
				return Selection{}, err
			}
			if mismatch == nil {
				mismatch = err
			}
			continue
		}
		if ok {
			return Selection{Algo: g.Algo, Fork: &g.Point}, mismatch
		}
	}
	if vc.fallback == nil {
		return Selection{}, ErrNoApplicableAlgorithm
	}
	return Selection{Algo: vc.fallback}, mismatch
}

// RequiredBits returns the compact target the candidate of ctx must declare.
func (vc *ValidatorChain) RequiredBits(ctx *ChainContext) (uint32, error) {
	sel, err := vc.Select(ctx)
	if err != nil {
		return 0, err
	}
	return RequiredBits(sel.Algo, ctx)
}

// Validate checks that h declares the bits its canonical algorithm requires.
// Headers at or below the source's base height carry no history to retarget
// from and are accepted; so are headers whose retarget window reaches below
// the base.
func (vc *ValidatorChain) Validate(h *block.Header, src HeaderSource) error {
	if h.Height <= src.BaseHeight() {
		return nil
	}
	ctx := NewChainContext(src, h)
	want, err := vc.RequiredBits(ctx)
	if err != nil {
		var missing *MissingAncestorError
		if errors.As(err, &missing) && missing.Height < src.BaseHeight() {
			klog.Consensus.Debug().
				Uint32("height", h.Height).
				Uint32("base", src.BaseHeight()).
				Msg("Retarget window below checkpoint, difficulty not checked")
			return nil
		}
		return err
	}
	if h.Bits != want {
		return &BitsMismatchError{Height: h.Height, Want: want, Got: h.Bits}
	}
	return nil
}
