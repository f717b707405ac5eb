package consensus

import (
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/blockchain"

	"github.com/Klingon-tech/ecashkit/pkg/block"
)

// oneLsh256 is 2^256.
var oneLsh256 = new(big.Int).Lsh(big.NewInt(1), 256)

// DAA is the November 2017 moving-window algorithm (cw-144). The target is
// derived from the work done over the last Window blocks, with both window
// ends taken as the median-timestamp block of three to blunt timestamp games.
type DAA struct {
	Window   uint32
	Spacing  int64 // seconds
	PowLimit *big.Int
}

func (a *DAA) Name() string { return "daa" }

func (a *DAA) next(ctx *ChainContext) (uint32, error) {
	prev, err := ctx.Previous()
	if err != nil {
		return 0, err
	}
	if prev.Height < a.Window+2 {
		return 0, fmt.Errorf("%w: daa needs %d blocks of history, parent is at %d",
			ErrConfiguration, a.Window+2, prev.Height)
	}

	last, err := suitableBlock(ctx, prev)
	if err != nil {
		return 0, err
	}
	firstTip, err := ctx.AncestorAt(prev.Height - a.Window)
	if err != nil {
		return 0, err
	}
	first, err := suitableBlock(ctx, firstTip)
	if err != nil {
		return 0, err
	}

	work := new(big.Int)
	for cur := last; cur.Height > first.Height; {
		work.Add(work, blockchain.CalcWork(cur.Bits))
		if cur, err = ctx.AncestorAt(cur.Height - 1); err != nil {
			return 0, err
		}
	}
	return a.target(work, last.Time()-first.Time()), nil
}

// target converts the work done over actual seconds into a compact target:
// W = work * spacing / actual, target = (2^256 - W) / W.
func (a *DAA) target(work *big.Int, actual int64) uint32 {
	if actual > 288*a.Spacing {
		actual = 288 * a.Spacing
	} else if actual < 72*a.Spacing {
		actual = 72 * a.Spacing
	}

	w := new(big.Int).Mul(work, big.NewInt(a.Spacing))
	w.Div(w, big.NewInt(actual))
	if w.Sign() == 0 {
		return blockchain.BigToCompact(a.PowLimit)
	}
	t := new(big.Int).Sub(oneLsh256, w)
	t.Div(t, w)
	return blockchain.BigToCompact(capTarget(t, a.PowLimit))
}

// suitableBlock returns the block with the median timestamp among h and its
// two predecessors. The ordering on equal timestamps follows a fixed sorting
// network so every node picks the same block.
func suitableBlock(ctx *ChainContext, h *block.Header) (*block.Header, error) {
	b1, err := ctx.AncestorAt(h.Height - 1)
	if err != nil {
		return nil, err
	}
	b0, err := ctx.AncestorAt(h.Height - 2)
	if err != nil {
		return nil, err
	}
	blocks := [3]*block.Header{b0, b1, h}
	if blocks[0].Time() > blocks[2].Time() {
		blocks[0], blocks[2] = blocks[2], blocks[0]
	}
	if blocks[0].Time() > blocks[1].Time() {
		blocks[0], blocks[1] = blocks[1], blocks[0]
	}
	if blocks[1].Time() > blocks[2].Time() {
		blocks[1], blocks[2] = blocks[2], blocks[1]
	}
	return blocks[1], nil
}
