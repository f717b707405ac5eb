package consensus

import (
	"math/big"

	"github.com/btcsuite/btcd/blockchain"

	klog "github.com/Klingon-tech/ecashkit/internal/log"
)

// LegacyPeriodic is the original 2016-block retarget. The target changes only
// on interval boundaries, scaled by how long the previous interval took,
// bounded to a factor of four either way.
type LegacyPeriodic struct {
	Interval       uint32
	TargetTimespan int64 // seconds
	PowLimit       *big.Int
}

func (a *LegacyPeriodic) Name() string { return "legacy" }

func (a *LegacyPeriodic) next(ctx *ChainContext) (uint32, error) {
	prev, err := ctx.Previous()
	if err != nil {
		return 0, err
	}
	height := ctx.Candidate().Height
	if height%a.Interval != 0 {
		return prev.Bits, nil
	}

	first, err := ctx.AncestorAt(height - a.Interval)
	if err != nil {
		return 0, err
	}
	bits := a.Adjust(prev.Bits, prev.Time()-first.Time())
	klog.Consensus.Debug().
		Uint32("height", height).
		Int64("timespan", prev.Time()-first.Time()).
		Str("old_bits", bitsHex(prev.Bits)).
		Str("new_bits", bitsHex(bits)).
		Msg("Legacy retarget")
	return bits, nil
}

// Adjust scales the target encoded by bits by actual/TargetTimespan, with
// actual clamped to [TargetTimespan/4, TargetTimespan*4].
func (a *LegacyPeriodic) Adjust(bits uint32, actual int64) uint32 {
	minSpan := a.TargetTimespan / 4
	maxSpan := a.TargetTimespan * 4
	if actual < minSpan {
		actual = minSpan
	}
	if actual > maxSpan {
		actual = maxSpan
	}

	t := blockchain.CompactToBig(bits)
	t.Mul(t, big.NewInt(actual))
	t.Div(t, big.NewInt(a.TargetTimespan))
	return blockchain.BigToCompact(capTarget(t, a.PowLimit))
}
