package consensus

import (
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/blockchain"

	"github.com/Klingon-tech/ecashkit/config"
	klog "github.com/Klingon-tech/ecashkit/internal/log"
)

// ASERT is aserti3-2d, the November 2020 absolutely scheduled exponentially
// rising target. The target doubles for every HalfLife the chain runs behind
// the schedule fixed by the anchor block and halves for every HalfLife ahead.
type ASERT struct {
	Anchor   config.AsertAnchor
	Spacing  int64 // seconds
	HalfLife int64 // seconds
	PowLimit *big.Int
}

func (a *ASERT) Name() string { return "asert" }

func (a *ASERT) next(ctx *ChainContext) (uint32, error) {
	prev, err := ctx.Previous()
	if err != nil {
		return 0, err
	}
	if prev.Height < a.Anchor.Height {
		return 0, fmt.Errorf("%w: asert parent %d below anchor %d",
			ErrConfiguration, prev.Height, a.Anchor.Height)
	}
	timeDiff := prev.Time() - a.Anchor.ParentTime
	heightDiff := int64(prev.Height) - int64(a.Anchor.Height)
	bits := a.Calculate(timeDiff, heightDiff)
	klog.Consensus.Trace().
		Uint32("height", ctx.Candidate().Height).
		Int64("time_diff", timeDiff).
		Int64("height_diff", heightDiff).
		Str("bits", bitsHex(bits)).
		Msg("ASERT target")
	return bits, nil
}

// Calculate returns the compact target for a parent timeDiff seconds after
// the anchor's parent and heightDiff blocks above the anchor.
func (a *ASERT) Calculate(timeDiff, heightDiff int64) uint32 {
	// Fixed point exponent with 16 fractional bits. Division truncates
	// toward zero; the shift below floors.
	exponent := ((timeDiff - a.Spacing*(heightDiff+1)) * 65536) / a.HalfLife
	shifts := exponent >> 16
	frac := uint64(uint16(exponent))

	// 2^(frac/65536) * 65536, cubic approximation. Fits in 64 bits for every
	// 16-bit frac.
	factor := 65536 + ((195766423245049*frac +
		971821376*frac*frac +
		5127*frac*frac*frac +
		(1 << 47)) >> 48)

	next := blockchain.CompactToBig(a.Anchor.Bits)
	next.Mul(next, new(big.Int).SetUint64(factor))

	shifts -= 16
	switch {
	case shifts <= 0:
		next.Rsh(next, uint(-shifts))
	case shifts > 256:
		next.Set(a.PowLimit)
	default:
		next.Lsh(next, uint(shifts))
	}

	if next.Sign() == 0 {
		return blockchain.BigToCompact(big.NewInt(1))
	}
	return blockchain.BigToCompact(capTarget(next, a.PowLimit))
}
