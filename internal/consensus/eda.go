package consensus

import (
	"github.com/btcsuite/btcd/blockchain"

	klog "github.com/Klingon-tech/ecashkit/internal/log"
)

// EDA is the emergency difficulty adjustment of August 2017. Between legacy
// retargets it lowers difficulty by 20% whenever the six blocks before the
// parent took at least Threshold of median time.
type EDA struct {
	Legacy         *LegacyPeriodic
	ReferenceDepth uint32
	Threshold      int64 // seconds
}

func (a *EDA) Name() string { return "eda" }

func (a *EDA) next(ctx *ChainContext) (uint32, error) {
	if ctx.Candidate().Height%a.Legacy.Interval == 0 {
		return a.Legacy.next(ctx)
	}

	prev, err := ctx.Previous()
	if err != nil {
		return 0, err
	}
	limitBits := blockchain.BigToCompact(a.Legacy.PowLimit)
	if prev.Bits == limitBits || prev.Height < a.ReferenceDepth {
		return prev.Bits, nil
	}

	ref, err := ctx.AncestorAt(prev.Height - a.ReferenceDepth)
	if err != nil {
		return 0, err
	}
	mtpPrev, err := ctx.MedianTimePast(prev)
	if err != nil {
		return 0, err
	}
	mtpRef, err := ctx.MedianTimePast(ref)
	if err != nil {
		return 0, err
	}
	if mtpPrev-mtpRef < a.Threshold {
		return prev.Bits, nil
	}

	t := blockchain.CompactToBig(prev.Bits)
	quarter := blockchain.CompactToBig(prev.Bits)
	t.Add(t, quarter.Rsh(quarter, 2))
	bits := blockchain.BigToCompact(capTarget(t, a.Legacy.PowLimit))
	klog.Consensus.Debug().
		Uint32("height", ctx.Candidate().Height).
		Int64("mtp_span", mtpPrev-mtpRef).
		Str("old_bits", bitsHex(prev.Bits)).
		Str("new_bits", bitsHex(bits)).
		Msg("Emergency difficulty adjustment")
	return bits, nil
}
