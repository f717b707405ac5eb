package consensus

import (
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/blockchain"

	"github.com/Klingon-tech/ecashkit/config"
)

// Retarget is a difficulty retarget algorithm. The set of implementations is
// closed: LegacyPeriodic, EDA, DAA and ASERT.
type Retarget interface {
	// Name identifies the algorithm in logs and errors.
	Name() string

	retarget()
}

func (*LegacyPeriodic) retarget() {}
func (*EDA) retarget()            {}
func (*DAA) retarget()            {}
func (*ASERT) retarget()          {}

// RequiredBits computes the compact target the candidate of ctx must declare
// under algorithm r.
func RequiredBits(r Retarget, ctx *ChainContext) (uint32, error) {
	switch a := r.(type) {
	case *LegacyPeriodic:
		return a.next(ctx)
	case *EDA:
		return a.next(ctx)
	case *DAA:
		return a.next(ctx)
	case *ASERT:
		return a.next(ctx)
	default:
		return 0, fmt.Errorf("%w: unknown retarget algorithm %T", ErrConfiguration, r)
	}
}

// NewRetarget builds the algorithm named by algo from network parameters.
func NewRetarget(algo config.Algorithm, p *config.Params) (Retarget, error) {
	limit := blockchain.CompactToBig(p.PowLimitBits)
	legacy := &LegacyPeriodic{
		Interval:       p.RetargetInterval(),
		TargetTimespan: int64(p.TargetTimespan.Seconds()),
		PowLimit:       limit,
	}
	switch algo {
	case config.AlgoLegacy:
		return legacy, nil
	case config.AlgoEDA:
		return &EDA{
			Legacy:         legacy,
			ReferenceDepth: p.EDAReferenceDepth,
			Threshold:      int64(p.EDAThreshold.Seconds()),
		}, nil
	case config.AlgoDAA:
		return &DAA{
			Window:   p.DAAWindow,
			Spacing:  int64(p.TargetSpacing.Seconds()),
			PowLimit: limit,
		}, nil
	case config.AlgoASERT:
		return &ASERT{
			Anchor:   p.Asert,
			Spacing:  int64(p.TargetSpacing.Seconds()),
			HalfLife: int64(p.AsertHalfLife.Seconds()),
			PowLimit: limit,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown algorithm %v", ErrConfiguration, algo)
	}
}

// capTarget clamps t to limit in place.
func capTarget(t, limit *big.Int) *big.Int {
	if t.Cmp(limit) > 0 {
		t.Set(limit)
	}
	return t
}
