package consensus

import (
	"fmt"

	"github.com/Klingon-tech/ecashkit/config"
	"github.com/Klingon-tech/ecashkit/pkg/block"
)

// Check is one validation rule of a ValidatorSet. The set of checks is
// closed: *ProofOfWorkCheck and *ValidatorChain.
type Check interface {
	check()
}

func (*ProofOfWorkCheck) check() {}
func (*ValidatorChain) check()   {}

// ValidatorSet runs every check against a header; all must pass.
// It is immutable and safe for concurrent use.
type ValidatorSet struct {
	checks []Check
}

// NewValidatorSet composes the checks for a network.
func NewValidatorSet(p *config.Params) (*ValidatorSet, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil params", config.ErrUnsupportedNetwork)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	chain, err := NewNetworkChain(p)
	if err != nil {
		return nil, err
	}
	return NewValidatorSetWith(NewProofOfWorkCheck(p.PowLimitBits), chain), nil
}

// NewValidatorSetWith composes an explicit list of checks.
func NewValidatorSetWith(checks ...Check) *ValidatorSet {
	return &ValidatorSet{checks: append([]Check(nil), checks...)}
}

// NewNetworkChain builds the validator chain of a network: one gate per fork
// and the legacy algorithm below all of them.
func NewNetworkChain(p *config.Params) (*ValidatorChain, error) {
	fallback, err := NewRetarget(config.AlgoLegacy, p)
	if err != nil {
		return nil, err
	}
	gates := make([]Gate, 0, len(p.Forks))
	for _, f := range p.Forks {
		algo, err := NewRetarget(f.Algorithm, p)
		if err != nil {
			return nil, err
		}
		gates = append(gates, Gate{
			Point: ForkPoint{Height: f.Height, Anchor: f.Anchor},
			Algo:  algo,
		})
	}
	return NewValidatorChain(fallback, gates...)
}

// Validate checks h against src, the branch it extends.
func (s *ValidatorSet) Validate(h *block.Header, src HeaderSource) error {
	for _, c := range s.checks {
		var err error
		switch c := c.(type) {
		case *ProofOfWorkCheck:
			err = c.Verify(h)
		case *ValidatorChain:
			err = c.Validate(h, src)
		default:
			err = fmt.Errorf("%w: unknown check %T", ErrConfiguration, c)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
