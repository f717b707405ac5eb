package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// =============================================================================
// Protocol Rules (immutable, compiled in per network)
// These MUST match the network or validation rejects the canonical chain.
// =============================================================================

// ErrUnsupportedNetwork is returned when no parameters exist for a network.
var ErrUnsupportedNetwork = errors.New("unsupported network")

// Algorithm names a difficulty retarget algorithm.
type Algorithm uint8

const (
	AlgoLegacy Algorithm = iota // 2016-block periodic retarget
	AlgoEDA                     // August 2017 emergency difficulty adjustment
	AlgoDAA                     // November 2017 cw-144 moving window
	AlgoASERT                   // November 2020 aserti3-2d
)

func (a Algorithm) String() string {
	switch a {
	case AlgoLegacy:
		return "legacy"
	case AlgoEDA:
		return "eda"
	case AlgoDAA:
		return "daa"
	case AlgoASERT:
		return "asert"
	default:
		return fmt.Sprintf("algorithm(%d)", uint8(a))
	}
}

// Fork is a height at which a retarget algorithm became canonical.
// When Anchor is set the header at Height must carry exactly that hash,
// which pins the fork to one side of a chain split.
type Fork struct {
	Height    uint32
	Anchor    *chainhash.Hash
	Algorithm Algorithm
}

// AsertAnchor is the reference block of aserti3-2d.
type AsertAnchor struct {
	Height     uint32
	Bits       uint32
	ParentTime int64 // Timestamp of the anchor's parent
}

// Checkpoint is a header trusted by hash. Time is a lower bound on the
// block timestamp at day granularity.
type Checkpoint struct {
	Height uint32
	Hash   chainhash.Hash
	Time   time.Time
}

// Params holds the consensus parameters of one network.
type Params struct {
	Network NetworkType
	Name    string

	PowLimitBits   uint32
	TargetSpacing  time.Duration
	TargetTimespan time.Duration

	// EDA
	EDAReferenceDepth uint32
	EDAThreshold      time.Duration

	// DAA
	DAAWindow uint32

	// ASERT
	Asert         AsertAnchor
	AsertHalfLife time.Duration

	// Forks in activation order (ascending height).
	Forks []Fork

	// Checkpoints in ascending height; the first one is genesis.
	Checkpoints []Checkpoint
}

// RetargetInterval is the legacy retarget period in blocks.
func (p *Params) RetargetInterval() uint32 {
	return uint32(p.TargetTimespan / p.TargetSpacing)
}

// Genesis returns the genesis checkpoint.
func (p *Params) Genesis() Checkpoint {
	return p.Checkpoints[0]
}

// Validate checks internal consistency of the parameters.
func (p *Params) Validate() error {
	if p.TargetSpacing <= 0 || p.TargetTimespan < p.TargetSpacing {
		return fmt.Errorf("%s: bad target spacing/timespan", p.Network)
	}
	if len(p.Checkpoints) == 0 || p.Checkpoints[0].Height != 0 {
		return fmt.Errorf("%s: first checkpoint must be genesis", p.Network)
	}
	for i := 1; i < len(p.Checkpoints); i++ {
		if p.Checkpoints[i].Height <= p.Checkpoints[i-1].Height {
			return fmt.Errorf("%s: checkpoints not ascending at %d", p.Network, p.Checkpoints[i].Height)
		}
	}
	for i := 1; i < len(p.Forks); i++ {
		if p.Forks[i].Height <= p.Forks[i-1].Height {
			return fmt.Errorf("%s: forks not ascending at %d", p.Network, p.Forks[i].Height)
		}
	}
	return nil
}

// eCash mainnet fork anchors.
var (
	// Block 556767: first block of the ABC side of the November 2018 split.
	abcForkHash = mustHash("0000000000000000004626ff6e3b936941d341c5932ece4357eeccac44e6d56c")
	// Block 661648: first block of the ABC side of the November 2020 split.
	axionForkHash = mustHash("000000000000000004284c9d8b2c8ff731efeaec6be50729bdc9bd07f910757d")

	genesisHash = mustHash("000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f")
)

// MainnetParams returns the eCash mainnet parameters.
func MainnetParams() *Params {
	return &Params{
		Network: Mainnet,
		Name:    "eCash",

		PowLimitBits:   0x1d00ffff,
		TargetSpacing:  10 * time.Minute,
		TargetTimespan: 14 * 24 * time.Hour,

		EDAReferenceDepth: 6,
		EDAThreshold:      12 * time.Hour,

		DAAWindow: 144,

		Asert: AsertAnchor{
			Height:     661647,
			Bits:       0x1804dafe,
			ParentTime: 1605447844,
		},
		AsertHalfLife: 2 * 24 * time.Hour,

		Forks: []Fork{
			{Height: 478559, Algorithm: AlgoEDA},
			{Height: 504032, Algorithm: AlgoDAA},
			{Height: 556767, Anchor: abcForkHash, Algorithm: AlgoDAA},
			{Height: 661648, Anchor: axionForkHash, Algorithm: AlgoASERT},
		},

		Checkpoints: []Checkpoint{
			{Height: 0, Hash: *genesisHash, Time: time.Unix(1231006505, 0).UTC()},
			{Height: 556767, Hash: *abcForkHash, Time: day(2018, time.November, 15)},
			{Height: 661648, Hash: *axionForkHash, Time: day(2020, time.November, 15)},
		},
	}
}

// ParamsFor returns the parameters of a network.
func ParamsFor(network NetworkType) (*Params, error) {
	switch network {
	case Mainnet:
		return MainnetParams(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedNetwork, network)
	}
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func mustHash(s string) *chainhash.Hash {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		panic(err)
	}
	return h
}
