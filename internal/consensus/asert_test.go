package consensus

import (
	"errors"
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/blockchain"
	"pgregory.net/rapid"

	"github.com/Klingon-tech/ecashkit/config"
)

const halfLife = 2 * 24 * 3600

func mainASERT() *ASERT {
	return &ASERT{
		Anchor:   config.AsertAnchor{Height: 661647, Bits: 0x1804dafe, ParentTime: 1605447844},
		Spacing:  600,
		HalfLife: halfLife,
		PowLimit: blockchain.CompactToBig(mainPowLimitBits),
	}
}

func TestASERT_Calculate(t *testing.T) {
	a := mainASERT()
	tests := []struct {
		name       string
		timeDiff   int64
		heightDiff int64
		want       uint32
	}{
		{"anchor child on schedule", 600, 0, 0x1804dafe},
		{"far on schedule", 600 * 10001, 10000, 0x1804dafe},
		{"one half-life behind", 600 + halfLife, 0, 0x1809b5fc},
		{"one half-life ahead", 600*289 - halfLife, 288, 0x18026d7f},
		{"far ahead floors at one", 0, 100000000, 0x01010000},
		{"far behind capped", 1 << 40, 0, mainPowLimitBits},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.Calculate(tt.timeDiff, tt.heightDiff); got != tt.want {
				t.Fatalf("Calculate(%d, %d) = %08x, want %08x", tt.timeDiff, tt.heightDiff, got, tt.want)
			}
		})
	}
}

func TestASERT_ThroughContext(t *testing.T) {
	a := mainASERT()
	src := newMemSource()
	prev := src.add(makeHeader(661647, zeroHash, 1605447844+600, 0x1804dafe))
	cand := makeHeader(661648, prev.Hash(), 1605447844+1200, 0)

	got, err := RequiredBits(a, NewChainContext(src, cand))
	if err != nil {
		t.Fatalf("RequiredBits: %v", err)
	}
	if got != 0x1804dafe {
		t.Fatalf("bits = %08x, want anchor bits", got)
	}
}

func TestASERT_BelowAnchor(t *testing.T) {
	src := newMemSource()
	prev := src.add(makeHeader(600000, zeroHash, 1600000000, 0x1804dafe))
	cand := makeHeader(600001, prev.Hash(), 1600000600, 0)

	_, err := RequiredBits(mainASERT(), NewChainContext(src, cand))
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

// Identical inputs give identical outputs, and a later parent never gets a
// harder target.
func TestASERT_DeterministicAndMonotonic(t *testing.T) {
	a := mainASERT()
	rapid.Check(t, func(t *rapid.T) {
		heightDiff := rapid.Int64Range(0, 5_000_000).Draw(t, "heightDiff")
		timeDiff := rapid.Int64Range(-1_000_000_000, 4_000_000_000).Draw(t, "timeDiff")
		later := rapid.Int64Range(0, 1_000_000).Draw(t, "later")

		b1 := a.Calculate(timeDiff, heightDiff)
		if b2 := a.Calculate(timeDiff, heightDiff); b1 != b2 {
			t.Fatalf("non-deterministic: %08x vs %08x", b1, b2)
		}

		t1 := blockchain.CompactToBig(b1)
		t2 := blockchain.CompactToBig(a.Calculate(timeDiff+later, heightDiff))
		if t2.Cmp(t1) < 0 {
			t.Fatalf("later parent got harder target: %x < %x", t2, t1)
		}
		if t1.Sign() <= 0 || t1.Cmp(a.PowLimit) > 0 {
			t.Fatalf("target %x out of (0, limit]", t1)
		}
	})
}

func TestASERT_FactorWithinOneULPOfExact(t *testing.T) {
	a := mainASERT()
	// A quarter half-life behind: factor 2^0.25.
	got := blockchain.CompactToBig(a.Calculate(600+halfLife/4, 0))
	ref := blockchain.CompactToBig(0x1804dafe)

	// 2^0.25 * 2^16 = 77935.1
	want := new(big.Int).Mul(ref, big.NewInt(77935))
	want.Rsh(want, 16)
	diff := new(big.Int).Sub(got, want)
	diff.Abs(diff)
	if diff.Cmp(new(big.Int).Rsh(want, 14)) > 0 {
		t.Fatalf("target %x, want about %x", got, want)
	}
}
