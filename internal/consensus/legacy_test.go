package consensus

import (
	"errors"
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/blockchain"
	"pgregory.net/rapid"
)

const (
	mainPowLimitBits = 0x1d00ffff
	twoWeeks         = 14 * 24 * 60 * 60
)

func mainLegacy() *LegacyPeriodic {
	return &LegacyPeriodic{
		Interval:       2016,
		TargetTimespan: twoWeeks,
		PowLimit:       blockchain.CompactToBig(mainPowLimitBits),
	}
}

func TestLegacy_BetweenBoundariesKeepsBits(t *testing.T) {
	src := newMemSource()
	src.buildChain(0, 100, 1231006505, 600, 0x1c0ffff0)
	cand := src.next(100, 1231006505+101*600, 0)

	bits, err := RequiredBits(mainLegacy(), NewChainContext(src, cand))
	if err != nil {
		t.Fatalf("RequiredBits: %v", err)
	}
	if bits != 0x1c0ffff0 {
		t.Fatalf("bits = %08x, want 1c0ffff0", bits)
	}
}

// First retarget below the limit on the historical chain: block 32256.
func TestLegacy_Block32256(t *testing.T) {
	src := newMemSource()
	src.add(makeHeader(30240, zeroHash, 1261130161, mainPowLimitBits))
	prev := src.add(makeHeader(32255, zeroHash, 1262152739, mainPowLimitBits))
	cand := makeHeader(32256, prev.Hash(), 1262153464, 0)

	bits, err := RequiredBits(mainLegacy(), NewChainContext(src, cand))
	if err != nil {
		t.Fatalf("RequiredBits: %v", err)
	}
	if bits != 0x1d00d86a {
		t.Fatalf("bits = %08x, want 1d00d86a", bits)
	}
}

func TestLegacy_CappedAtPowLimit(t *testing.T) {
	a := mainLegacy()
	// Maximally slow interval at the limit stays at the limit.
	if got := a.Adjust(mainPowLimitBits, twoWeeks*10); got != mainPowLimitBits {
		t.Fatalf("Adjust = %08x, want %08x", got, mainPowLimitBits)
	}
}

func TestLegacy_ClampExtremes(t *testing.T) {
	a := mainLegacy()
	const bits = 0x1b0404cb
	// Anything faster than a quarter behaves like exactly a quarter.
	if a.Adjust(bits, 1) != a.Adjust(bits, twoWeeks/4) {
		t.Fatal("fast interval not clamped to timespan/4")
	}
	if a.Adjust(bits, -5000) != a.Adjust(bits, twoWeeks/4) {
		t.Fatal("negative interval not clamped to timespan/4")
	}
	if a.Adjust(bits, twoWeeks*100) != a.Adjust(bits, twoWeeks*4) {
		t.Fatal("slow interval not clamped to timespan*4")
	}
	if a.Adjust(bits, twoWeeks) != bits {
		t.Fatalf("on-schedule interval changed bits to %08x", a.Adjust(bits, twoWeeks))
	}
}

func TestLegacy_MissingFirstBlock(t *testing.T) {
	src := newMemSource()
	prev := src.add(makeHeader(4031, zeroHash, 1000, mainPowLimitBits))
	cand := makeHeader(4032, prev.Hash(), 1600, 0)

	_, err := RequiredBits(mainLegacy(), NewChainContext(src, cand))
	var missing *MissingAncestorError
	if !errors.As(err, &missing) || missing.Height != 2016 {
		t.Fatalf("err = %v, want missing ancestor at 2016", err)
	}
}

// The adjustment between consecutive periods never exceeds a factor of four
// in either direction, whatever the timestamps.
func TestLegacy_ClampProperty(t *testing.T) {
	a := &LegacyPeriodic{
		Interval:       2016,
		TargetTimespan: twoWeeks,
		PowLimit:       new(big.Int).Lsh(big.NewInt(1), 255),
	}
	rapid.Check(t, func(t *rapid.T) {
		mantissa := rapid.Uint32Range(0x008000, 0x7fffff).Draw(t, "mantissa")
		exponent := rapid.Uint32Range(3, 0x1f).Draw(t, "exponent")
		actual := rapid.Int64Range(-10*twoWeeks, 100*twoWeeks).Draw(t, "actual")

		bits := exponent<<24 | mantissa
		old := blockchain.CompactToBig(bits)
		got := blockchain.CompactToBig(a.Adjust(bits, actual))

		upper := new(big.Int).Lsh(old, 2)
		if got.Cmp(upper) > 0 {
			t.Fatalf("new target %x above 4x old %x", got, old)
		}
		// Compact encoding truncates by less than 2^-15 of the value.
		lower := new(big.Int).Lsh(got, 2)
		lower.Add(lower, new(big.Int).Rsh(old, 14))
		lower.Add(lower, big.NewInt(8))
		if lower.Cmp(old) < 0 {
			t.Fatalf("new target %x below old/4, old %x", got, old)
		}
	})
}
