package consensus

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// regtestBits is an easy target, solved in a couple of nonces.
const regtestBits = 0x207fffff

func TestDecodeBits_Rejects(t *testing.T) {
	tests := []struct {
		name string
		bits uint32
	}{
		{"zero mantissa", 0x1d000000},
		{"zero", 0},
		{"negative", 0x1d80ffff},
		{"overflow exponent", 0xff123456},
		{"overflow wide mantissa", 0x22123456},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeBits(tt.bits); !errors.Is(err, ErrBadBits) {
				t.Fatalf("DecodeBits(%08x) = %v, want ErrBadBits", tt.bits, err)
			}
		})
	}
}

func TestDecodeBits_Valid(t *testing.T) {
	got, err := DecodeBits(0x1d00ffff)
	if err != nil {
		t.Fatalf("DecodeBits: %v", err)
	}
	want := new(big.Int).Lsh(big.NewInt(0xffff), 208)
	if got.Cmp(want) != 0 {
		t.Fatalf("target = %x, want %x", got, want)
	}
}

func TestCheckHash_Boundary(t *testing.T) {
	hash := chainhash.DoubleHashH([]byte("boundary"))
	exact := blockchain.HashToBig(&hash)

	if err := checkHash(hash, exact); err != nil {
		t.Fatalf("hash equal to target rejected: %v", err)
	}
	below := new(big.Int).Sub(exact, big.NewInt(1))
	if err := checkHash(hash, below); !errors.Is(err, ErrInsufficientWork) {
		t.Fatalf("hash above target: err = %v, want ErrInsufficientWork", err)
	}
	if !errors.Is(checkHash(hash, below), ErrRejected) {
		t.Fatal("insufficient work must be a rejection")
	}
}

func TestProofOfWorkCheck_SolveAndVerify(t *testing.T) {
	check := NewProofOfWorkCheck(regtestBits)
	h := makeHeader(1, zeroHash, 1700000000, regtestBits)
	if err := Solve(context.Background(), h); err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if err := check.Verify(h); err != nil {
		t.Fatalf("Verify after Solve: %v", err)
	}
}

func TestProofOfWorkCheck_TargetAboveLimit(t *testing.T) {
	check := NewProofOfWorkCheck(mainPowLimitBits)
	h := makeHeader(1, zeroHash, 1700000000, regtestBits)
	if err := check.Verify(h); !errors.Is(err, ErrTargetAboveLimit) {
		t.Fatalf("Verify = %v, want ErrTargetAboveLimit", err)
	}
}

func TestProofOfWorkCheck_InsufficientWork(t *testing.T) {
	check := NewProofOfWorkCheck(mainPowLimitBits)
	// An unsolved header at the mainnet limit fails with overwhelming odds.
	h := makeHeader(1, zeroHash, 1700000000, mainPowLimitBits)
	if err := check.Verify(h); !errors.Is(err, ErrInsufficientWork) {
		t.Fatalf("Verify = %v, want ErrInsufficientWork", err)
	}
}

func TestSolve_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := makeHeader(1, zeroHash, 1700000000, 0x03000001)
	if err := Solve(ctx, h); !errors.Is(err, context.Canceled) {
		t.Fatalf("Solve = %v, want context.Canceled", err)
	}
}
