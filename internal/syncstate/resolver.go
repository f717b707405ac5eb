package syncstate

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/clock"

	"github.com/Klingon-tech/ecashkit/config"
)

// DefaultSafetyMargin is how old a checkpoint must be before an API sync
// trusts it as a starting point.
const DefaultSafetyMargin = 30 * 24 * time.Hour

// Start is where a sync session begins.
type Start struct {
	Height uint32
	Hash   chainhash.Hash
	// Resume is true when continuing from a persisted cursor rather than
	// from a checkpoint. The header at Height is then already stored.
	Resume bool
}

// Resolver picks the starting point of a sync session.
type Resolver struct {
	params       *config.Params
	tracker      *Tracker
	clock        clock.Clock
	SafetyMargin time.Duration
}

// NewResolver creates a resolver over the embedded checkpoints of params.
func NewResolver(params *config.Params, tracker *Tracker, clk clock.Clock) *Resolver {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	return &Resolver{
		params:       params,
		tracker:      tracker,
		clock:        clk,
		SafetyMargin: DefaultSafetyMargin,
	}
}

// Resolve returns the starting point for the tracker's strategy. A persisted
// cursor always wins: the session resumes right after verified data.
// Otherwise full sync starts at genesis and API strategies at the latest
// checkpoint older than the safety margin.
func (r *Resolver) Resolve() (Start, error) {
	cur := r.tracker.Cursor()
	if !cur.IsZero() {
		return Start{Height: cur.Height, Hash: cur.Hash, Resume: true}, nil
	}
	cp := r.Checkpoint(r.tracker.Strategy())
	return Start{Height: cp.Height, Hash: cp.Hash}, nil
}

// Checkpoint returns the checkpoint a fresh session of strategy starts from.
func (r *Resolver) Checkpoint(strategy config.SyncMode) config.Checkpoint {
	if strategy == config.SyncFull {
		return r.params.Genesis()
	}
	cutoff := r.clock.Now().Add(-r.SafetyMargin)
	best := r.params.Genesis()
	for _, cp := range r.params.Checkpoints {
		if !cp.Time.After(cutoff) && cp.Height > best.Height {
			best = cp
		}
	}
	return best
}
