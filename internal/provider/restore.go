package provider

import (
	"context"
	"errors"

	"github.com/Klingon-tech/ecashkit/internal/syncstate"
	"github.com/Klingon-tech/ecashkit/pkg/block"
	"github.com/Klingon-tech/ecashkit/pkg/tx"
)

// Restoring serves a wallet's initial restore from one provider and every
// later session from another. The choice follows the tracker's restored
// flag, so it survives restarts.
type Restoring struct {
	restore Provider
	sync    Provider
	tracker *syncstate.Tracker
}

// NewRestoring composes the restore and sync providers of one strategy.
func NewRestoring(restore, sync Provider, tracker *syncstate.Tracker) (*Restoring, error) {
	if restore == nil || sync == nil {
		return nil, errors.New("restore and sync providers are both required")
	}
	if tracker == nil {
		return nil, errors.New("sync tracker is nil")
	}
	return &Restoring{restore: restore, sync: sync, tracker: tracker}, nil
}

func (r *Restoring) active() Provider {
	if r.tracker.Restored() {
		return r.sync
	}
	return r.restore
}

// Name implements Provider.
func (r *Restoring) Name() string {
	return r.active().Name()
}

// FetchHeaders implements Provider.
func (r *Restoring) FetchHeaders(ctx context.Context, from uint32, count int) ([]*block.Header, error) {
	return r.active().FetchHeaders(ctx, from, count)
}

// FetchTransactions implements Provider.
func (r *Restoring) FetchTransactions(ctx context.Context, addresses []string, fromHeight uint32) ([]*tx.Record, error) {
	return r.active().FetchTransactions(ctx, addresses, fromHeight)
}
