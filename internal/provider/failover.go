package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	klog "github.com/Klingon-tech/ecashkit/internal/log"
	"github.com/Klingon-tech/ecashkit/internal/syncstate"
	"github.com/Klingon-tech/ecashkit/pkg/block"
	"github.com/Klingon-tech/ecashkit/pkg/tx"
)

// State is the routing state of a Failover.
type State int

const (
	UsingPrimary State = iota
	UsingSecondary
	Exhausted
)

func (s State) String() string {
	switch s {
	case UsingPrimary:
		return "primary"
	case UsingSecondary:
		return "secondary"
	case Exhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Failover routes requests to a fast primary with limited history and
// switches, once and for good, to a complete-history secondary when the
// primary cannot serve a range. The switch is recorded in the sync cursor
// so a restarted session goes straight to the secondary.
type Failover struct {
	mu        sync.Mutex
	primary   Provider
	secondary Provider
	tracker   *syncstate.Tracker
	state     State
}

// NewFailover composes primary and secondary. Either may be nil, in which
// case the other one is used alone.
func NewFailover(primary, secondary Provider, tracker *syncstate.Tracker) (*Failover, error) {
	if primary == nil && secondary == nil {
		return nil, errors.New("no provider configured")
	}
	if tracker == nil {
		return nil, errors.New("sync tracker is nil")
	}
	f := &Failover{primary: primary, secondary: secondary, tracker: tracker}
	switch {
	case primary == nil:
		f.state = UsingSecondary
	case secondary == nil:
		f.state = UsingPrimary
	case tracker.Cursor().Cutover != 0:
		f.state = UsingSecondary
	default:
		f.state = UsingPrimary
	}
	return f, nil
}

// Name implements Provider.
func (f *Failover) Name() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p := f.active(); p != nil {
		return p.Name()
	}
	return "exhausted"
}

// State returns the current routing state.
func (f *Failover) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Failover) active() Provider {
	switch f.state {
	case UsingPrimary:
		return f.primary
	case UsingSecondary:
		return f.secondary
	default:
		return nil
	}
}

// FetchHeaders implements Provider. Heights covered by the sync cursor are
// never requested again: from is raised to the first uncovered height.
func (f *Failover) FetchHeaders(ctx context.Context, from uint32, count int) ([]*block.Header, error) {
	cur := f.tracker.Cursor()
	if next := cur.Next(); from < next {
		from = next
	}
	var headers []*block.Header
	err := f.route(from, func(p Provider) error {
		var err error
		headers, err = p.FetchHeaders(ctx, from, count)
		return err
	})
	return headers, err
}

// FetchTransactions implements Provider.
func (f *Failover) FetchTransactions(ctx context.Context, addresses []string, fromHeight uint32) ([]*tx.Record, error) {
	var records []*tx.Record
	err := f.route(fromHeight, func(p Provider) error {
		var err error
		records, err = p.FetchTransactions(ctx, addresses, fromHeight)
		return err
	})
	return records, err
}

// route runs call against the active provider. The lock is held only to read
// and change the state, never across a provider call.
func (f *Failover) route(height uint32, call func(Provider) error) error {
	if f.State() == UsingPrimary {
		err := call(f.primary)
		if !errors.Is(err, ErrRangeUnavailable) {
			return err
		}
		if err := f.cutover(height, err); err != nil {
			return err
		}
	}

	if f.State() != UsingSecondary {
		return ErrExhausted
	}
	err := call(f.secondary)
	if err == nil || IsRetryable(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	f.mu.Lock()
	if f.state == UsingSecondary {
		f.state = Exhausted
		klog.Provider.Error().
			Err(err).
			Str("provider", f.secondary.Name()).
			Msg("Secondary provider failed")
	}
	f.mu.Unlock()
	return fmt.Errorf("%w: %s: %w", ErrExhausted, f.secondary.Name(), err)
}

// cutover moves routing off the primary after it reported cause at height.
// A concurrent caller may have switched already; that switch stands.
func (f *Failover) cutover(height uint32, cause error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.state {
	case UsingSecondary:
		return nil
	case Exhausted:
		return ErrExhausted
	}
	if f.secondary == nil {
		f.state = Exhausted
		return fmt.Errorf("%w: %s: %w", ErrExhausted, f.primary.Name(), cause)
	}
	if err := f.tracker.MarkCutover(height, f.secondary.Name()); err != nil {
		return err
	}
	f.state = UsingSecondary
	klog.Provider.Info().
		Str("from", f.primary.Name()).
		Str("to", f.secondary.Name()).
		Uint32("height", height).
		Msg("Primary provider history exhausted, switching to secondary")
	return nil
}
