package syncstate

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Klingon-tech/ecashkit/config"
	klog "github.com/Klingon-tech/ecashkit/internal/log"
	"github.com/Klingon-tech/ecashkit/internal/storage"
)

var (
	prefixCursor = []byte("s/cursor/")   // s/cursor/<strategy> -> cursor
	prefixDone   = []byte("s/restored/") // s/restored/<strategy> -> 1
)

// Tracker owns the cursor of one sync strategy. The cursor only moves
// forward, and only together with the data it covers.
type Tracker struct {
	mu       sync.Mutex
	db       storage.DB
	strategy config.SyncMode
	cursor   Cursor
	restored bool
}

// NewTracker loads the persisted cursor of strategy from db.
func NewTracker(db storage.DB, strategy config.SyncMode) (*Tracker, error) {
	t := &Tracker{db: db, strategy: strategy}
	if err := t.Load(); err != nil {
		return nil, err
	}
	return t, nil
}

// Load re-reads the persisted state, discarding the in-memory copy.
func (t *Tracker) Load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := Cursor{Strategy: t.strategy}
	data, err := t.db.Get(t.cursorKey())
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return fmt.Errorf("load cursor: %w", err)
	default:
		if cur, err = CursorFromBytes(data); err != nil {
			return err
		}
		if cur.Strategy != t.strategy {
			return fmt.Errorf("%w: stored %q, want %q", ErrDiscontinuous, cur.Strategy, t.strategy)
		}
	}

	restored, err := t.db.Has(t.restoredKey())
	if err != nil {
		return fmt.Errorf("load restored flag: %w", err)
	}

	t.cursor = cur
	t.restored = restored
	return nil
}

// Strategy returns the tracked strategy.
func (t *Tracker) Strategy() config.SyncMode {
	return t.strategy
}

// Cursor returns the current cursor.
func (t *Tracker) Cursor() Cursor {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cursor
}

// Commit writes next into b and commits b. The data staged in b and the
// cursor become visible together or not at all. A nil b commits the cursor
// alone. On failure the in-memory cursor is unchanged.
func (t *Tracker) Commit(b storage.Batch, next Cursor) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if next.Strategy != t.strategy {
		return fmt.Errorf("%w: commit for %q on %q tracker", ErrDiscontinuous, next.Strategy, t.strategy)
	}
	if next.IsZero() {
		return fmt.Errorf("%w: empty cursor", ErrCursorRegression)
	}
	if !t.cursor.IsZero() && next.Height <= t.cursor.Height {
		return fmt.Errorf("%w: %d -> %d", ErrCursorRegression, t.cursor.Height, next.Height)
	}
	// The cutover is recorded once and never forgotten.
	if t.cursor.Cutover != 0 {
		next.Cutover = t.cursor.Cutover
		next.Source = t.cursor.Source
	}

	if err := t.write(b, next); err != nil {
		return err
	}
	t.cursor = next
	return nil
}

// MarkCutover records that the primary provider could not serve history at
// height and that source serves it from there on. Only the first call has an
// effect.
func (t *Tracker) MarkCutover(height uint32, source string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cursor.Cutover != 0 {
		return nil
	}
	if height == 0 {
		height = 1
	}
	next := t.cursor
	next.Cutover = height
	next.Source = source
	if err := t.write(nil, next); err != nil {
		return err
	}
	t.cursor = next
	klog.Sync.Info().
		Str("strategy", string(t.strategy)).
		Uint32("cutover", height).
		Str("source", source).
		Msg("Primary provider cutover recorded")
	return nil
}

// Restored reports whether an initial restore from the providers completed.
func (t *Tracker) Restored() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.restored
}

// SetRestored persists the restored flag.
func (t *Tracker) SetRestored() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.restored {
		return nil
	}
	if err := t.db.Put(t.restoredKey(), []byte{1}); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	t.restored = true
	return nil
}

func (t *Tracker) write(b storage.Batch, c Cursor) error {
	if b == nil {
		b = storage.NewBatch(t.db)
	}
	if err := b.Put(t.cursorKey(), c.Bytes()); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	if err := b.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

func (t *Tracker) cursorKey() []byte {
	return append(append([]byte(nil), prefixCursor...), t.strategy...)
}

func (t *Tracker) restoredKey() []byte {
	return append(append([]byte(nil), prefixDone...), t.strategy...)
}
