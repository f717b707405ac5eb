package syncstate

import (
	"errors"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/clock"
	"pgregory.net/rapid"

	"github.com/Klingon-tech/ecashkit/config"
	"github.com/Klingon-tech/ecashkit/internal/storage"
)

var errDiskFull = errors.New("disk full")

// failingDB fails every write while fail is set.
type failingDB struct {
	*storage.MemoryDB
	fail bool
}

func (f *failingDB) Put(key, value []byte) error {
	if f.fail {
		return errDiskFull
	}
	return f.MemoryDB.Put(key, value)
}

func (f *failingDB) NewBatch() storage.Batch {
	return &failingBatch{Batch: f.MemoryDB.NewBatch(), db: f}
}

type failingBatch struct {
	storage.Batch
	db *failingDB
}

func (b *failingBatch) Commit() error {
	if b.db.fail {
		return errDiskFull
	}
	return b.Batch.Commit()
}

func cursorAt(height uint32) Cursor {
	return Cursor{
		Strategy: config.SyncAPI,
		Height:   height,
		Hash:     chainhash.DoubleHashH([]byte{byte(height), byte(height >> 8), byte(height >> 16)}),
	}
}

func TestCursor_Bytes(t *testing.T) {
	c := cursorAt(661700)
	c.Cutover = 661650
	c.Source = "blockchair"
	got, err := CursorFromBytes(c.Bytes())
	if err != nil {
		t.Fatalf("CursorFromBytes: %v", err)
	}
	if got != c {
		t.Fatalf("decoded %+v, want %+v", got, c)
	}
	if _, err := CursorFromBytes([]byte{1, 2}); !errors.Is(err, ErrCorruptCursor) {
		t.Fatalf("short cursor err = %v, want ErrCorruptCursor", err)
	}
	bad := c.Bytes()
	bad[40] = 200
	if _, err := CursorFromBytes(bad); !errors.Is(err, ErrCorruptCursor) {
		t.Fatalf("overlong source err = %v, want ErrCorruptCursor", err)
	}
}

func TestCursor_Next(t *testing.T) {
	if n := (Cursor{}).Next(); n != 0 {
		t.Fatalf("empty Next = %d, want 0", n)
	}
	if n := cursorAt(10).Next(); n != 11 {
		t.Fatalf("Next = %d, want 11", n)
	}
}

func TestTracker_CommitAndReload(t *testing.T) {
	db := storage.NewMemory()
	tr, err := NewTracker(db, config.SyncAPI)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	if !tr.Cursor().IsZero() {
		t.Fatal("fresh tracker should have an empty cursor")
	}

	b := storage.NewBatch(db)
	if err := b.Put([]byte("h/data"), []byte("batch")); err != nil {
		t.Fatal(err)
	}
	if err := tr.Commit(b, cursorAt(100)); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if v, err := db.Get([]byte("h/data")); err != nil || string(v) != "batch" {
		t.Fatalf("batch data = %q, %v", v, err)
	}

	reloaded, err := NewTracker(db, config.SyncAPI)
	if err != nil {
		t.Fatalf("NewTracker(reload): %v", err)
	}
	if reloaded.Cursor() != cursorAt(100) {
		t.Fatalf("reloaded cursor = %v, want %v", reloaded.Cursor(), cursorAt(100))
	}
}

func TestTracker_RejectsRegression(t *testing.T) {
	tr, _ := NewTracker(storage.NewMemory(), config.SyncAPI)
	if err := tr.Commit(nil, cursorAt(100)); err != nil {
		t.Fatal(err)
	}
	for _, h := range []uint32{100, 99, 0} {
		if err := tr.Commit(nil, cursorAt(h)); !errors.Is(err, ErrCursorRegression) {
			t.Fatalf("Commit(%d) = %v, want ErrCursorRegression", h, err)
		}
	}
	if tr.Cursor().Height != 100 {
		t.Fatalf("cursor moved to %d", tr.Cursor().Height)
	}
}

func TestTracker_RejectsStrategySwitch(t *testing.T) {
	tr, _ := NewTracker(storage.NewMemory(), config.SyncAPI)
	next := cursorAt(5)
	next.Strategy = config.SyncBlockchair
	if err := tr.Commit(nil, next); !errors.Is(err, ErrDiscontinuous) {
		t.Fatalf("Commit = %v, want ErrDiscontinuous", err)
	}
}

func TestTracker_PersistFailureKeepsCursor(t *testing.T) {
	db := &failingDB{MemoryDB: storage.NewMemory()}
	tr, _ := NewTracker(db, config.SyncAPI)
	if err := tr.Commit(nil, cursorAt(10)); err != nil {
		t.Fatal(err)
	}

	db.fail = true
	b := storage.NewBatch(db)
	_ = b.Put([]byte("h/lost"), []byte("x"))
	err := tr.Commit(b, cursorAt(20))
	if !errors.Is(err, ErrPersist) || !errors.Is(err, errDiskFull) {
		t.Fatalf("Commit = %v, want ErrPersist wrapping disk error", err)
	}
	if tr.Cursor().Height != 10 {
		t.Fatalf("in-memory cursor = %d, want 10", tr.Cursor().Height)
	}
	if ok, _ := db.Has([]byte("h/lost")); ok {
		t.Fatal("batch data visible after failed commit")
	}

	db.fail = false
	if err := tr.Commit(nil, cursorAt(20)); err != nil {
		t.Fatalf("Commit after recovery: %v", err)
	}
}

func TestTracker_CutoverRecordedOnce(t *testing.T) {
	db := storage.NewMemory()
	tr, _ := NewTracker(db, config.SyncAPI)
	if err := tr.Commit(nil, cursorAt(50)); err != nil {
		t.Fatal(err)
	}
	if err := tr.MarkCutover(51, "blockchair"); err != nil {
		t.Fatalf("MarkCutover: %v", err)
	}
	if err := tr.MarkCutover(90, "other"); err != nil {
		t.Fatalf("MarkCutover(again): %v", err)
	}
	if tr.Cursor().Cutover != 51 {
		t.Fatalf("cutover = %d, want 51", tr.Cursor().Cutover)
	}

	// A later commit without a cutover keeps the recorded one.
	if err := tr.Commit(nil, cursorAt(60)); err != nil {
		t.Fatal(err)
	}
	reloaded, _ := NewTracker(db, config.SyncAPI)
	if c := reloaded.Cursor(); c.Cutover != 51 || c.Height != 60 || c.Source != "blockchair" {
		t.Fatalf("reloaded = %+v, want height 60 cutover 51 via blockchair", c)
	}
}

func TestTracker_Restored(t *testing.T) {
	db := storage.NewMemory()
	tr, _ := NewTracker(db, config.SyncAPI)
	if tr.Restored() {
		t.Fatal("fresh tracker reports restored")
	}
	if err := tr.SetRestored(); err != nil {
		t.Fatal(err)
	}
	reloaded, _ := NewTracker(db, config.SyncAPI)
	if !reloaded.Restored() {
		t.Fatal("restored flag not persisted")
	}
	other, _ := NewTracker(db, config.SyncFull)
	if other.Restored() {
		t.Fatal("restored flag leaked across strategies")
	}
}

func TestTracker_StrategiesIndependent(t *testing.T) {
	db := storage.NewMemory()
	api, _ := NewTracker(db, config.SyncAPI)
	full, _ := NewTracker(db, config.SyncFull)
	if err := api.Commit(nil, cursorAt(7)); err != nil {
		t.Fatal(err)
	}
	if err := full.Load(); err != nil {
		t.Fatal(err)
	}
	if !full.Cursor().IsZero() {
		t.Fatalf("full cursor = %v, want empty", full.Cursor())
	}
}

// However commits and failures interleave, the persisted cursor never moves
// backwards and always equals the in-memory one.
func TestTracker_MonotonicProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		db := &failingDB{MemoryDB: storage.NewMemory()}
		tr, err := NewTracker(db, config.SyncAPI)
		if err != nil {
			t.Fatal(err)
		}
		var last uint32
		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			db.fail = rapid.Bool().Draw(t, "fail")
			h := rapid.Uint32Range(1, 1000).Draw(t, "height")
			err := tr.Commit(nil, cursorAt(h))
			if err == nil && h <= last {
				t.Fatalf("accepted %d after %d", h, last)
			}
			if err == nil {
				last = h
			}
			if tr.Cursor().Height != last {
				t.Fatalf("cursor = %d, want %d", tr.Cursor().Height, last)
			}
		}
		db.fail = false
		reloaded, err := NewTracker(db, config.SyncAPI)
		if err != nil {
			t.Fatal(err)
		}
		if reloaded.Cursor().Height != last {
			t.Fatalf("persisted = %d, want %d", reloaded.Cursor().Height, last)
		}
	})
}

func TestResolver_FullStartsAtGenesis(t *testing.T) {
	params := config.MainnetParams()
	tr, _ := NewTracker(storage.NewMemory(), config.SyncFull)
	r := NewResolver(params, tr, clock.NewTestClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))

	start, err := r.Resolve()
	if err != nil {
		t.Fatal(err)
	}
	if start.Height != 0 || start.Hash != params.Genesis().Hash || start.Resume {
		t.Fatalf("start = %+v, want genesis", start)
	}
}

func TestResolver_APIUsesAgedCheckpoint(t *testing.T) {
	params := config.MainnetParams()
	tr, _ := NewTracker(storage.NewMemory(), config.SyncAPI)
	clk := clock.NewTestClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	r := NewResolver(params, tr, clk)

	if start, _ := r.Resolve(); start.Height != 661648 {
		t.Fatalf("start = %d, want 661648", start.Height)
	}

	// Ten days after the 2020 checkpoint it is still too fresh.
	clk.SetTime(time.Date(2020, 11, 25, 0, 0, 0, 0, time.UTC))
	if start, _ := r.Resolve(); start.Height != 556767 {
		t.Fatalf("start = %d, want 556767", start.Height)
	}

	// Exactly at the margin the checkpoint qualifies.
	clk.SetTime(time.Date(2020, 11, 15, 0, 0, 0, 0, time.UTC).Add(DefaultSafetyMargin))
	if start, _ := r.Resolve(); start.Height != 661648 {
		t.Fatalf("start = %d, want 661648 at the margin", start.Height)
	}

	clk.SetTime(time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC))
	if start, _ := r.Resolve(); start.Height != 0 {
		t.Fatalf("start = %d, want genesis", start.Height)
	}
}

func TestResolver_ResumesFromCursor(t *testing.T) {
	params := config.MainnetParams()
	tr, _ := NewTracker(storage.NewMemory(), config.SyncAPI)
	if err := tr.Commit(nil, cursorAt(700000)); err != nil {
		t.Fatal(err)
	}
	r := NewResolver(params, tr, clock.NewTestClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))

	start, err := r.Resolve()
	if err != nil {
		t.Fatal(err)
	}
	if !start.Resume || start.Height != 700000 || start.Hash != cursorAt(700000).Hash {
		t.Fatalf("start = %+v, want resume at 700000", start)
	}
}
