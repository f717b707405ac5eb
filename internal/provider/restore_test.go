package provider

import (
	"context"
	"testing"

	"github.com/Klingon-tech/ecashkit/internal/storage"
)

func TestRestoring_SwitchesAfterRestore(t *testing.T) {
	db := storage.NewMemory()
	restore := &fakeProvider{name: "chronik", headers: serveHeaders}
	sync := &fakeProvider{name: "blockchair", headers: serveHeaders}
	tr := newTracker(t, db)
	r, err := NewRestoring(restore, sync, tr)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.FetchHeaders(context.Background(), 100, 5); err != nil {
		t.Fatal(err)
	}
	if r.Name() != "chronik" || len(restore.requests) != 1 || len(sync.requests) != 0 {
		t.Fatalf("before restore: name %s, restore %v, sync %v", r.Name(), restore.requests, sync.requests)
	}

	if err := tr.SetRestored(); err != nil {
		t.Fatal(err)
	}
	if _, err := r.FetchTransactions(context.Background(), []string{"ecash:q"}, 105); err != nil {
		t.Fatal(err)
	}
	if r.Name() != "blockchair" || len(sync.requests) != 1 {
		t.Fatalf("after restore: name %s, sync %v", r.Name(), sync.requests)
	}

	// A restarted wallet goes straight to the sync provider.
	restarted, err := NewRestoring(restore, sync, newTracker(t, db))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := restarted.FetchHeaders(context.Background(), 106, 5); err != nil {
		t.Fatal(err)
	}
	if len(restore.requests) != 1 || len(sync.requests) != 2 {
		t.Fatalf("after restart: restore %v, sync %v", restore.requests, sync.requests)
	}
}

func TestNewRestoring_RequiresBoth(t *testing.T) {
	tr := newTracker(t, storage.NewMemory())
	p := &fakeProvider{name: "p", headers: serveHeaders}
	if _, err := NewRestoring(nil, p, tr); err == nil {
		t.Fatal("NewRestoring(nil, p) should fail")
	}
	if _, err := NewRestoring(p, nil, tr); err == nil {
		t.Fatal("NewRestoring(p, nil) should fail")
	}
}
