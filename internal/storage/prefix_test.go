package storage

import (
	"fmt"
	"sort"
	"testing"
)

func TestPrefixDB_Isolation(t *testing.T) {
	inner := NewMemory()
	api := NewPrefixDB(inner, []byte("mainnet/w1/api/"))
	full := NewPrefixDB(inner, []byte("mainnet/w1/full/"))

	if err := api.Put([]byte("cursor"), []byte("api")); err != nil {
		t.Fatal(err)
	}
	if err := full.Put([]byte("cursor"), []byte("full")); err != nil {
		t.Fatal(err)
	}

	got, err := api.Get([]byte("cursor"))
	if err != nil || string(got) != "api" {
		t.Fatalf("api.Get = %q, %v; want %q", got, err, "api")
	}
	got, err = full.Get([]byte("cursor"))
	if err != nil || string(got) != "full" {
		t.Fatalf("full.Get = %q, %v; want %q", got, err, "full")
	}

	raw, err := inner.Get([]byte("mainnet/w1/api/cursor"))
	if err != nil || string(raw) != "api" {
		t.Fatalf("inner raw key = %q, %v", raw, err)
	}
}

func TestPrefixDB_ForEachStripsPrefix(t *testing.T) {
	inner := NewMemory()
	db := NewPrefixDB(inner, []byte("ns/"))

	db.Put([]byte("h/1"), []byte("v1"))
	db.Put([]byte("h/2"), []byte("v2"))
	db.Put([]byte("s/tip"), []byte("v3"))

	var keys []string
	err := db.ForEach([]byte("h/"), func(key, value []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "h/1" || keys[1] != "h/2" {
		t.Fatalf("ForEach keys = %v, want [h/1 h/2]", keys)
	}
}

func TestPrefixDB_ForEachStopEarly(t *testing.T) {
	db := NewPrefixDB(NewMemory(), []byte("p/"))
	for i := 0; i < 10; i++ {
		db.Put([]byte(fmt.Sprintf("k%d", i)), []byte("v"))
	}

	count := 0
	stopErr := fmt.Errorf("stop")
	err := db.ForEach(nil, func(key, value []byte) error {
		count++
		if count >= 3 {
			return stopErr
		}
		return nil
	})
	if err != stopErr {
		t.Fatalf("ForEach err = %v, want stopErr", err)
	}
	if count != 3 {
		t.Fatalf("ForEach called %d times, want 3", count)
	}
}

func TestPrefixDB_DeleteAll(t *testing.T) {
	testDeleteAll := func(t *testing.T, inner DB) {
		a := NewPrefixDB(inner, []byte("a/"))
		b := NewPrefixDB(inner, []byte("b/"))

		a.Put([]byte("k1"), []byte("v1"))
		a.Put([]byte("k2"), []byte("v2"))
		b.Put([]byte("k1"), []byte("other"))

		if err := a.DeleteAll(); err != nil {
			t.Fatalf("DeleteAll: %v", err)
		}
		for _, k := range []string{"k1", "k2"} {
			if ok, _ := a.Has([]byte(k)); ok {
				t.Fatalf("a still has %q after DeleteAll", k)
			}
		}
		got, err := b.Get([]byte("k1"))
		if err != nil || string(got) != "other" {
			t.Fatalf("b.Get after a.DeleteAll = %q, %v", got, err)
		}
	}

	t.Run("Memory", func(t *testing.T) {
		testDeleteAll(t, NewMemory())
	})
	t.Run("Badger", func(t *testing.T) {
		db, err := NewBadger(t.TempDir())
		if err != nil {
			t.Fatal(err)
		}
		defer db.Close()
		testDeleteAll(t, db)
	})
}

func TestPrefixDB_Batch(t *testing.T) {
	inner := NewMemory()
	db := NewPrefixDB(inner, []byte("w/"))

	b := db.NewBatch()
	b.Put([]byte("h/1"), []byte("x"))
	b.Put([]byte("s/cursor"), []byte("y"))
	if ok, _ := inner.Has([]byte("w/h/1")); ok {
		t.Fatal("batch visible before Commit")
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if ok, _ := inner.Has([]byte("w/h/1")); !ok {
		t.Fatal("inner missing prefixed key after Commit")
	}
	if ok, _ := db.Has([]byte("s/cursor")); !ok {
		t.Fatal("prefix db missing key after Commit")
	}
}

func TestPrefixDB_CloseIsNoop(t *testing.T) {
	inner := NewMemory()
	db := NewPrefixDB(inner, []byte("x/"))
	db.Put([]byte("key"), []byte("val"))

	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	got, err := inner.Get([]byte("x/key"))
	if err != nil || string(got) != "val" {
		t.Fatalf("inner.Get after Close = %q, %v", got, err)
	}
}
