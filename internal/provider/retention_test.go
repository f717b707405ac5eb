package provider_test

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/clock"

	"github.com/Klingon-tech/ecashkit/config"
	"github.com/Klingon-tech/ecashkit/internal/provider"
	"github.com/Klingon-tech/ecashkit/internal/provider/blockchair"
	"github.com/Klingon-tech/ecashkit/internal/provider/chronik"
	"github.com/Klingon-tech/ecashkit/internal/provider/httpapi"
	"github.com/Klingon-tech/ecashkit/internal/storage"
	"github.com/Klingon-tech/ecashkit/internal/syncstate"
	"github.com/Klingon-tech/ecashkit/pkg/block"
)

const blocksPerDay = 144

// history is a chain whose tip was mined at now, one block every ten minutes.
func history(now time.Time, tip uint32) []*block.Header {
	out := make([]*block.Header, tip+1)
	var prev chainhash.Hash
	for h := uint32(0); h <= tip; h++ {
		ts := now.Add(-time.Duration(tip-h) * 10 * time.Minute)
		out[h] = block.NewHeader(h, wire.BlockHeader{PrevBlock: prev, Timestamp: ts, Bits: 0x207fffff})
		prev = out[h].Hash()
	}
	return out
}

func rawHex(h *block.Header) string {
	return hex.EncodeToString(h.Bytes()[4:])
}

func TestFailover_NinetyDayRetention(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	tip := uint32(200 * blocksPerDay)
	chain := history(now, tip)

	chronikHits := 0
	chronikSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chronikHits++
		var from, to uint32
		if _, err := fmt.Sscanf(r.URL.Path, "/blocks/%d/%d", &from, &to); err != nil {
			http.NotFound(w, r)
			return
		}
		type entry struct {
			Height uint32 `json:"height"`
			Raw    string `json:"raw"`
		}
		var out struct {
			Headers []entry `json:"headers"`
		}
		for h := from; h <= to && h <= tip; h++ {
			out.Headers = append(out.Headers, entry{h, rawHex(chain[h])})
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer chronikSrv.Close()

	blockchairHits := 0
	blockchairSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		blockchairHits++
		from, _ := strconv.Atoi(r.URL.Query().Get("from"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		data := []map[string]any{}
		for h := from; h < from+limit && h <= int(tip); h++ {
			data = append(data, map[string]any{"id": h, "raw_header": rawHex(chain[h])})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data, "context": map[string]any{"code": 200}})
	}))
	defer blockchairSrv.Close()

	newFailover := func(db storage.DB) (*provider.Failover, *syncstate.Tracker) {
		tr, err := syncstate.NewTracker(db, config.SyncAPI)
		if err != nil {
			t.Fatal(err)
		}
		capi, _ := httpapi.New(chronikSrv.URL, time.Second, 0)
		bapi, _ := httpapi.New(blockchairSrv.URL, time.Second, 0)
		f, err := provider.NewFailover(
			chronik.New(capi, 90*24*time.Hour, clock.NewTestClock(now)),
			blockchair.New(bapi),
			tr,
		)
		if err != nil {
			t.Fatal(err)
		}
		return f, tr
	}

	db := storage.NewMemory()
	f, tr := newFailover(db)

	// 120 days back is outside chronik's window.
	from := tip - 120*blocksPerDay
	got, err := f.FetchHeaders(t.Context(), from, 50)
	if err != nil {
		t.Fatalf("FetchHeaders: %v", err)
	}
	if len(got) != 50 || got[0].Hash() != chain[from].Hash() {
		t.Fatalf("got %d headers starting %d", len(got), got[0].Height)
	}
	if f.State() != provider.UsingSecondary {
		t.Fatalf("state = %s, want secondary", f.State())
	}
	if chronikHits != 1 || blockchairHits != 1 {
		t.Fatalf("hits chronik=%d blockchair=%d, want 1/1", chronikHits, blockchairHits)
	}

	// Progress is recorded against the secondary from here on.
	if err := tr.Commit(nil, syncstate.Cursor{
		Strategy: config.SyncAPI,
		Height:   got[49].Height,
		Hash:     got[49].Hash(),
	}); err != nil {
		t.Fatal(err)
	}
	if c := tr.Cursor(); c.Cutover != from {
		t.Fatalf("cutover = %d, want %d", c.Cutover, from)
	}

	// Later ranges, even recent ones, never go back to the primary.
	if _, err := f.FetchHeaders(t.Context(), tip-10*blocksPerDay, 10); err != nil {
		t.Fatal(err)
	}
	if chronikHits != 1 {
		t.Fatalf("primary asked again: %d hits", chronikHits)
	}

	// After a restart the secondary is used at once, from the cursor on.
	restarted, _ := newFailover(db)
	got, err = restarted.FetchHeaders(t.Context(), from, 10)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Height != from+50 {
		t.Fatalf("restart fetched from %d, want %d", got[0].Height, from+50)
	}
	if chronikHits != 1 {
		t.Fatalf("primary asked after restart: %d hits", chronikHits)
	}
}
