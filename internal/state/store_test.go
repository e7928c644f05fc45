package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/gratbox/graph-csv-sync/internal/metrics"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "badger"), metrics.New(false))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCacheEntries(t *testing.T) {
	store := newTestStore(t)

	entries := []CacheEntry{
		{Serial: "SN001", IdentityID: "id-1", GroupTag: "Kiosk"},
		{Serial: "SN002", IdentityID: "id-2", GroupTag: ""},
	}
	for _, e := range entries {
		if err := store.PutCacheEntry(e); err != nil {
			t.Fatalf("put cache entry: %v", err)
		}
	}

	got, found, err := store.GetCacheEntry("SN001")
	if err != nil {
		t.Fatalf("get cache entry: %v", err)
	}
	if !found {
		t.Fatal("expected cache hit")
	}
	if got.IdentityID != "id-1" || got.GroupTag != "Kiosk" {
		t.Errorf("unexpected entry: %+v", got)
	}
	if got.CachedAt.IsZero() {
		t.Error("expected CachedAt to be stamped")
	}

	_, found, err = store.GetCacheEntry("SN999")
	if err != nil {
		t.Fatalf("get missing entry: %v", err)
	}
	if found {
		t.Error("expected cache miss")
	}
}

func TestResetCacheKeepsRuns(t *testing.T) {
	store := newTestStore(t)

	run := RunRecord{
		Task:      "group-tags",
		Mode:      "add-only",
		StartedAt: time.Now(),
		Applied:   3,
	}
	if err := store.SaveRun(run); err != nil {
		t.Fatalf("save run: %v", err)
	}
	if err := store.PutCacheEntry(CacheEntry{Serial: "SN001", IdentityID: "id-1"}); err != nil {
		t.Fatalf("put cache entry: %v", err)
	}

	if err := store.ResetCache(); err != nil {
		t.Fatalf("reset cache: %v", err)
	}

	_, found, err := store.GetCacheEntry("SN001")
	if err != nil {
		t.Fatalf("get after reset: %v", err)
	}
	if found {
		t.Error("cache entry survived reset")
	}

	runs, err := store.Runs()
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Task != "group-tags" || runs[0].Applied != 3 {
		t.Errorf("unexpected runs after reset: %+v", runs)
	}
}

func TestRunHistoryAccumulates(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < 3; i++ {
		run := RunRecord{
			Task:      "group-members",
			StartedAt: time.Now().Add(time.Duration(i) * time.Second),
		}
		if err := store.SaveRun(run); err != nil {
			t.Fatalf("save run %d: %v", i, err)
		}
	}

	runs, err := store.Runs()
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 3 {
		t.Errorf("expected 3 runs, got %d", len(runs))
	}
}
