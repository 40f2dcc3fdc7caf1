package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alert-state.json")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	lastWindow := 2
	lastAlert := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
	state := AlertState{
		"PriceFeedOfflineCheck-Crypto.BTC/USD": {
			CheckType:          "PriceFeedOfflineCheck",
			WindowStart:        time.Date(2025, 6, 2, 14, 55, 0, 0, time.UTC),
			Failures:           3,
			LastWindowFailures: &lastWindow,
			Sent:               true,
			LastAlert:          &lastAlert,
		},
		"PublisherPriceCheck-Crypto.ETH/USD-acme": {
			CheckType:   "PublisherPriceCheck",
			WindowStart: time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC),
			Failures:    1,
		},
	}

	if err := store.Save(context.Background(), state); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 records, got %d", len(loaded))
	}

	rec := loaded["PriceFeedOfflineCheck-Crypto.BTC/USD"]
	if rec.Failures != 3 || !rec.Sent {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.LastWindowFailures == nil || *rec.LastWindowFailures != 2 {
		t.Fatalf("last window count lost: %+v", rec)
	}
	if rec.LastAlert == nil || !rec.LastAlert.Equal(lastAlert) {
		t.Fatalf("last alert timestamp lost: %+v", rec)
	}

	rec = loaded["PublisherPriceCheck-Crypto.ETH/USD-acme"]
	if rec.LastWindowFailures != nil || rec.LastAlert != nil {
		t.Fatalf("null fields must stay null: %+v", rec)
	}
}

func TestFileStoreMissingFile(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	state, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if state == nil || len(state) != 0 {
		t.Fatalf("missing file must read as an empty map, got %v", state)
	}
}

func TestFileStoreReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alert-state.json")
	store, _ := NewFileStore(path)

	if err := store.Save(context.Background(), AlertState{"a-b": {CheckType: "a"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(context.Background(), AlertState{}); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("latest save wins, got %v", loaded)
	}

	// No temp files should outlive a successful save.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the state file, found %d entries", len(entries))
	}
}

func TestAlertStateClone(t *testing.T) {
	count := 4
	state := AlertState{"a-b": {CheckType: "a", Failures: 1, LastWindowFailures: &count}}

	clone := state.Clone()
	*clone["a-b"].LastWindowFailures = 99
	if *state["a-b"].LastWindowFailures != 4 {
		t.Fatal("Clone must deep-copy pointer fields")
	}
}
