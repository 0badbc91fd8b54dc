package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, path
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "history", []byte(`[{"id":"1"}]`)); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Load(ctx, "history")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got) != `[{"id":"1"}]` {
		t.Errorf("unexpected value: %q", got)
	}
}

func TestLoadAbsentSlotReturnsNil(t *testing.T) {
	store, _ := newTestStore(t)

	got, err := store.Load(context.Background(), "never-written")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for absent slot, got %q", got)
	}
}

func TestSaveOverwritesSlot(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "slot", []byte("v1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, "slot", []byte("v2")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	got, err := store.Load(ctx, "slot")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got) != "v2" {
		t.Errorf("expected overwritten value, got %q", got)
	}
}

func TestValuesSurviveReopen(t *testing.T) {
	ctx := context.Background()
	store, path := newTestStore(t)

	if err := store.Save(ctx, "slot", []byte("durable")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Load(ctx, "slot")
	if err != nil {
		t.Fatalf("load after reopen: %v", err)
	}
	if string(got) != "durable" {
		t.Errorf("expected value to survive reopen, got %q", got)
	}
}

func TestSlotsAreIndependent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	store.Save(ctx, "a", []byte("alpha"))
	store.Save(ctx, "b", []byte("beta"))

	a, _ := store.Load(ctx, "a")
	b, _ := store.Load(ctx, "b")
	if string(a) != "alpha" || string(b) != "beta" {
		t.Errorf("slots interfered: a=%q b=%q", a, b)
	}
}
