package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/sagelearn/sage-voice/domain/entities"
)

func newHistoryFixture(t *testing.T) (*HistoryService, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	svc, err := NewHistoryService(context.Background(), store, "", zap.NewNop())
	if err != nil {
		t.Fatalf("history service: %v", err)
	}
	return svc, store
}

func TestHistoryAppendIsNewestFirst(t *testing.T) {
	svc, _ := newHistoryFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Append(ctx, entities.ModalityVoice, fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	entries := svc.All()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Query != "q2" || entries[2].Query != "q0" {
		t.Errorf("expected newest-first order, got %q .. %q", entries[0].Query, entries[2].Query)
	}
	if entries[0].ID == "" {
		t.Error("expected entry to carry an id")
	}
}

func TestHistoryEvictsOldestPastCap(t *testing.T) {
	svc, _ := newHistoryFixture(t)
	ctx := context.Background()

	for i := 0; i <= historyCap; i++ {
		if _, err := svc.Append(ctx, entities.ModalityText, fmt.Sprintf("q%d", i), "a"); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	entries := svc.All()
	if len(entries) != historyCap {
		t.Fatalf("expected %d entries after overflow, got %d", historyCap, len(entries))
	}
	if entries[0].Query != fmt.Sprintf("q%d", historyCap) {
		t.Errorf("expected newest entry at head, got %q", entries[0].Query)
	}
	if entries[historyCap-1].Query != "q1" {
		t.Errorf("expected q0 evicted, oldest is %q", entries[historyCap-1].Query)
	}
}

func TestHistoryWritesThroughOnEveryAppend(t *testing.T) {
	svc, store := newHistoryFixture(t)
	ctx := context.Background()

	if _, err := svc.Append(ctx, entities.ModalityVoice, "q", "a"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := svc.Append(ctx, entities.ModalityVoice, "q2", "a2"); err != nil {
		t.Fatalf("append: %v", err)
	}

	if got := store.saveCount(); got != 2 {
		t.Errorf("expected 2 writes, got %d", got)
	}

	raw, err := store.Load(ctx, HistorySlotKey)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var persisted []entities.HistoryEntry
	if err := json.Unmarshal(raw, &persisted); err != nil {
		t.Fatalf("decode persisted ledger: %v", err)
	}
	if len(persisted) != 2 || persisted[0].Query != "q2" {
		t.Errorf("unexpected persisted ledger: %+v", persisted)
	}
}

func TestHistorySurvivesReload(t *testing.T) {
	svc, store := newHistoryFixture(t)
	ctx := context.Background()

	if _, err := svc.Append(ctx, entities.ModalityImage, "what is this?", "a mitochondrion"); err != nil {
		t.Fatalf("append: %v", err)
	}

	reloaded, err := NewHistoryService(ctx, store, "", zap.NewNop())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	entries := reloaded.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry after reload, got %d", len(entries))
	}
	if entries[0].Modality != entities.ModalityImage || entries[0].Answer != "a mitochondrion" {
		t.Errorf("unexpected reloaded entry: %+v", entries[0])
	}
}

func TestHistoryAbsentSlotStartsEmpty(t *testing.T) {
	svc, _ := newHistoryFixture(t)
	if got := len(svc.All()); got != 0 {
		t.Errorf("expected empty ledger, got %d entries", got)
	}
}

func TestHistoryCorruptSlotStartsEmpty(t *testing.T) {
	store := newFakeStore()
	if err := store.Save(context.Background(), HistorySlotKey, []byte("{not json")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	svc, err := NewHistoryService(context.Background(), store, "", zap.NewNop())
	if err != nil {
		t.Fatalf("expected corrupt slot to be tolerated, got %v", err)
	}
	if got := len(svc.All()); got != 0 {
		t.Errorf("expected empty ledger, got %d entries", got)
	}
}

func TestHistoryCountByModality(t *testing.T) {
	svc, _ := newHistoryFixture(t)
	ctx := context.Background()

	svc.Append(ctx, entities.ModalityVoice, "q1", "a1")
	svc.Append(ctx, entities.ModalityVoice, "q2", "a2")
	svc.Append(ctx, entities.ModalityText, "q3", "a3")

	counts := svc.CountByModality()
	if counts[entities.ModalityVoice] != 2 || counts[entities.ModalityText] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
}
