package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/sagelearn/sage-voice/domain/entities"
	"github.com/sagelearn/sage-voice/domain/repositories"
)

const (
	// historyCap bounds the ledger to the most recent entries; the oldest
	// entry is evicted on overflow.
	historyCap = 50

	// HistorySlotKey is the durable slot the ledger persists to.
	HistorySlotKey = "learning_history"
)

// HistoryService is the bounded, append-only record of completed
// question/answer turns. Newest entries first; every mutation is written
// through to the durable slot.
type HistoryService struct {
	store  repositories.StateStore
	slot   string
	logger *zap.Logger

	mu      sync.Mutex
	entries []entities.HistoryEntry
	entropy *rand.Rand
}

// NewHistoryService loads the persisted ledger once and returns the
// service. An absent slot yields an empty ledger, never an error.
func NewHistoryService(ctx context.Context, store repositories.StateStore, slot string, logger *zap.Logger) (*HistoryService, error) {
	if slot == "" {
		slot = HistorySlotKey
	}
	h := &HistoryService{
		store:   store,
		slot:    slot,
		logger:  logger,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	raw, err := store.Load(ctx, slot)
	if err != nil {
		return nil, fmt.Errorf("load history slot: %w", err)
	}
	if raw != nil {
		if err := json.Unmarshal(raw, &h.entries); err != nil {
			logger.Warn("Persisted history is unreadable, starting empty", zap.Error(err))
			h.entries = nil
		}
	}
	if len(h.entries) > historyCap {
		h.entries = h.entries[:historyCap]
	}

	logger.Info("History ledger loaded", zap.Int("entries", len(h.entries)))
	return h, nil
}

// Append records a completed turn at the head of the ledger, evicting the
// oldest entry past the size bound, and writes the ledger through to the
// durable slot.
func (h *HistoryService) Append(ctx context.Context, modality entities.Modality, query, answer string) (entities.HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry := entities.HistoryEntry{
		ID:        ulid.MustNew(ulid.Timestamp(time.Now()), h.entropy).String(),
		Modality:  modality,
		Query:     query,
		Answer:    answer,
		Timestamp: time.Now(),
	}

	h.entries = append([]entities.HistoryEntry{entry}, h.entries...)
	if len(h.entries) > historyCap {
		h.entries = h.entries[:historyCap]
	}

	if err := h.persistLocked(ctx); err != nil {
		return entry, err
	}

	h.logger.Info("History entry appended",
		zap.String("id", entry.ID),
		zap.String("modality", string(entry.Modality)))
	return entry, nil
}

// All returns a newest-first snapshot of the ledger
func (h *HistoryService) All() []entities.HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]entities.HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// CountByModality returns per-modality totals for the dashboard stat cards
func (h *HistoryService) CountByModality() map[entities.Modality]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	counts := make(map[entities.Modality]int)
	for _, e := range h.entries {
		counts[e.Modality]++
	}
	return counts
}

func (h *HistoryService) persistLocked(ctx context.Context) error {
	raw, err := json.Marshal(h.entries)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := h.store.Save(ctx, h.slot, raw); err != nil {
		return fmt.Errorf("persist history: %w", err)
	}
	return nil
}
