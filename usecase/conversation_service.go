package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/sagelearn/sage-voice/domain/entities"
	"github.com/sagelearn/sage-voice/domain/repositories"
)

// ThreadSlotKey is the durable slot the conversation thread persists to.
const ThreadSlotKey = "conversation_thread"

// ConversationService maintains the ordered conversation thread the text
// modality feeds back to the backend as context. The thread grows
// monotonically and persists across restarts with the same write-through
// model as the history ledger.
type ConversationService struct {
	store  repositories.StateStore
	slot   string
	logger *zap.Logger

	mu       sync.Mutex
	messages []entities.ThreadMessage
}

// NewConversationService loads the persisted thread once and returns the
// service. An absent slot yields an empty thread.
func NewConversationService(ctx context.Context, store repositories.StateStore, slot string, logger *zap.Logger) (*ConversationService, error) {
	if slot == "" {
		slot = ThreadSlotKey
	}
	c := &ConversationService{store: store, slot: slot, logger: logger}

	raw, err := store.Load(ctx, slot)
	if err != nil {
		return nil, fmt.Errorf("load thread slot: %w", err)
	}
	if raw != nil {
		if err := json.Unmarshal(raw, &c.messages); err != nil {
			logger.Warn("Persisted thread is unreadable, starting empty", zap.Error(err))
			c.messages = nil
		}
	}
	return c, nil
}

// AppendTurn records one user query and the assistant's answer
func (c *ConversationService) AppendTurn(ctx context.Context, query, answer string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = append(c.messages,
		entities.ThreadMessage{Role: entities.ThreadRoleUser, Content: query},
		entities.ThreadMessage{Role: entities.ThreadRoleAssistant, Content: answer},
	)

	raw, err := json.Marshal(c.messages)
	if err != nil {
		return fmt.Errorf("encode thread: %w", err)
	}
	if err := c.store.Save(ctx, c.slot, raw); err != nil {
		return fmt.Errorf("persist thread: %w", err)
	}
	return nil
}

// Messages returns an ordered snapshot of the thread
func (c *ConversationService) Messages() []entities.ThreadMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]entities.ThreadMessage, len(c.messages))
	copy(out, c.messages)
	return out
}
