package entities

import "time"

// Modality identifies how a query reached the tutor
type Modality string

const (
	ModalityVoice Modality = "voice"
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
)

// HistoryEntry is one completed question/answer turn. Entries are
// append-only; they are never mutated after creation.
type HistoryEntry struct {
	ID        string    `json:"id"`
	Modality  Modality  `json:"modality"`
	Query     string    `json:"query"`
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
}

// ThreadRole is the author of a conversation-thread message
type ThreadRole string

const (
	ThreadRoleUser      ThreadRole = "user"
	ThreadRoleAssistant ThreadRole = "assistant"
)

// ThreadMessage is a single turn in the conversation thread the text
// modality feeds back to the backend as context.
type ThreadMessage struct {
	Role    ThreadRole `json:"role"`
	Content string     `json:"content"`
}
