package entities

import (
	"time"

	"github.com/google/uuid"
)

// State represents the lifecycle phase of a voice-query session
type State string

const (
	StateIdle               State = "idle"
	StateConnecting         State = "connecting"
	StateStreaming          State = "streaming"
	StateAwaitingTranscript State = "awaiting_transcript"
	StateAwaitingAnswer     State = "awaiting_answer"
	StateSpeaking           State = "speaking"
	StateRecovering         State = "recovering"
	StateError              State = "error"
)

// Active reports whether the state belongs to a live session attempt.
func (s State) Active() bool {
	return s != StateIdle
}

// Session represents one voice-query attempt, from capture start to final
// answer or abandonment. It is owned exclusively by the session service;
// a fresh one is created on every start and discarded on reset.
type Session struct {
	Token      string    `json:"token"`
	Generation uint64    `json:"generation"`
	State      State     `json:"state"`
	ChunkCount int       `json:"chunk_count"`
	Transcript string    `json:"transcript"`
	Answer     string    `json:"answer"`
	StartedAt  time.Time `json:"started_at"`
}

// NewSession creates a new session for the given generation
func NewSession(generation uint64) *Session {
	return &Session{
		Token:      uuid.NewString(),
		Generation: generation,
		State:      StateConnecting,
		StartedAt:  time.Now(),
	}
}

// SetAnswer records the final answer. The answer is write-once; later
// values are ignored.
func (s *Session) SetAnswer(text string) {
	if s.Answer == "" {
		s.Answer = text
	}
}

// Snapshot returns a copy safe to hand outside the owning goroutine.
func (s *Session) Snapshot() Session {
	return *s
}

// AudioChunk is a fixed-duration slice of captured audio with a
// monotonically increasing sequence index. Chunks are sent as soon as they
// are produced and never buffered beyond the current one.
type AudioChunk struct {
	Seq  int
	Data []byte
}
