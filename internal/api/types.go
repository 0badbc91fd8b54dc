package api

import (
	"time"

	"github.com/sagelearn/sage-voice/domain/entities"
)

// ErrorResponse is the shared error payload
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// SessionResponse mirrors the session snapshot for the dashboard
type SessionResponse struct {
	State      entities.State `json:"state"`
	ChunkCount int            `json:"chunk_count"`
	Transcript string         `json:"transcript"`
	Answer     string         `json:"answer"`
	StartedAt  time.Time      `json:"started_at,omitempty"`
}

// SpeakRequest asks for a one-off utterance (the dashboard's test button)
type SpeakRequest struct {
	Text string `json:"text"`
}

// AutoSpeakRequest flips the auto-speak toggle
type AutoSpeakRequest struct {
	Enabled bool `json:"enabled"`
}

// AutoSpeakResponse reports the toggle and the playback channel state
type AutoSpeakResponse struct {
	Enabled bool   `json:"enabled"`
	Status  string `json:"status"`
}

// HistoryStatsResponse carries the per-modality totals for the stat cards
type HistoryStatsResponse struct {
	Voice int `json:"voice"`
	Text  int `json:"text"`
	Image int `json:"image"`
}

// TextQueryRequest is a typed question for the text modality
type TextQueryRequest struct {
	Query string `json:"query"`
}

// TextQueryResponse carries the tutor's answer
type TextQueryResponse struct {
	Answer string `json:"answer"`
}
