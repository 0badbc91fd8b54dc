package entities

import (
	"encoding/json"
	"fmt"
)

// EventType identifies a server event pushed over the streaming connection
type EventType string

// Event types emitted by the recognition backend. The wire names match the
// JSON text frames the backend sends.
const (
	EventChunkAck        EventType = "chunk_received"
	EventProcessing      EventType = "processing"
	EventFinalTranscript EventType = "final_transcript"
	EventAnswerReady     EventType = "llm_response"
	EventStreamError     EventType = "error"
)

// ServerEvent is a typed, ordered message pushed by the backend over the
// persistent connection. Exactly one of the payload fields is meaningful
// depending on Type.
type ServerEvent struct {
	Type       EventType `json:"type"`
	ChunkCount int       `json:"chunk_count,omitempty"`
	Message    string    `json:"message,omitempty"`
	Text       string    `json:"text,omitempty"`
}

// ParseServerEvent decodes a JSON text frame into a ServerEvent. Frames with
// an unrecognized type still parse; consumers ignore types they do not
// handle so the backend can add informational events without breaking
// clients.
func ParseServerEvent(data []byte) (ServerEvent, error) {
	var ev ServerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ServerEvent{}, fmt.Errorf("malformed server event: %w", err)
	}
	if ev.Type == "" {
		return ServerEvent{}, fmt.Errorf("server event missing type field")
	}
	return ev, nil
}
