package repositories

import (
	"context"

	"github.com/sagelearn/sage-voice/domain/entities"
)

// StreamCallbacks receives the transport's lifecycle signals and the ordered
// server events. All callbacks fire from the transport's read goroutine, one
// at a time, in arrival order.
type StreamCallbacks struct {
	// OnOpen fires once when the handshake succeeds.
	OnOpen func()
	// OnEvent delivers each parsed server event in arrival order. Malformed
	// frames are delivered as EventStreamError, never dropped silently.
	OnEvent func(entities.ServerEvent)
	// OnClosed fires when the server closes the connection or a local Close
	// interrupts the read loop.
	OnClosed func()
	// OnFailed fires when the dial or the connection fails with a network
	// error before a clean close.
	OnFailed func(error)
}

// StreamTransport owns the persistent bidirectional connection to the
// recognition backend. Send is valid only between OnOpen and the
// closed/failed signal; guarding that window is the caller's job, not the
// transport's. Close is idempotent, always succeeds, and does not wait for
// pending sends to flush.
type StreamTransport interface {
	Open(ctx context.Context, token string, cb StreamCallbacks)
	Send(chunk entities.AudioChunk) error
	Close()
}
