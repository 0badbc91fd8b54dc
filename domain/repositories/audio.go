package repositories

import (
	"context"
	"errors"

	"github.com/sagelearn/sage-voice/domain/entities"
)

// Device acquisition failures. Both are terminal for the attempt; the user
// has to retry.
var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceUnavailable = errors.New("microphone device unavailable")
)

// Constraints describes the capture the caller wants from the device
type Constraints struct {
	SampleRate       int  `json:"sample_rate"`
	ChannelCount     int  `json:"channel_count"`
	EchoCancellation bool `json:"echo_cancellation"`
}

// AudioSource is the only component allowed to touch the physical
// microphone. It knows nothing about session state; it communicates solely
// through the chunk and error callbacks.
type AudioSource interface {
	// Acquire opens the device and starts emitting one chunk per cadence
	// interval until the returned capture is released.
	Acquire(ctx context.Context, constraints Constraints, onChunk func(entities.AudioChunk), onErr func(error)) (Capture, error)
}

// Capture is a live hold on the microphone. Release is idempotent and frees
// the device even when called repeatedly or after an error.
type Capture interface {
	Release()
}
