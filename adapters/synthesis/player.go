package synthesis

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sagelearn/sage-voice/domain/repositories"
)

const (
	playerChunkSize      = 1024
	defaultPlayerTimeout = 60 * time.Second
)

// StreamingPlayer implements repositories.AudioPlayer by fetching the
// synthesized audio and streaming it in chunks to an output sink (an audio
// pipe in production, a buffer in tests). Cancellation stops playback
// between chunks.
type StreamingPlayer struct {
	sink       io.Writer
	httpClient *http.Client
	logger     *zap.Logger
}

var _ repositories.AudioPlayer = (*StreamingPlayer)(nil)

// NewStreamingPlayer creates a player writing to the given sink
func NewStreamingPlayer(sink io.Writer, logger *zap.Logger) *StreamingPlayer {
	return &StreamingPlayer{
		sink:       sink,
		httpClient: &http.Client{Timeout: defaultPlayerTimeout},
		logger:     logger,
	}
}

// Play fetches the referenced audio and streams it to the sink until done
// or the context is cancelled.
func (p *StreamingPlayer) Play(ctx context.Context, ref repositories.AudioRef) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to fetch audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("audio fetch returned %d", resp.StatusCode)
	}

	buffer := make([]byte, playerChunkSize)
	totalBytes := 0

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("Playback cancelled", zap.Int("bytesPlayed", totalBytes))
			return ctx.Err()
		default:
		}

		n, err := resp.Body.Read(buffer)
		if n > 0 {
			totalBytes += n
			if _, werr := p.sink.Write(buffer[:n]); werr != nil {
				return fmt.Errorf("failed to write audio to sink: %w", werr)
			}
		}
		if err == io.EOF {
			p.logger.Debug("Playback finished", zap.Int("totalBytes", totalBytes))
			return nil
		}
		if err != nil {
			return fmt.Errorf("error reading audio stream: %w", err)
		}
	}
}
