package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sagelearn/sage-voice/domain/entities"
	"github.com/sagelearn/sage-voice/domain/repositories"
)

const (
	defaultChunkInterval = 1000 * time.Millisecond
	defaultChunkSize     = 16 * 1024
)

// Device abstracts the physical microphone. Open returns the raw capture
// stream or one of the repositories acquisition errors.
type Device interface {
	Open(constraints repositories.Constraints) (io.ReadCloser, error)
}

// Config holds capture settings. ChunkInterval is the fixed cadence at which
// chunks are emitted; tests inject a short one.
type Config struct {
	ChunkInterval time.Duration
	ChunkSize     int
}

// Source implements repositories.AudioSource over a Device
type Source struct {
	device Device
	cfg    Config
	logger *zap.Logger
}

var _ repositories.AudioSource = (*Source)(nil)

// NewSource creates an audio source backed by the given device
func NewSource(device Device, cfg Config, logger *zap.Logger) *Source {
	if cfg.ChunkInterval <= 0 {
		cfg.ChunkInterval = defaultChunkInterval
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	return &Source{device: device, cfg: cfg, logger: logger}
}

// Acquire opens the device and starts the chunk cadence. The ctx bounds
// acquisition only; once acquired, the capture keeps emitting until Release
// is called or the device errors out.
func (s *Source) Acquire(ctx context.Context, constraints repositories.Constraints, onChunk func(entities.AudioChunk), onErr func(error)) (repositories.Capture, error) {
	stream, err := s.device.Open(constraints)
	if err != nil {
		if errors.Is(err, repositories.ErrPermissionDenied) || errors.Is(err, repositories.ErrDeviceUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", repositories.ErrDeviceUnavailable, err)
	}

	s.logger.Info("Microphone acquired",
		zap.Int("sampleRate", constraints.SampleRate),
		zap.Duration("chunkInterval", s.cfg.ChunkInterval))

	c := &liveCapture{
		stream:   stream,
		interval: s.cfg.ChunkInterval,
		size:     s.cfg.ChunkSize,
		onChunk:  onChunk,
		onErr:    onErr,
		done:     make(chan struct{}),
		logger:   s.logger,
	}
	go c.run()
	return c, nil
}

type liveCapture struct {
	stream   io.ReadCloser
	interval time.Duration
	size     int
	onChunk  func(entities.AudioChunk)
	onErr    func(error)
	done     chan struct{}
	once     sync.Once
	logger   *zap.Logger
}

func (c *liveCapture) run() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	seq := 0
	buf := make([]byte, c.size)

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			n, err := c.stream.Read(buf)
			if n > 0 {
				seq++
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				c.onChunk(entities.AudioChunk{Seq: seq, Data: chunk})
			}
			if err != nil {
				select {
				case <-c.done:
					// Release closed the stream under us; not a device fault.
				default:
					c.logger.Warn("Capture stream ended", zap.Error(err))
					c.onErr(fmt.Errorf("%w: %v", repositories.ErrDeviceUnavailable, err))
				}
				return
			}
		}
	}
}

// Release stops the cadence and frees the device. Safe to call any number
// of times.
func (c *liveCapture) Release() {
	c.once.Do(func() {
		close(c.done)
		if err := c.stream.Close(); err != nil {
			c.logger.Warn("Failed to close capture stream", zap.Error(err))
		}
	})
}

// FileDevice reads capture data from a path, typically a pipe fed by an
// external recorder process. Permission and existence failures map onto the
// acquisition error taxonomy.
type FileDevice struct {
	Path string
}

func (d *FileDevice) Open(constraints repositories.Constraints) (io.ReadCloser, error) {
	f, err := os.Open(d.Path)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%w: %s", repositories.ErrPermissionDenied, d.Path)
		}
		return nil, fmt.Errorf("%w: %v", repositories.ErrDeviceUnavailable, err)
	}
	return f, nil
}

// ReaderDevice wraps an arbitrary reader as a device; used for wiring stdin
// and in tests.
type ReaderDevice struct {
	Reader io.Reader
}

func (d *ReaderDevice) Open(constraints repositories.Constraints) (io.ReadCloser, error) {
	if d.Reader == nil {
		return nil, repositories.ErrDeviceUnavailable
	}
	return io.NopCloser(d.Reader), nil
}
