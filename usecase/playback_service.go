package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sagelearn/sage-voice/domain/repositories"
)

// PlaybackStatus is the state of the single playback channel
type PlaybackStatus string

const (
	PlaybackIdle    PlaybackStatus = "idle"
	PlaybackLoading PlaybackStatus = "loading"
	PlaybackPlaying PlaybackStatus = "playing"
)

// PlaybackService owns the single "currently playing" audio channel. At
// most one utterance is active at a time; a new Speak stops and discards
// the previous one before starting. Every failure degrades to text-only:
// Speak never reports an error to its caller.
type PlaybackService struct {
	synth  repositories.SpeechSynthesizer
	player repositories.AudioPlayer
	logger *zap.Logger

	// speakMu serializes Speak calls so preemption is strictly ordered.
	speakMu sync.Mutex

	mu        sync.Mutex
	autoSpeak bool
	status    PlaybackStatus
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewPlaybackService creates the playback arbiter with auto-speak enabled
func NewPlaybackService(synth repositories.SpeechSynthesizer, player repositories.AudioPlayer, logger *zap.Logger) *PlaybackService {
	return &PlaybackService{
		synth:     synth,
		player:    player,
		logger:    logger,
		autoSpeak: true,
		status:    PlaybackIdle,
	}
}

// SetAutoSpeak flips the global auto-speak toggle. Turning it off does not
// interrupt an utterance that already started.
func (p *PlaybackService) SetAutoSpeak(enabled bool) {
	p.mu.Lock()
	p.autoSpeak = enabled
	p.mu.Unlock()
	p.logger.Info("Auto-speak toggled", zap.Bool("enabled", enabled))
}

// AutoSpeak reports the current toggle value
func (p *PlaybackService) AutoSpeak() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.autoSpeak
}

// Status reports the state of the playback channel
func (p *PlaybackService) Status() PlaybackStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Speak requests synthesis and playback of the given text. Any active
// utterance is stopped and discarded first. The call returns as soon as the
// new utterance is underway; playback itself runs out-of-band on its own
// context, so neither the caller ending nor the auto-speak toggle flipping
// interrupts an utterance that already started.
func (p *PlaybackService) Speak(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	p.speakMu.Lock()
	defer p.speakMu.Unlock()

	p.mu.Lock()
	enabled := p.autoSpeak
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if !enabled {
		p.logger.Debug("Auto-speak disabled, skipping utterance")
		return
	}

	// Stop the previous utterance and wait for it to wind down so two
	// utterances never overlap on the output channel.
	if cancel != nil {
		cancel()
		<-done
	}

	utterCtx, utterCancel := context.WithCancel(context.Background())
	utterDone := make(chan struct{})

	p.mu.Lock()
	p.cancel = utterCancel
	p.done = utterDone
	p.status = PlaybackLoading
	p.mu.Unlock()

	go p.run(utterCtx, utterDone, text)
}

// Stop discards any active utterance
func (p *PlaybackService) Stop() {
	p.speakMu.Lock()
	defer p.speakMu.Unlock()

	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (p *PlaybackService) run(ctx context.Context, done chan struct{}, text string) {
	defer close(done)
	defer func() {
		p.mu.Lock()
		if p.done == done {
			p.status = PlaybackIdle
			p.cancel = nil
		}
		p.mu.Unlock()
	}()

	ref, err := p.synth.Synthesize(ctx, text)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			p.logger.Warn("Speech generation failed, answer stays text-only", zap.Error(err))
		}
		return
	}

	p.mu.Lock()
	if p.done == done {
		p.status = PlaybackPlaying
	}
	p.mu.Unlock()

	if err := p.player.Play(ctx, ref); err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Warn("Audio playback failed", zap.Error(err))
	}
}
