package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sagelearn/sage-voice/domain/entities"
	"github.com/sagelearn/sage-voice/domain/repositories"
	"github.com/sagelearn/sage-voice/internal/auth"
)

var (
	// ErrSessionActive is returned by Start while a session is in flight;
	// a second session is rejected, never queued.
	ErrSessionActive = errors.New("a voice session is already active")

	// ErrRecoveryTimeout surfaces when recovery polling exhausts its
	// attempts without the server reporting a completed result.
	ErrRecoveryTimeout = errors.New("recovery polling timed out")

	// ErrServiceClosed is returned once the service has shut down.
	ErrServiceClosed = errors.New("voice session service is closed")
)

const (
	defaultPollInterval    = 1000 * time.Millisecond
	defaultMaxPollAttempts = 30
	eventQueueSize         = 256
	updateQueueSize        = 64
)

// SessionConfig carries the per-call-site concerns. Two dashboards share
// one service implementation and differ only in what they inject here.
type SessionConfig struct {
	// Modality tags history entries written by this service.
	Modality entities.Modality

	// Constraints are handed to the audio source on acquisition.
	Constraints repositories.Constraints

	// PollInterval and MaxPollAttempts bound the recovery loop.
	PollInterval    time.Duration
	MaxPollAttempts int

	// AppendHistory controls whether completed turns reach the ledger.
	AppendHistory bool

	// Thread, when set, receives each completed turn as conversation
	// context for the text modality.
	Thread *ConversationService
}

// UpdateKind tags a UI-facing update
type UpdateKind string

const (
	UpdateState      UpdateKind = "state"
	UpdateStatus     UpdateKind = "status"
	UpdateTranscript UpdateKind = "transcript"
	UpdateAnswer     UpdateKind = "answer"
)

// Update is one UI-facing status or result notification
type Update struct {
	Kind  UpdateKind     `json:"kind"`
	State entities.State `json:"state,omitempty"`
	Text  string         `json:"text,omitempty"`
}

type eventKind int

const (
	evStart eventKind = iota
	evStop
	evTransportOpen
	evTransportClosed
	evTransportFailed
	evServerEvent
	evChunk
	evAudioErr
	evPollResult
	evPollTimeout
)

// event is the single inbound message type the session actor consumes.
// Everything that can influence the state machine - commands, transport
// lifecycle, server events, capture chunks, poll outcomes - arrives here,
// strictly in order, tagged with the generation that produced it.
type event struct {
	kind   eventKind
	gen    uint64
	server entities.ServerEvent
	chunk  entities.AudioChunk
	err    error
	result repositories.RecoveryResult
	reply  chan error
}

// VoiceSessionService drives the real-time voice-query session: capture,
// streaming, server-event consumption, playback hand-off, history append,
// and the recovery fallback. One logical actor processes one event at a
// time; there is no shared mutable state outside the loop.
type VoiceSessionService struct {
	audio     repositories.AudioSource
	transport repositories.StreamTransport
	poller    repositories.ResultPoller
	playback  *PlaybackService
	history   *HistoryService
	signer    *auth.TokenSigner
	cfg       SessionConfig
	logger    *zap.Logger

	events  chan event
	updates chan Update
	quit    chan struct{}
	stopped chan struct{}

	// lifeCtx bounds the device and connection, which outlive the start
	// request that created them. Cancelled on shutdown.
	lifeCtx    context.Context
	lifeCancel context.CancelFunc

	// Actor-owned; touched only inside the run loop.
	gen           uint64
	session       *entities.Session
	token         string
	capture       repositories.Capture
	transportOpen bool
	pollCancel    context.CancelFunc

	snapMu sync.RWMutex
	last   entities.Session
}

// NewVoiceSessionService wires the session actor. Call Run on a goroutine
// to start it.
func NewVoiceSessionService(
	audio repositories.AudioSource,
	transport repositories.StreamTransport,
	poller repositories.ResultPoller,
	playback *PlaybackService,
	history *HistoryService,
	signer *auth.TokenSigner,
	cfg SessionConfig,
	logger *zap.Logger,
) *VoiceSessionService {
	if cfg.Modality == "" {
		cfg.Modality = entities.ModalityVoice
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = defaultMaxPollAttempts
	}
	if cfg.Constraints.SampleRate == 0 {
		cfg.Constraints = repositories.Constraints{
			SampleRate:       16000,
			ChannelCount:     1,
			EchoCancellation: true,
		}
	}

	s := &VoiceSessionService{
		audio:     audio,
		transport: transport,
		poller:    poller,
		playback:  playback,
		history:   history,
		signer:    signer,
		cfg:       cfg,
		logger:    logger,
		events:  make(chan event, eventQueueSize),
		updates: make(chan Update, updateQueueSize),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	s.lifeCtx, s.lifeCancel = context.WithCancel(context.Background())
	s.last = entities.Session{State: entities.StateIdle}
	return s
}

// Run processes inbound events until Shutdown. It owns every piece of
// session state; nothing else mutates it.
func (s *VoiceSessionService) Run() {
	defer close(s.stopped)
	for {
		select {
		case e := <-s.events:
			s.handle(e)
		case <-s.quit:
			s.teardown()
			return
		}
	}
}

// Shutdown stops the actor and releases any held resources
func (s *VoiceSessionService) Shutdown() {
	select {
	case <-s.quit:
	default:
		close(s.quit)
	}
	<-s.stopped
}

// Updates exposes the UI-facing notification stream. Slow consumers drop
// updates rather than stalling the session.
func (s *VoiceSessionService) Updates() <-chan Update {
	return s.updates
}

// Snapshot returns the most recent session state for dashboards
func (s *VoiceSessionService) Snapshot() entities.Session {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.last
}

// Start begins a new voice-query session. It is rejected with
// ErrSessionActive while another session is in flight.
func (s *VoiceSessionService) Start(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := s.post(event{kind: evStart, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop ends the active session. Safe to call from any state, idempotent,
// and always leaves the device and connection released. When no answer has
// arrived yet it hands off to recovery polling instead of going idle,
// because the server may still be completing the request.
func (s *VoiceSessionService) Stop(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := s.post(event{kind: evStop, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *VoiceSessionService) post(e event) error {
	select {
	case s.events <- e:
		return nil
	case <-s.quit:
		return ErrServiceClosed
	}
}

// postFrom is the callback entry point; events arriving after shutdown are
// dropped on the floor.
func (s *VoiceSessionService) postFrom(e event) {
	select {
	case s.events <- e:
	case <-s.quit:
	}
}

func (s *VoiceSessionService) handle(e event) {
	switch e.kind {
	case evStart:
		e.reply <- s.handleStart()
	case evStop:
		s.handleStop()
		e.reply <- nil
	default:
		// Everything else is generation-tagged; a stale event must never
		// resurrect a dead session or double-append history.
		if s.session == nil || e.gen != s.gen {
			s.logger.Debug("Discarding stale session event",
				zap.Uint64("eventGen", e.gen),
				zap.Uint64("currentGen", s.gen))
			return
		}
		s.handleCurrent(e)
	}
}

func (s *VoiceSessionService) handleCurrent(e event) {
	switch e.kind {
	case evTransportOpen:
		s.transportOpen = true
		s.setState(entities.StateStreaming)
		s.emitStatus("Connected - recording in progress")

	case evChunk:
		s.forwardChunk(e.chunk)

	case evServerEvent:
		s.handleServerEvent(e.server)

	case evTransportClosed, evTransportFailed:
		if e.err != nil {
			s.logger.Warn("Stream lost before answer", zap.Error(e.err))
			s.emitStatus(fmt.Sprintf("Connection lost: %v", e.err))
		} else {
			s.emitStatus("Connection closed, waiting for result")
		}
		s.transportOpen = false
		s.releaseCapture()
		s.transport.Close()
		s.enterRecovery()

	case evAudioErr:
		s.logger.Error("Capture device failed", zap.Error(e.err))
		s.failSession(fmt.Sprintf("Microphone error: %v", e.err))

	case evPollResult:
		if e.result.Transcript != "" {
			s.session.Transcript = e.result.Transcript
			s.emit(Update{Kind: UpdateTranscript, Text: e.result.Transcript})
		}
		s.completeWithAnswer(e.result.Answer)

	case evPollTimeout:
		s.logger.Warn("Recovery polling exhausted",
			zap.Int("attempts", s.cfg.MaxPollAttempts))
		s.failSession("Processing timed out")
	}
}

func (s *VoiceSessionService) handleStart() error {
	if s.session != nil {
		s.logger.Warn("Start rejected, session already active",
			zap.String("state", string(s.session.State)))
		return ErrSessionActive
	}

	s.gen++
	g := s.gen
	session := entities.NewSession(g)

	token, err := s.signer.SignSession(session.Token, g)
	if err != nil {
		return fmt.Errorf("sign session token: %w", err)
	}

	// The device and connection must survive the caller returning; they
	// are bound to the service lifetime, not the start request.
	s.transport.Open(s.lifeCtx, token, repositories.StreamCallbacks{
		OnOpen: func() {
			s.postFrom(event{kind: evTransportOpen, gen: g})
		},
		OnEvent: func(ev entities.ServerEvent) {
			s.postFrom(event{kind: evServerEvent, gen: g, server: ev})
		},
		OnClosed: func() {
			s.postFrom(event{kind: evTransportClosed, gen: g})
		},
		OnFailed: func(err error) {
			s.postFrom(event{kind: evTransportFailed, gen: g, err: err})
		},
	})

	capture, err := s.audio.Acquire(s.lifeCtx, s.cfg.Constraints,
		func(chunk entities.AudioChunk) {
			s.postFrom(event{kind: evChunk, gen: g, chunk: chunk})
		},
		func(captureErr error) {
			s.postFrom(event{kind: evAudioErr, gen: g, err: captureErr})
		},
	)
	if err != nil {
		s.transport.Close()
		s.logger.Error("Microphone acquisition failed", zap.Error(err))
		return err
	}

	s.session = session
	s.token = token
	s.capture = capture
	s.transportOpen = false

	s.logger.Info("Voice session started",
		zap.String("sessionToken", session.Token),
		zap.Uint64("generation", g))

	s.setState(entities.StateConnecting)
	s.emitStatus("Connecting to recognizer")
	return nil
}

func (s *VoiceSessionService) handleStop() {
	if s.session == nil {
		return
	}
	if s.session.State == entities.StateRecovering {
		// Resources are already released and the poller is running; a
		// second stop changes nothing.
		return
	}

	s.releaseCapture()
	s.transport.Close()
	s.transportOpen = false

	// Advance the generation so buffered events from the closed stream
	// cannot land on this session anymore.
	s.gen++
	s.session.Generation = s.gen

	// The recovery poller presents this token; its claims must carry the
	// generation it polls under.
	if token, err := s.signer.SignSession(s.session.Token, s.gen); err == nil {
		s.token = token
	} else {
		s.logger.Warn("Failed to re-sign session token for recovery", zap.Error(err))
	}

	s.logger.Info("Voice session stopped by caller",
		zap.String("sessionToken", s.session.Token),
		zap.Int("chunksSent", s.session.ChunkCount))

	s.emitStatus("Processing your recording")
	s.enterRecovery()
}

func (s *VoiceSessionService) handleServerEvent(ev entities.ServerEvent) {
	switch ev.Type {
	case entities.EventChunkAck:
		s.session.ChunkCount = ev.ChunkCount
		s.publishSnapshot()
		s.emitStatus(fmt.Sprintf("Recording... (%d chunks)", ev.ChunkCount))

	case entities.EventProcessing:
		s.setState(entities.StateAwaitingTranscript)
		if ev.Message != "" {
			s.emitStatus(ev.Message)
		} else {
			s.emitStatus("Processing your audio")
		}

	case entities.EventFinalTranscript:
		s.session.Transcript = ev.Text
		s.setState(entities.StateAwaitingAnswer)
		s.emit(Update{Kind: UpdateTranscript, Text: ev.Text})
		s.emitStatus("Transcript ready, thinking...")

	case entities.EventAnswerReady:
		s.completeWithAnswer(ev.Text)

	case entities.EventStreamError:
		s.logger.Warn("Server reported stream error", zap.String("message", ev.Message))
		s.failSession(fmt.Sprintf("Error: %s", ev.Message))

	default:
		s.logger.Debug("Ignoring unhandled server event", zap.String("type", string(ev.Type)))
	}
}

// forwardChunk pushes a capture chunk down the stream. Chunks arriving
// before the handshake or after closure are dropped; the transport never
// sees a send outside its open window.
func (s *VoiceSessionService) forwardChunk(chunk entities.AudioChunk) {
	if !s.transportOpen {
		// Cadence ticks before the handshake or after closure; drop them.
		return
	}
	if err := s.transport.Send(chunk); err != nil {
		// The read pump reports the failure authoritatively; just note it.
		s.logger.Warn("Chunk send failed", zap.Int("seq", chunk.Seq), zap.Error(err))
	}
}

// completeWithAnswer finishes the session: the answer is recorded, the
// device and connection are released, the turn is appended to history, and
// playback is requested. The session does not block on audio finishing.
func (s *VoiceSessionService) completeWithAnswer(answer string) {
	s.cancelPolling()
	s.releaseCapture()
	s.transport.Close()
	s.transportOpen = false

	s.session.SetAnswer(answer)
	s.emit(Update{Kind: UpdateAnswer, Text: s.session.Answer})
	s.emitStatus("Complete! Ready for next question.")

	if s.cfg.AppendHistory && s.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if _, err := s.history.Append(ctx, s.cfg.Modality, s.session.Transcript, s.session.Answer); err != nil {
			s.logger.Error("Failed to append history entry", zap.Error(err))
		}
		cancel()
	}
	if s.cfg.Thread != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.cfg.Thread.AppendTurn(ctx, s.session.Transcript, s.session.Answer); err != nil {
			s.logger.Error("Failed to append conversation turn", zap.Error(err))
		}
		cancel()
	}

	s.setState(entities.StateSpeaking)
	if s.playback != nil {
		s.playback.Speak(s.session.Answer)
	}

	s.logger.Info("Voice session completed",
		zap.String("sessionToken", s.session.Token),
		zap.Int("chunksSent", s.session.ChunkCount))

	s.reset()
}

// failSession surfaces an error as transient status text and returns to
// idle; no failure leaves the machine stuck in a non-idle state.
func (s *VoiceSessionService) failSession(status string) {
	s.cancelPolling()
	s.releaseCapture()
	s.transport.Close()
	s.transportOpen = false

	s.setState(entities.StateError)
	s.emitStatus(status)
	s.reset()
}

// enterRecovery hands off to the polling fallback after the stream went
// away without a final answer.
func (s *VoiceSessionService) enterRecovery() {
	if s.session.Answer != "" {
		// Answer already landed; nothing to recover.
		s.reset()
		return
	}

	s.setState(entities.StateRecovering)
	s.startPolling(s.gen, s.token)
}

func (s *VoiceSessionService) startPolling(gen uint64, token string) {
	s.cancelPolling()

	ctx, cancel := context.WithCancel(context.Background())
	s.pollCancel = cancel

	interval := s.cfg.PollInterval
	maxAttempts := s.cfg.MaxPollAttempts

	s.logger.Info("Recovery polling started",
		zap.Duration("interval", interval),
		zap.Int("maxAttempts", maxAttempts))

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for attempt := 1; attempt <= maxAttempts; attempt++ {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			result, err := s.poller.Poll(ctx, token)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				s.logger.Warn("Recovery poll failed",
					zap.Int("attempt", attempt),
					zap.Error(err))
				continue
			}
			if result.Ready {
				s.logger.Info("Recovery poll found completed result",
					zap.Int("attempt", attempt))
				s.postFrom(event{kind: evPollResult, gen: gen, result: result})
				return
			}
		}
		s.postFrom(event{kind: evPollTimeout, gen: gen})
	}()
}

func (s *VoiceSessionService) cancelPolling() {
	if s.pollCancel != nil {
		s.pollCancel()
		s.pollCancel = nil
	}
}

func (s *VoiceSessionService) releaseCapture() {
	if s.capture != nil {
		s.capture.Release()
		s.capture = nil
	}
}

// reset returns the machine to idle. The last snapshot keeps the finished
// transcript/answer visible to dashboards.
func (s *VoiceSessionService) reset() {
	if s.session != nil {
		s.session.State = entities.StateIdle
		s.snapMu.Lock()
		s.last = s.session.Snapshot()
		s.snapMu.Unlock()
	}
	s.session = nil
	s.token = ""
	s.setStateValue(entities.StateIdle)
}

// teardown releases everything on shutdown
func (s *VoiceSessionService) teardown() {
	s.cancelPolling()
	s.releaseCapture()
	s.transport.Close()
	s.lifeCancel()
	s.session = nil
}

func (s *VoiceSessionService) setState(state entities.State) {
	s.session.State = state
	s.setStateValue(state)
}

func (s *VoiceSessionService) setStateValue(state entities.State) {
	s.publishSnapshot()
	s.emit(Update{Kind: UpdateState, State: state})
}

func (s *VoiceSessionService) publishSnapshot() {
	s.snapMu.Lock()
	if s.session != nil {
		s.last = s.session.Snapshot()
	} else {
		s.last.State = entities.StateIdle
	}
	s.snapMu.Unlock()
}

func (s *VoiceSessionService) emitStatus(text string) {
	s.emit(Update{Kind: UpdateStatus, Text: text})
}

func (s *VoiceSessionService) emit(u Update) {
	select {
	case s.updates <- u:
	default:
		s.logger.Debug("Dropping UI update, consumer is behind",
			zap.String("kind", string(u.Kind)))
	}
}
