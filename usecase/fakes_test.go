package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sagelearn/sage-voice/domain/entities"
	"github.com/sagelearn/sage-voice/domain/repositories"
)

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

type fakeStore struct {
	mu    sync.Mutex
	slots map[string][]byte
	saves int
}

func newFakeStore() *fakeStore {
	return &fakeStore{slots: map[string][]byte{}}
}

func (f *fakeStore) Load(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slots[key], nil
}

func (f *fakeStore) Save(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	f.slots[key] = stored
	f.saves++
	return nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

type fakeCapture struct {
	mu       sync.Mutex
	released int
}

func (f *fakeCapture) Release() {
	f.mu.Lock()
	f.released++
	f.mu.Unlock()
}

func (f *fakeCapture) releaseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

type fakeAudioSource struct {
	mu         sync.Mutex
	acquireErr error
	capture    *fakeCapture
	onChunk    func(entities.AudioChunk)
	onErr      func(error)
}

func (f *fakeAudioSource) Acquire(ctx context.Context, constraints repositories.Constraints, onChunk func(entities.AudioChunk), onErr func(error)) (repositories.Capture, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	f.capture = &fakeCapture{}
	f.onChunk = onChunk
	f.onErr = onErr
	return f.capture, nil
}

func (f *fakeAudioSource) emitChunk(seq int) {
	f.mu.Lock()
	onChunk := f.onChunk
	f.mu.Unlock()
	onChunk(entities.AudioChunk{Seq: seq, Data: []byte("pcm")})
}

func (f *fakeAudioSource) emitError(err error) {
	f.mu.Lock()
	onErr := f.onErr
	f.mu.Unlock()
	onErr(err)
}

func (f *fakeAudioSource) currentCapture() *fakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.capture
}

type fakeTransport struct {
	mu      sync.Mutex
	cb      repositories.StreamCallbacks
	openCtx context.Context
	opens   int
	closes  int
	sent    []entities.AudioChunk
}

func (f *fakeTransport) Open(ctx context.Context, token string, cb repositories.StreamCallbacks) {
	f.mu.Lock()
	f.cb = cb
	f.openCtx = ctx
	f.opens++
	f.mu.Unlock()
}

func (f *fakeTransport) Send(chunk entities.AudioChunk) error {
	f.mu.Lock()
	f.sent = append(f.sent, chunk)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Close() {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
}

func (f *fakeTransport) callbacks() repositories.StreamCallbacks {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *fakeTransport) fireOpen()                        { f.callbacks().OnOpen() }
func (f *fakeTransport) fireEvent(ev entities.ServerEvent) { f.callbacks().OnEvent(ev) }
func (f *fakeTransport) fireClosed()                      { f.callbacks().OnClosed() }
func (f *fakeTransport) fireFailed(err error)             { f.callbacks().OnFailed(err) }

func (f *fakeTransport) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func (f *fakeTransport) openContext() context.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.openCtx
}

func (f *fakeTransport) sentChunks() []entities.AudioChunk {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]entities.AudioChunk, len(f.sent))
	copy(out, f.sent)
	return out
}

type fakePoller struct {
	mu        sync.Mutex
	calls     int
	lastToken string
	script    func(call int) (repositories.RecoveryResult, error)
}

func (f *fakePoller) Poll(ctx context.Context, token string) (repositories.RecoveryResult, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.lastToken = token
	script := f.script
	f.mu.Unlock()
	if script == nil {
		return repositories.RecoveryResult{}, nil
	}
	return script(call)
}

func (f *fakePoller) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakePoller) polledToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastToken
}

type fakeSynthesizer struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, text string) (repositories.AudioRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return repositories.AudioRef{}, f.err
	}
	f.texts = append(f.texts, text)
	return repositories.AudioRef{URL: "http://localhost/audio.wav"}, nil
}

func (f *fakeSynthesizer) spokenTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.texts))
	copy(out, f.texts)
	return out
}

// fakePlayer counts concurrent plays and can hold an utterance open until
// its context is cancelled.
type fakePlayer struct {
	mu            sync.Mutex
	plays         int
	active        int
	maxActive     int
	blockPlayback bool
	started       chan struct{}
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{started: make(chan struct{}, 16)}
}

func (f *fakePlayer) Play(ctx context.Context, ref repositories.AudioRef) error {
	f.mu.Lock()
	f.plays++
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	block := f.blockPlayback
	f.mu.Unlock()

	select {
	case f.started <- struct{}{}:
	default:
	}

	if block {
		<-ctx.Done()
	}

	f.mu.Lock()
	f.active--
	f.mu.Unlock()
	if block {
		return ctx.Err()
	}
	return nil
}

func (f *fakePlayer) playCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.plays
}

func (f *fakePlayer) maxConcurrent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxActive
}
