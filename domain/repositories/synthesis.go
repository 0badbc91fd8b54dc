package repositories

import "context"

// AudioRef points at a playable synthesized utterance. URL is absolute; the
// synthesizer resolves relative paths against its configured base before
// returning.
type AudioRef struct {
	URL string `json:"audio_url"`
}

// SpeechSynthesizer turns answer text into a playable audio reference via
// the remote synthesis endpoint.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) (AudioRef, error)
}

// AudioPlayer plays one synthesized utterance to completion, or stops early
// when the context is cancelled. Implementations own the single output
// channel; callers serialize access through the playback service.
type AudioPlayer interface {
	Play(ctx context.Context, ref AudioRef) error
}
