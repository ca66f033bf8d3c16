package tts

import "context"

// Client defines the interface for text-to-speech providers.
type Client interface {
	// Synthesize converts text to speech and returns audio data.
	// voiceID selects a per-call voice; empty means the provider default.
	// The returned audio is MP3, suitable for playback over a phone call.
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}
