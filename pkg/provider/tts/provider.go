// Package tts defines the Provider interface for Text-to-Speech
// backends.
//
// A TTS provider wraps a speech synthesis service (e.g. ElevenLabs) and
// presents a uniform interface for narrating explanations, context
// sentences, and chat replies. Synthesized audio is MP3 bytes; callers
// own persistence and caching.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text to MP3 audio. Returns an error if the
	// backend cannot be reached or rejects the request; implementations
	// must honor ctx cancellation.
	Synthesize(ctx context.Context, text string) ([]byte, error)

	// Name identifies the backend (e.g. "elevenlabs"). Recorded with
	// each cached audio file for provenance.
	Name() string
}
