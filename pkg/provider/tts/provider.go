// Package tts defines the Provider interface for Text-to-Speech backends.
//
// The agent speaks complete replies, so the interface is a batch one: text
// in, a finished PCM span out. Implementations must be safe for concurrent
// use; replies for different calls may synthesize in parallel.
package tts

import "context"

// Voice identifies a synthesis voice.
type Voice struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text as 16-bit signed little-endian mono PCM at
	// [Provider.SampleRate].
	Synthesize(ctx context.Context, text string, voice Voice) ([]byte, error)

	// SampleRate returns the PCM sample rate of synthesized audio in Hz.
	SampleRate() int

	// ListVoices returns the provider's current voice catalogue.
	ListVoices(ctx context.Context) ([]Voice, error)
}
