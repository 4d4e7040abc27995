// Package stt defines the Transcriber interface for batch speech-to-text
// backends.
//
// Unlike streaming STT services, a batch backend receives one complete
// utterance span and returns one final transcript. Utterance boundaries are
// decided upstream by the endpointer; this package only specifies the decode
// boundary.
//
// Batch backends built on a single loaded model (e.g. whisper.cpp) are
// typically NOT safe for concurrent invocation. Such implementations must
// say so via [Transcriber] documentation, and callers must serialize
// access. The dispatch package's decoder gate exists for exactly this.
package stt

import "context"

// Transcriber is the abstraction over any batch speech-to-text backend.
//
// Transcribe decodes a complete utterance of 16-bit signed little-endian
// mono PCM at 16 kHz and returns the transcript text. An empty string with
// a nil error is a valid result: the audio contained no recognisable speech.
//
// Implementations document their own concurrency guarantees. When the
// backend is a single shared model instance, callers must hold the decoder
// gate for the full duration of the call.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte) (string, error)
}

// TranscriberFunc adapts a function to the [Transcriber] interface.
type TranscriberFunc func(ctx context.Context, pcm []byte) (string, error)

// Transcribe calls f.
func (f TranscriberFunc) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	return f(ctx, pcm)
}
