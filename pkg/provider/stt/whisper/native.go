// Package whisper provides whisper.cpp-backed batch transcribers.
//
// Two backends are available:
//
//   - [Native] runs inference in-process through the whisper.cpp CGO
//     bindings. The model file is loaded once at startup. The whisper.cpp
//     static library (libwhisper.a) and headers (whisper.h) must be
//     available at link time via LIBRARY_PATH and C_INCLUDE_PATH.
//   - [Server] submits WAV-encoded utterances to a running whisper-server
//     binary over its POST /inference REST endpoint.
//
// Both decode one complete utterance per call and neither is safe for
// concurrent invocation against a single backend instance: whisper.cpp
// shares model state between inferences, and concurrent decodes thrash the
// CPU/GPU even where they do not corrupt it. Serialize all Transcribe calls
// through the dispatch package's decoder gate.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/arivox/arivox/pkg/audio"
	"github.com/arivox/arivox/pkg/provider/stt"
)

const defaultLanguage = "en"

// Compile-time assertion that Native satisfies stt.Transcriber.
var _ stt.Transcriber = (*Native)(nil)

// NativeOption is a functional option for configuring a [Native] backend.
type NativeOption func(*Native)

// WithNativeLanguage sets the BCP-47 language code for transcription
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(n *Native) { n.language = lang }
}

// Native implements stt.Transcriber using the whisper.cpp Go bindings.
// The model is loaded once and reused for every decode.
//
// Native is NOT safe for concurrent use. Hold the decoder gate across
// Transcribe.
type Native struct {
	model    whisperlib.Model
	language string
}

// NewNative loads the whisper.cpp model from the given file path. The
// caller must call Close when the backend is no longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*Native, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	n := &Native{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(n)
	}
	return n, nil
}

// Close releases the whisper model.
func (n *Native) Close() error {
	if n.model != nil {
		return n.model.Close()
	}
	return nil
}

// Transcribe decodes one complete utterance of 16 kHz mono PCM16 and
// returns the concatenated segment text. A fresh whisper context is created
// per decode; the shared model behind it is what makes concurrent calls
// unsafe.
func (n *Native) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("whisper: context cancelled before decode: %w", err)
	}

	samples := audio.PCMToFloat32(pcm)

	wctx, err := n.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(n.language); err != nil {
		return "", fmt.Errorf("whisper: set language %q: %w", n.language, err)
	}

	// whisper.cpp cannot be interrupted mid-inference; ctx is only checked
	// at the boundaries.
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}
