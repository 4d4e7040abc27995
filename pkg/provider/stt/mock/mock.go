// Package mock provides test doubles for the stt package interfaces.
//
// Use Transcriber to feed controlled transcript results and inspect which
// audio spans were submitted for decoding.
//
// Example:
//
//	tr := &mock.Transcriber{Text: "hello world"}
//	text, err := tr.Transcribe(ctx, pcm)
package mock

import (
	"context"
	"sync"

	"github.com/arivox/arivox/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcriber.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// PCM is a copy of the audio bytes that were passed to Transcribe.
	PCM []byte
}

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Text is returned by every Transcribe call when Err is nil.
	Text string

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Hook, if non-nil, runs inside every Transcribe call before the
	// return values are produced. Tests use it to block decodes or to
	// observe concurrency.
	Hook func(ctx context.Context, pcm []byte)

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call, runs Hook if set, and returns Text, Err.
func (t *Transcriber) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	cp := make([]byte, len(pcm))
	copy(cp, pcm)

	t.mu.Lock()
	t.TranscribeCalls = append(t.TranscribeCalls, TranscribeCall{Ctx: ctx, PCM: cp})
	hook := t.Hook
	text, err := t.Text, t.Err
	t.mu.Unlock()

	if hook != nil {
		hook(ctx, pcm)
	}
	return text, err
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (t *Transcriber) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.TranscribeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (t *Transcriber) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.TranscribeCalls = nil
}

// Ensure Transcriber implements stt.Transcriber at compile time.
var _ stt.Transcriber = (*Transcriber)(nil)
