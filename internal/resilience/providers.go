package resilience

import (
	"context"

	"github.com/arivox/arivox/pkg/provider/llm"
	"github.com/arivox/arivox/pkg/provider/stt"
	"github.com/arivox/arivox/pkg/provider/tts"
	"github.com/arivox/arivox/pkg/types"
)

// BreakerLLM wraps an [llm.Provider] with a circuit breaker around Complete.
// CountTokens is local estimation and bypasses the breaker.
type BreakerLLM struct {
	inner   llm.Provider
	breaker *CircuitBreaker
}

var _ llm.Provider = (*BreakerLLM)(nil)

// WrapLLM puts a breaker in front of p.
func WrapLLM(p llm.Provider, cfg BreakerConfig) *BreakerLLM {
	if cfg.Name == "" {
		cfg.Name = "llm"
	}
	return &BreakerLLM{inner: p, breaker: NewCircuitBreaker(cfg)}
}

func (b *BreakerLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var resp *llm.CompletionResponse
	err := b.breaker.Execute(func() error {
		var err error
		resp, err = b.inner.Complete(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (b *BreakerLLM) CountTokens(messages []types.Message) (int, error) {
	return b.inner.CountTokens(messages)
}

// BreakerTranscriber wraps an [stt.Transcriber] with a circuit breaker.
// While the breaker is open, decodes fail fast and the dispatcher delivers
// the usual empty-text boundary event instead of blocking the decode queue.
type BreakerTranscriber struct {
	inner   stt.Transcriber
	breaker *CircuitBreaker
}

var _ stt.Transcriber = (*BreakerTranscriber)(nil)

// WrapTranscriber puts a breaker in front of t.
func WrapTranscriber(t stt.Transcriber, cfg BreakerConfig) *BreakerTranscriber {
	if cfg.Name == "" {
		cfg.Name = "stt"
	}
	return &BreakerTranscriber{inner: t, breaker: NewCircuitBreaker(cfg)}
}

func (b *BreakerTranscriber) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	var text string
	err := b.breaker.Execute(func() error {
		var err error
		text, err = b.inner.Transcribe(ctx, pcm)
		return err
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// BreakerTTS wraps a [tts.Provider] with a circuit breaker around Synthesize.
// SampleRate is static metadata and ListVoices is an admin path; neither
// goes through the breaker.
type BreakerTTS struct {
	inner   tts.Provider
	breaker *CircuitBreaker
}

var _ tts.Provider = (*BreakerTTS)(nil)

// WrapTTS puts a breaker in front of p.
func WrapTTS(p tts.Provider, cfg BreakerConfig) *BreakerTTS {
	if cfg.Name == "" {
		cfg.Name = "tts"
	}
	return &BreakerTTS{inner: p, breaker: NewCircuitBreaker(cfg)}
}

func (b *BreakerTTS) Synthesize(ctx context.Context, text string, voice tts.Voice) ([]byte, error) {
	var pcm []byte
	err := b.breaker.Execute(func() error {
		var err error
		pcm, err = b.inner.Synthesize(ctx, text, voice)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pcm, nil
}

func (b *BreakerTTS) SampleRate() int { return b.inner.SampleRate() }

func (b *BreakerTTS) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	return b.inner.ListVoices(ctx)
}
