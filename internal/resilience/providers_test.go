package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arivox/arivox/internal/resilience"
	"github.com/arivox/arivox/pkg/provider/llm"
	llmmock "github.com/arivox/arivox/pkg/provider/llm/mock"
	sttmock "github.com/arivox/arivox/pkg/provider/stt/mock"
	"github.com/arivox/arivox/pkg/provider/tts"
	ttsmock "github.com/arivox/arivox/pkg/provider/tts/mock"
)

func TestBreakerLLMForwardsAndTrips(t *testing.T) {
	t.Parallel()

	inner := &llmmock.Provider{Response: &llm.CompletionResponse{Content: "hi there"}}
	p := resilience.WrapLLM(inner, resilience.BreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "hi there" {
		t.Errorf("Content = %q, want %q", resp.Content, "hi there")
	}

	inner.Err = errors.New("upstream down")
	for range 2 {
		if _, err := p.Complete(context.Background(), llm.CompletionRequest{}); err == nil {
			t.Fatal("Complete() succeeded, want upstream error")
		}
	}

	before := inner.CallCount()
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{}); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("Complete() error = %v, want ErrCircuitOpen", err)
	}
	if inner.CallCount() != before {
		t.Error("inner provider was called while the breaker was open")
	}
}

func TestBreakerLLMCountTokensBypassesBreaker(t *testing.T) {
	t.Parallel()

	inner := &llmmock.Provider{Err: errors.New("upstream down")}
	p := resilience.WrapLLM(inner, resilience.BreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})

	_, _ = p.Complete(context.Background(), llm.CompletionRequest{})

	if _, err := p.CountTokens(nil); err != nil {
		t.Errorf("CountTokens() error = %v, want local estimate despite open breaker", err)
	}
}

func TestBreakerTranscriberFailsFastWhenOpen(t *testing.T) {
	t.Parallel()

	inner := &sttmock.Transcriber{Err: errors.New("decoder crashed")}
	tr := resilience.WrapTranscriber(inner, resilience.BreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})

	if _, err := tr.Transcribe(context.Background(), []byte{0, 0}); err == nil {
		t.Fatal("Transcribe() succeeded, want error")
	}
	if _, err := tr.Transcribe(context.Background(), []byte{0, 0}); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("Transcribe() error = %v, want ErrCircuitOpen", err)
	}
	if got := inner.CallCount(); got != 1 {
		t.Errorf("inner CallCount() = %d, want 1", got)
	}
}

func TestBreakerTTSMetadataBypassesBreaker(t *testing.T) {
	t.Parallel()

	inner := &ttsmock.Provider{Err: errors.New("quota exceeded"), Rate: 16000}
	p := resilience.WrapTTS(inner, resilience.BreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})

	voice := tts.Voice{ID: "v1"}
	if _, err := p.Synthesize(context.Background(), "hello", voice); err == nil {
		t.Fatal("Synthesize() succeeded, want error")
	}
	if _, err := p.Synthesize(context.Background(), "hello", voice); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Error("second Synthesize() did not fail fast")
	}
	if got := p.SampleRate(); got != 16000 {
		t.Errorf("SampleRate() = %d, want 16000 despite open breaker", got)
	}
}
