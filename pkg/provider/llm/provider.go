// Package llm defines the Provider interface for the dialogue language
// model backends.
//
// A provider wraps a remote or local model API and exposes a uniform
// completion interface so the dialogue agent never couples to a specific
// SDK. Implementations must be safe for concurrent use and must propagate
// context cancellation promptly.
package llm

import (
	"context"

	"github.com/arivox/arivox/pkg/types"
)

// Usage holds token accounting returned by the backend. Counts are in the
// model's native token unit and may differ between providers for the same
// text.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a reply.
// Messages must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is an optional high-priority instruction injected before
	// the conversation history.
	SystemPrompt string

	// Messages is the ordered conversation history; the last message is the
	// caller's most recent utterance.
	Messages []types.Message

	// Temperature controls output randomness in [0.0, 2.0]. Zero means the
	// provider default.
	Temperature float64

	// MaxTokens caps the completion length. Zero means the provider default.
	MaxTokens int
}

// CompletionResponse is the model's full reply.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider is the abstraction over any dialogue LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response. The
	// agent speaks whole replies, so there is no streaming variant.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates how many context-window tokens messages would
	// consume. The result need not be exact but should not undercount.
	CountTokens(messages []types.Message) (int, error)
}
