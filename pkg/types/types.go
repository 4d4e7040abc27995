// Package types defines the shared types used across all arivox packages.
//
// These types form the lingua franca between the audio pipeline, providers,
// and the dialogue session layer. They are intentionally minimal: each
// package defines its own domain types, but cross-cutting data structures
// live here to avoid circular imports.
package types

import "time"

// TranscriptEvent is emitted exactly once per finalized utterance. The
// pipeline decodes complete utterances in batch, so there are no partial
// (interim) events; every event is final by construction.
type TranscriptEvent struct {
	// CallID identifies the call the utterance belongs to. Stable for the
	// lifetime of the call.
	CallID string `json:"call_id"`

	// Text is the decoded transcript. Empty when the decode failed or the
	// audio contained no recognisable speech; the event is still delivered
	// so downstream consumers observe the turn boundary.
	Text string `json:"text"`

	// IsFinal is always true. Retained on the wire so external consumers
	// can share event handling with streaming STT sources.
	IsFinal bool `json:"is_final"`

	// Duration is the length of the decoded audio span, preroll included.
	Duration time.Duration `json:"duration_ns"`

	// Forced is true when the utterance was finalized by the max-duration
	// cutoff rather than by trailing silence.
	Forced bool `json:"forced"`

	// DecodeTime is how long the batch decode took, excluding time spent
	// waiting for the decoder gate.
	DecodeTime time.Duration `json:"decode_time_ns"`
}

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// CallInfo holds metadata about an active call, surfaced on the admin API.
type CallInfo struct {
	// CallID is the call's UUID as delivered in the AudioSocket handshake.
	CallID string `json:"call_id"`

	// StartedAt is when the transport handed the call to the pipeline.
	StartedAt time.Time `json:"started_at"`

	// Utterances is the number of utterances finalized so far.
	Utterances int `json:"utterances"`
}
