// Package agent implements the dialogue side of the voice agent: it
// consumes finalized caller transcripts, produces a reply with the
// configured language model, synthesizes it, and plays it back into the
// call.
//
// One [Agent] serves all calls; each call gets its own [session] holding
// the conversation history. Replies within one call are serialised so the
// agent never talks over itself.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/arivox/arivox/internal/observe"
	"github.com/arivox/arivox/internal/transcript"
	"github.com/arivox/arivox/internal/transport/audiosocket"
	"github.com/arivox/arivox/pkg/audio"
	"github.com/arivox/arivox/pkg/provider/llm"
	"github.com/arivox/arivox/pkg/provider/tts"
	"github.com/arivox/arivox/pkg/types"
)

// Persona is the agent's fixed conversational identity.
type Persona struct {
	// Name is used in logs and transcripts.
	Name string

	// SystemPrompt is the instruction injected before every conversation.
	SystemPrompt string

	// Greeting, when non-empty, is spoken as soon as a call connects.
	Greeting string

	// Voice is the TTS voice used for all replies.
	Voice tts.Voice
}

// Agent turns caller transcripts into spoken replies.
type Agent struct {
	persona       Persona
	llm           llm.Provider
	tts           tts.Provider
	corrector     *transcript.Corrector
	telephonyRate int
	historyBudget int
	onReply       func(ctx context.Context, callID, text string)
	metrics       *observe.Metrics
	log           *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// Option configures an Agent.
type Option func(*Agent)

// WithCorrector attaches a vocabulary corrector applied to every transcript
// before it reaches the model.
func WithCorrector(c *transcript.Corrector) Option {
	return func(a *Agent) { a.corrector = c }
}

// WithTelephonyRate sets the sample rate of the call leg that replies are
// resampled to before playback. Default 8000.
func WithTelephonyRate(hz int) Option {
	return func(a *Agent) { a.telephonyRate = hz }
}

// WithHistoryBudget caps the conversation history in estimated tokens.
// Oldest exchanges are dropped first. Default 6000.
func WithHistoryBudget(tokens int) Option {
	return func(a *Agent) { a.historyBudget = tokens }
}

// WithReplyListener registers a callback invoked after a reply has been
// spoken into the call, with the text that was played. Used to persist the
// agent's side of the conversation.
func WithReplyListener(fn func(ctx context.Context, callID, text string)) Option {
	return func(a *Agent) { a.onReply = fn }
}

// WithMetrics overrides the metrics instance, primarily for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Agent) { a.metrics = m }
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *Agent) { a.log = log }
}

// New creates an Agent speaking with the given persona.
func New(persona Persona, llmProvider llm.Provider, ttsProvider tts.Provider, opts ...Option) *Agent {
	a := &Agent{
		persona:       persona,
		llm:           llmProvider,
		tts:           ttsProvider,
		telephonyRate: audiosocket.DefaultTelephonyRate,
		historyBudget: 6000,
		log:           slog.Default(),
		sessions:      make(map[string]*session),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	return a
}

// StartSession opens the dialogue for a new call and speaks the greeting,
// if one is configured. out receives all of this call's reply audio.
func (a *Agent) StartSession(ctx context.Context, callID string, out audiosocket.AudioWriter) {
	s := &session{out: out, startedAt: time.Now().UTC()}

	a.mu.Lock()
	a.sessions[callID] = s
	a.mu.Unlock()

	if a.persona.Greeting != "" {
		go func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if err := a.speak(ctx, s, a.persona.Greeting); err != nil {
				a.log.Warn("greeting playback failed", "call_id", callID, "error", err)
				return
			}
			if a.onReply != nil {
				a.onReply(ctx, callID, a.persona.Greeting)
			}
		}()
	}
}

// EndSession discards the call's dialogue state.
func (a *Agent) EndSession(callID string) {
	a.mu.Lock()
	delete(a.sessions, callID)
	a.mu.Unlock()
}

// History returns a copy of the call's conversation so far, or nil for an
// unknown call.
func (a *Agent) History(callID string) []types.Message {
	a.mu.Lock()
	s, ok := a.sessions[callID]
	a.mu.Unlock()
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Message, len(s.history))
	copy(out, s.history)
	return out
}

// HandleTranscript processes one finalized caller utterance: correction,
// completion, synthesis, playback. Unspeakable transcripts (empty text,
// pure punctuation, decoder noise annotations) are skipped without touching
// the conversation history.
func (a *Agent) HandleTranscript(ctx context.Context, ev types.TranscriptEvent) error {
	a.mu.Lock()
	s, ok := a.sessions[ev.CallID]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("agent: no session for call %s", ev.CallID)
	}

	text := strings.TrimSpace(ev.Text)
	if !speakable(text) {
		a.log.Debug("skipping unspeakable transcript", "call_id", ev.CallID, "text", text)
		return nil
	}
	if a.corrector != nil {
		text = a.corrector.Correct(text)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, types.Message{Role: "user", Content: text})
	a.trimHistory(s)

	llmStart := time.Now()
	resp, err := a.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: a.persona.SystemPrompt,
		Messages:     s.history,
	})
	a.metrics.LLMDuration.Record(ctx, time.Since(llmStart).Seconds())
	if err != nil {
		// Keep the user's utterance in history so the model sees it on the
		// next turn even though this reply failed.
		return fmt.Errorf("agent: completion for call %s: %w", ev.CallID, err)
	}

	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		a.log.Warn("model returned empty reply", "call_id", ev.CallID)
		return nil
	}
	s.history = append(s.history, types.Message{Role: "assistant", Content: reply})

	if err := a.speak(ctx, s, reply); err != nil {
		return err
	}
	if a.onReply != nil {
		a.onReply(ctx, ev.CallID, reply)
	}
	return nil
}

// speak synthesizes text and plays it into the call. Callers hold s.mu.
func (a *Agent) speak(ctx context.Context, s *session, text string) error {
	ttsStart := time.Now()
	pcm, err := a.tts.Synthesize(ctx, text, a.persona.Voice)
	a.metrics.TTSDuration.Record(ctx, time.Since(ttsStart).Seconds())
	if err != nil {
		return fmt.Errorf("agent: synthesize reply: %w", err)
	}

	pcm = audio.ResampleMono16(pcm, a.tts.SampleRate(), a.telephonyRate)
	if err := s.out.Play(ctx, pcm); err != nil {
		return fmt.Errorf("agent: play reply: %w", err)
	}
	return nil
}

// trimHistory drops the oldest exchanges until the history fits the token
// budget. Callers hold s.mu.
func (a *Agent) trimHistory(s *session) {
	for len(s.history) > 2 {
		n, err := a.llm.CountTokens(s.history)
		if err != nil || n <= a.historyBudget {
			return
		}
		// Drop the oldest user/assistant pair together to keep turns aligned.
		drop := 1
		if len(s.history) > 1 && s.history[0].Role == "user" && s.history[1].Role == "assistant" {
			drop = 2
		}
		s.history = s.history[drop:]
	}
}

// session is the per-call dialogue state.
type session struct {
	mu        sync.Mutex
	history   []types.Message
	out       audiosocket.AudioWriter
	startedAt time.Time
}

// speakable reports whether decoded text is worth answering. The decoder
// emits bare punctuation for breaths and line noise, and bracketed
// annotations like [BLANK_AUDIO] or (wind blowing) for non-speech audio.
func speakable(text string) bool {
	if text == "" {
		return false
	}
	if (strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]")) ||
		(strings.HasPrefix(text, "(") && strings.HasSuffix(text, ")")) {
		return false
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
