// Package app wires all arivox subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the AudioSocket and admin HTTP listeners until the
// context is cancelled, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithStore, WithAgent,
// etc.). When an option is not provided, New creates real implementations
// from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arivox/arivox/internal/agent"
	"github.com/arivox/arivox/internal/call"
	"github.com/arivox/arivox/internal/config"
	"github.com/arivox/arivox/internal/dispatch"
	"github.com/arivox/arivox/internal/endpoint"
	"github.com/arivox/arivox/internal/events"
	"github.com/arivox/arivox/internal/health"
	"github.com/arivox/arivox/internal/httpserver"
	"github.com/arivox/arivox/internal/observe"
	"github.com/arivox/arivox/internal/store"
	"github.com/arivox/arivox/internal/transcript"
	"github.com/arivox/arivox/internal/transport/audiosocket"
	"github.com/arivox/arivox/pkg/provider/llm"
	"github.com/arivox/arivox/pkg/provider/stt"
	"github.com/arivox/arivox/pkg/provider/tts"
	"github.com/arivox/arivox/pkg/types"
)

// Providers holds one interface value per provider slot. STT is required;
// LLM and TTS are optional, in which case the pipeline transcribes without
// replying. Populated by main.go from the config.
type Providers struct {
	STT stt.Transcriber
	LLM llm.Provider
	TTS tts.Provider
}

// Dialogue is the session layer the transport hands calls and transcripts
// to. *agent.Agent implements it; tests inject recorders.
type Dialogue interface {
	StartSession(ctx context.Context, callID string, out audiosocket.AudioWriter)
	EndSession(callID string)
	HandleTranscript(ctx context.Context, ev types.TranscriptEvent) error
}

// App owns all subsystem lifetimes and bridges the AudioSocket transport to
// the segmentation pipeline, the dialogue agent, the event hub, and the call
// log.
type App struct {
	cfg       *config.Config
	providers *Providers
	log       *slog.Logger
	metrics   *observe.Metrics

	store    *store.Store // nil when persistence is disabled
	hub      *events.Hub
	gate     *dispatch.Gate
	manager  *call.Manager
	dialogue Dialogue // nil when no LLM or TTS is configured

	audioSrv *audiosocket.Server
	adminSrv *httpserver.Server

	// active tracks per-call metadata for the admin listing.
	activeMu sync.Mutex
	active   map[string]*types.CallInfo

	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a call log instead of connecting from config.
func WithStore(s *store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithDialogue injects a dialogue layer instead of building an agent from
// the configured LLM and TTS providers.
func WithDialogue(d Dialogue) Option {
	return func(a *App) { a.dialogue = d }
}

// WithMetrics injects a metrics set instead of the process default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogger replaces the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *App) { a.log = log }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go. New connects to the call log database when a DSN is
// configured; everything else is constructed in-process.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.STT == nil {
		return nil, fmt.Errorf("app: an STT provider is required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
		log:       slog.Default(),
		active:    make(map[string]*types.CallInfo),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	a.hub = events.NewHub(a.log, a.metrics)
	a.gate = dispatch.NewGate()

	a.initDialogue()

	dispatcher := dispatch.NewDispatcher(
		a.gate,
		providers.STT,
		dispatch.SinkFunc(a.deliverTranscript),
		a.callLive,
		dispatch.WithMetrics(a.metrics),
		dispatch.WithLogger(a.log),
	)

	a.manager = call.NewManager(a.segmentationConfig(), dispatcher,
		call.WithMetrics(a.metrics),
		call.WithLogger(a.log),
	)

	srvOpts := []audiosocket.ServerOption{audiosocket.WithLogger(a.log)}
	if cfg.Server.TelephonyRate > 0 {
		srvOpts = append(srvOpts, audiosocket.WithTelephonyRate(cfg.Server.TelephonyRate))
	}
	if cfg.Segmentation.SampleRate > 0 {
		srvOpts = append(srvOpts, audiosocket.WithPipelineRate(cfg.Segmentation.SampleRate))
	}
	a.audioSrv = audiosocket.NewServer(cfg.Server.AudioSocketAddr, a, srvOpts...)

	a.adminSrv = httpserver.New(cfg.Server.HTTPAddr, a.hub, a.healthHandler(), a, a.callLog(),
		httpserver.WithLogger(a.log),
	)

	return a, nil
}

// initStore connects the call log when a DSN is configured and none was
// injected.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil || a.cfg.Store.PostgresDSN == "" {
		return nil
	}
	s, err := store.New(ctx, a.cfg.Store.PostgresDSN)
	if err != nil {
		return err
	}
	a.store = s
	a.closers = append(a.closers, func() error {
		s.Close()
		return nil
	})
	return nil
}

// initDialogue builds the agent when both an LLM and a TTS provider are
// configured and no dialogue layer was injected.
func (a *App) initDialogue() {
	if a.dialogue != nil {
		return
	}
	if a.providers.LLM == nil || a.providers.TTS == nil {
		a.log.Warn("dialogue disabled: both an LLM and a TTS provider are required",
			"llm", a.providers.LLM != nil,
			"tts", a.providers.TTS != nil)
		return
	}

	persona := agent.Persona{
		Name:         a.cfg.Agent.Name,
		SystemPrompt: a.cfg.Agent.SystemPrompt,
		Greeting:     a.cfg.Agent.Greeting,
		Voice:        tts.Voice{ID: a.cfg.Providers.TTS.Option("voice_id")},
	}

	agentOpts := []agent.Option{
		agent.WithMetrics(a.metrics),
		agent.WithLogger(a.log),
	}
	if a.cfg.Server.TelephonyRate > 0 {
		agentOpts = append(agentOpts, agent.WithTelephonyRate(a.cfg.Server.TelephonyRate))
	}
	if a.cfg.Agent.HistoryBudget > 0 {
		agentOpts = append(agentOpts, agent.WithHistoryBudget(a.cfg.Agent.HistoryBudget))
	}
	if len(a.cfg.Vocabulary) > 0 {
		agentOpts = append(agentOpts, agent.WithCorrector(transcript.NewCorrector(a.cfg.Vocabulary)))
	}
	if a.store != nil {
		agentOpts = append(agentOpts, agent.WithReplyListener(a.recordReply))
	}

	a.dialogue = agent.New(persona, a.providers.LLM, a.providers.TTS, agentOpts...)
}

// segmentationConfig maps the YAML tunables onto the endpoint config. Zero
// values fall through to the endpoint defaults.
func (a *App) segmentationConfig() endpoint.Config {
	seg := a.cfg.Segmentation
	return endpoint.Config{
		SampleRate:      seg.SampleRate,
		EnergyThreshold: seg.EnergyThreshold,
		FrameMs:         seg.FrameMs,
		PrerollMs:       seg.PrerollMs,
		MinMs:           seg.MinMs,
		SilenceMs:       seg.SilenceMs,
		MaxMs:           seg.MaxMs,
	}
}

// healthHandler assembles the readiness checkers for the configured
// dependencies.
func (a *App) healthHandler() *health.Handler {
	checkers := []health.Checker{
		health.DecoderChecker(a.gate, func() error { return nil }),
	}
	if a.store != nil {
		checkers = append(checkers, health.StoreChecker(a.store))
	}
	return health.New(checkers...)
}

// callLog returns the store as the admin call-log dependency, avoiding a
// typed-nil interface when persistence is disabled.
func (a *App) callLog() httpserver.CallLog {
	if a.store == nil {
		return nil
	}
	return a.store
}

// callLive reports whether the call is still registered. Used by the
// dispatcher to suppress events for calls torn down mid-decode.
func (a *App) callLive(callID string) bool {
	return a.manager.Live(callID)
}

// Calls lists the currently active calls for the admin API.
func (a *App) Calls() []types.CallInfo {
	a.activeMu.Lock()
	defer a.activeMu.Unlock()
	infos := make([]types.CallInfo, 0, len(a.active))
	for _, info := range a.active {
		infos = append(infos, *info)
	}
	return infos
}

// CallStarted implements [audiosocket.Handler]. It registers the call with
// the segmentation pipeline, opens the dialogue session, and records the
// call start.
func (a *App) CallStarted(ctx context.Context, callID string, out audiosocket.AudioWriter) error {
	if err := a.manager.Start(ctx, callID); err != nil {
		return err
	}

	now := time.Now().UTC()
	a.activeMu.Lock()
	a.active[callID] = &types.CallInfo{CallID: callID, StartedAt: now}
	a.activeMu.Unlock()

	if a.dialogue != nil {
		a.dialogue.StartSession(ctx, callID, out)
	}
	a.hub.PublishCallStarted(ctx, callID)

	if a.store != nil {
		if err := a.store.RecordCallStart(ctx, callID, now); err != nil {
			a.log.Warn("failed to record call start", "call_id", callID, "error", err)
		}
	}
	return nil
}

// CallAudio implements [audiosocket.Handler]. Frames flow straight into the
// per-call segmenter.
func (a *App) CallAudio(ctx context.Context, callID string, frame []byte) error {
	return a.manager.Feed(ctx, callID, frame)
}

// CallEnded implements [audiosocket.Handler]. Teardown order matters: the
// call is deregistered first so decodes still in flight see it as ended and
// their events are dropped.
func (a *App) CallEnded(ctx context.Context, callID string) {
	a.manager.Teardown(ctx, callID)
	if a.dialogue != nil {
		a.dialogue.EndSession(callID)
	}

	a.activeMu.Lock()
	delete(a.active, callID)
	a.activeMu.Unlock()

	a.hub.PublishCallEnded(ctx, callID)

	if a.store != nil {
		if err := a.store.RecordCallEnd(ctx, callID, time.Now().UTC()); err != nil {
			a.log.Warn("failed to record call end", "call_id", callID, "error", err)
		}
	}
}

// deliverTranscript fans each final transcript out to the event hub, the
// call log, and the dialogue agent. The agent runs last so subscribers and
// the log see the caller's utterance before the reply starts.
func (a *App) deliverTranscript(ctx context.Context, ev types.TranscriptEvent) {
	a.activeMu.Lock()
	if info, ok := a.active[ev.CallID]; ok {
		info.Utterances++
	}
	a.activeMu.Unlock()

	a.hub.PublishTranscript(ctx, ev)

	if a.store != nil {
		u := store.Utterance{
			CallID:     ev.CallID,
			Role:       "caller",
			Text:       ev.Text,
			Duration:   ev.Duration,
			DecodeTime: ev.DecodeTime,
			Forced:     ev.Forced,
		}
		if err := a.store.RecordUtterance(ctx, u); err != nil {
			a.log.Warn("failed to record utterance", "call_id", ev.CallID, "error", err)
		}
	}

	if a.dialogue != nil {
		if err := a.dialogue.HandleTranscript(ctx, ev); err != nil {
			a.log.Error("dialogue turn failed", "call_id", ev.CallID, "error", err)
		}
	}
}

// recordReply persists the agent's side of the conversation.
func (a *App) recordReply(ctx context.Context, callID, text string) {
	u := store.Utterance{CallID: callID, Role: "agent", Text: text}
	if err := a.store.RecordUtterance(ctx, u); err != nil {
		a.log.Warn("failed to record agent reply", "call_id", callID, "error", err)
	}
}

// Run serves the AudioSocket and admin HTTP listeners until ctx is
// cancelled or either listener fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.audioSrv.Serve(ctx) })
	g.Go(func() error { return a.adminSrv.Serve(ctx) })

	a.log.Info("arivox running",
		"audiosocket_addr", a.cfg.Server.AudioSocketAddr,
		"http_addr", a.cfg.Server.HTTPAddr,
		"dialogue", a.dialogue != nil,
		"store", a.store != nil,
	)
	return g.Wait()
}

// Shutdown drains remaining calls and tears down all subsystems in
// reverse-init order. It respects the context deadline: if ctx expires
// before all closers finish, the remaining ones are skipped and the context
// error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "active_calls", a.manager.Count())
		a.manager.Shutdown(ctx)

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "error", err)
			}
		}
		a.log.Info("shutdown complete")
	})
	return shutdownErr
}

var _ audiosocket.Handler = (*App)(nil)
