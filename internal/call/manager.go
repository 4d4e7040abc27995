package call

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/arivox/arivox/internal/endpoint"
	"github.com/arivox/arivox/internal/observe"
)

// Manager is the registry of live calls. It owns each call's pipeline from
// the moment the transport announces the call until teardown.
//
// All methods are safe for concurrent use; frames for one call must still
// arrive from a single goroutine, which the transport guarantees.
type Manager struct {
	cfg       endpoint.Config
	finalizer Finalizer
	metrics   *observe.Metrics
	log       *slog.Logger

	mu    sync.RWMutex
	tasks map[string]*task
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithMetrics overrides the metrics instance, primarily for tests.
func WithMetrics(m *observe.Metrics) ManagerOption {
	return func(mgr *Manager) { mgr.metrics = m }
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) ManagerOption {
	return func(mgr *Manager) { mgr.log = log }
}

// NewManager creates a call registry. cfg holds the segmentation tunables
// applied to every call; fin receives finalized utterances.
func NewManager(cfg endpoint.Config, fin Finalizer, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:       cfg,
		finalizer: fin,
		log:       slog.Default(),
		tasks:     make(map[string]*task),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	return m
}

// Start registers a new call and launches its decode worker. The worker ends
// when Teardown is called or ctx is cancelled.
func (m *Manager) Start(ctx context.Context, callID string) error {
	seg, err := endpoint.NewSegmenter(m.cfg)
	if err != nil {
		return fmt.Errorf("call %s: %w", callID, err)
	}

	t := newTask(callID, seg, m.metrics, m.log)

	m.mu.Lock()
	if _, exists := m.tasks[callID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("call %s: already registered", callID)
	}
	m.tasks[callID] = t
	m.mu.Unlock()

	m.metrics.ActiveCalls.Add(ctx, 1)
	m.log.Info("call started", "call_id", callID, "started_at", time.Now().UTC())

	go t.run(ctx, m.finalizer)
	return nil
}

// Feed routes one audio frame to the call's segmenter. Returns [ErrEnded]
// when the call is unknown or already torn down.
func (m *Manager) Feed(ctx context.Context, callID string, frame []byte) error {
	m.mu.RLock()
	t, ok := m.tasks[callID]
	m.mu.RUnlock()
	if !ok {
		return ErrEnded
	}
	return t.feed(ctx, frame)
}

// Live reports whether callID is currently registered. The dispatcher uses
// this immediately before delivering a transcript event.
func (m *Manager) Live(callID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tasks[callID]
	return ok
}

// Teardown ends a call: it is deregistered first, so in-flight decodes see
// the call as dead, then the pipeline is stopped. Any open partial
// utterance is discarded, never flushed. Idempotent.
func (m *Manager) Teardown(ctx context.Context, callID string) {
	m.mu.Lock()
	t, ok := m.tasks[callID]
	if ok {
		delete(m.tasks, callID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	t.stop()
	m.metrics.ActiveCalls.Add(ctx, -1)
	m.log.Info("call ended", "call_id", callID)
}

// Shutdown tears down every live call. Used on process exit.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.tasks))
	for id := range m.tasks {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Teardown(ctx, id)
	}
}

// Count returns the number of live calls.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tasks)
}
