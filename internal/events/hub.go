// Package events broadcasts transcript and call-lifecycle events to
// WebSocket subscribers: operator dashboards, live transcription views,
// and the call supervision tooling.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/arivox/arivox/internal/observe"
	"github.com/arivox/arivox/pkg/types"
)

// Event kinds published on the stream.
const (
	KindTranscript  = "transcript"
	KindCallStarted = "call_started"
	KindCallEnded   = "call_ended"
)

// Event is the JSON envelope sent to subscribers.
type Event struct {
	Kind       string                 `json:"kind"`
	Time       time.Time              `json:"time"`
	CallID     string                 `json:"call_id,omitempty"`
	Transcript *types.TranscriptEvent `json:"transcript,omitempty"`
}

// subscriberBuffer bounds each subscriber's send queue. A subscriber that
// falls this far behind is slow enough to hold up nothing: its events are
// dropped, never the publisher.
const subscriberBuffer = 32

// writeTimeout bounds a single frame write to one subscriber.
const writeTimeout = 5 * time.Second

// Hub fans events out to connected WebSocket subscribers. Publishing never
// blocks; slow subscribers lose events.
type Hub struct {
	log     *slog.Logger
	metrics *observe.Metrics

	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewHub creates an empty hub.
func NewHub(log *slog.Logger, metrics *observe.Metrics) *Hub {
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Hub{
		log:     log,
		metrics: metrics,
		subs:    make(map[chan Event]struct{}),
	}
}

// Publish sends ev to every current subscriber without blocking.
func (h *Hub) Publish(ctx context.Context, ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.metrics.EventsDropped.Add(ctx, 1)
		}
	}
}

// PublishTranscript publishes a finalized transcript event.
func (h *Hub) PublishTranscript(ctx context.Context, tr types.TranscriptEvent) {
	h.Publish(ctx, Event{Kind: KindTranscript, CallID: tr.CallID, Transcript: &tr})
}

// PublishCallStarted publishes a call start marker.
func (h *Hub) PublishCallStarted(ctx context.Context, callID string) {
	h.Publish(ctx, Event{Kind: KindCallStarted, CallID: callID})
}

// PublishCallEnded publishes a call end marker.
func (h *Hub) PublishCallEnded(ctx context.Context, callID string) {
	h.Publish(ctx, Event{Kind: KindCallEnded, CallID: callID})
}

// SubscriberCount returns the number of connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) subscribe() chan Event {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan Event) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// ServeHTTP upgrades the request to a WebSocket and streams events until
// the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The dashboard is served from a different origin in development.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn("websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ch := h.subscribe()
	defer h.unsubscribe(ch)
	h.log.Debug("event subscriber connected", "remote", r.RemoteAddr)

	// We never read application data from subscribers; CloseRead surfaces
	// client disconnects through ctx.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			if err := h.writeEvent(ctx, conn, ev); err != nil {
				h.log.Debug("event subscriber dropped", "remote", r.RemoteAddr, "error", err)
				return
			}
		}
	}
}

func (h *Hub) writeEvent(ctx context.Context, conn *websocket.Conn, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, payload)
}
