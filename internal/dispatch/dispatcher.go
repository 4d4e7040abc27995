package dispatch

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/arivox/arivox/internal/endpoint"
	"github.com/arivox/arivox/internal/observe"
	"github.com/arivox/arivox/pkg/provider/stt"
	"github.com/arivox/arivox/pkg/types"
)

// Sink receives transcript events in the order the dispatcher produced
// them for a given call. Deliver must not block for long; slow consumers
// should buffer or drop on their side.
type Sink interface {
	Deliver(ctx context.Context, ev types.TranscriptEvent)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, ev types.TranscriptEvent)

// Deliver implements Sink.
func (f SinkFunc) Deliver(ctx context.Context, ev types.TranscriptEvent) { f(ctx, ev) }

// LivenessFunc reports whether a call is still active. The dispatcher
// consults it after decoding, immediately before delivery, so events for
// calls torn down mid-decode are dropped instead of delivered.
type LivenessFunc func(callID string) bool

// Dispatcher runs finalized utterance segments through the shared decoder
// and emits transcript events. Decodes from different calls serialize
// through the Gate; ordering within one call is the caller's concern (the
// call worker invokes Finalize sequentially).
type Dispatcher struct {
	gate    *Gate
	stt     stt.Transcriber
	sink    Sink
	live    LivenessFunc
	metrics *observe.Metrics
	log     *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMetrics overrides the metrics instance, primarily for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

// NewDispatcher wires the gate, transcriber and event sink together.
// live may be nil, in which case every call is considered active.
func NewDispatcher(gate *Gate, transcriber stt.Transcriber, sink Sink, live LivenessFunc, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		gate: gate,
		stt:  transcriber,
		sink: sink,
		live: live,
		log:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	if d.live == nil {
		d.live = func(string) bool { return true }
	}
	return d
}

// Finalize decodes one finalized segment for callID and delivers the
// resulting transcript event. Decode failures are not fatal: the event is
// delivered with empty text so downstream consumers observe the utterance
// boundary either way. The only event ever suppressed is one whose call
// ended while the decode was in flight.
func (d *Dispatcher) Finalize(ctx context.Context, callID string, seg endpoint.Segment) error {
	ctx, span := observe.StartSpan(ctx, "utterance.decode",
		trace.WithAttributes(
			attribute.String("call.id", callID),
			attribute.Float64("audio.duration_s", seg.Duration.Seconds()),
			attribute.Bool("audio.forced_cutoff", seg.Forced),
		),
	)
	defer span.End()

	start := time.Now()

	var wait time.Duration
	text, err := d.gate.Run(ctx, func(ctx context.Context) (string, error) {
		wait = time.Since(start)
		return d.stt.Transcribe(ctx, seg.PCM)
	})
	took := time.Since(start) - wait

	if err != nil {
		if ctx.Err() != nil {
			// Cancelled before or during decode; nothing to deliver.
			d.metrics.RecordDecode(ctx, wait, took, true)
			return err
		}
		span.RecordError(err)
		d.log.Warn("utterance decode failed",
			"call_id", callID,
			"duration", seg.Duration,
			"error", err)
		text = ""
	}
	d.metrics.RecordDecode(ctx, wait, took, err != nil)
	d.metrics.RecordFinalize(ctx, seg.Forced)

	if !d.live(callID) {
		d.metrics.EventsDropped.Add(ctx, 1)
		d.log.Debug("dropping transcript event for ended call",
			"call_id", callID, "text_len", len(text))
		return nil
	}

	d.sink.Deliver(ctx, types.TranscriptEvent{
		CallID:     callID,
		Text:       text,
		IsFinal:    true,
		Duration:   seg.Duration,
		Forced:     seg.Forced,
		DecodeTime: took,
	})
	return nil
}
