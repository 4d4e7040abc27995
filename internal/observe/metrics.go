// Package observe provides application-wide observability primitives for
// arivox: OpenTelemetry metrics, tracing helpers, and the provider setup
// that bridges metrics into Prometheus.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed via [InitProvider] so that metrics can be
// scraped from the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all arivox metrics.
const meterName = "github.com/arivox/arivox"

// Metrics holds all OpenTelemetry metric instruments for the audio pipeline.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// DecodeDuration tracks batch speech-to-text decode latency, excluding
	// time spent waiting for the decoder gate.
	DecodeDuration metric.Float64Histogram

	// GateWaitDuration tracks how long a finalized utterance waited for
	// exclusive access to the shared decoder.
	GateWaitDuration metric.Float64Histogram

	// LLMDuration tracks dialogue LLM completion latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// --- Counters ---

	// FramesProcessed counts inbound audio frames stepped through the
	// segmenter. Use with attribute.String("call_id", ...) sparingly; the
	// default recording carries no attributes to keep cardinality flat.
	FramesProcessed metric.Int64Counter

	// UtterancesFinalized counts finalized utterances. Use with
	// attribute.String("reason", "silence"|"max_duration").
	UtterancesFinalized metric.Int64Counter

	// UtterancesDiscarded counts noise bursts dropped below the minimum
	// utterance duration.
	UtterancesDiscarded metric.Int64Counter

	// DecodeErrors counts failed batch decodes.
	DecodeErrors metric.Int64Counter

	// EventsDropped counts transcript events dropped because the call was
	// torn down before the decode completed.
	EventsDropped metric.Int64Counter

	// --- Gauges ---

	// ActiveCalls tracks the number of live calls.
	ActiveCalls metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.DecodeDuration, err = m.Float64Histogram("arivox.decode.duration",
		metric.WithDescription("Latency of batch speech-to-text decodes."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.GateWaitDuration, err = m.Float64Histogram("arivox.decode.gate_wait",
		metric.WithDescription("Time utterances spent waiting for the decoder gate."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("arivox.llm.duration",
		metric.WithDescription("Latency of dialogue LLM completions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("arivox.tts.duration",
		metric.WithDescription("Latency of speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.FramesProcessed, err = m.Int64Counter("arivox.frames.processed",
		metric.WithDescription("Inbound audio frames stepped through segmentation."),
	); err != nil {
		return nil, err
	}
	if met.UtterancesFinalized, err = m.Int64Counter("arivox.utterances.finalized",
		metric.WithDescription("Finalized utterances by finalize reason."),
	); err != nil {
		return nil, err
	}
	if met.UtterancesDiscarded, err = m.Int64Counter("arivox.utterances.discarded",
		metric.WithDescription("Utterances discarded below the minimum duration."),
	); err != nil {
		return nil, err
	}
	if met.DecodeErrors, err = m.Int64Counter("arivox.decode.errors",
		metric.WithDescription("Failed batch decodes."),
	); err != nil {
		return nil, err
	}
	if met.EventsDropped, err = m.Int64Counter("arivox.events.dropped",
		metric.WithDescription("Transcript events dropped for torn-down calls."),
	); err != nil {
		return nil, err
	}

	if met.ActiveCalls, err = m.Int64UpDownCounter("arivox.active_calls",
		metric.WithDescription("Number of live calls."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordFinalize records a finalized utterance with its finalize reason.
func (m *Metrics) RecordFinalize(ctx context.Context, forced bool) {
	reason := "silence"
	if forced {
		reason = "max_duration"
	}
	m.UtterancesFinalized.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordDecode records one decode attempt: its duration, the time spent
// waiting for the gate, and whether it failed.
func (m *Metrics) RecordDecode(ctx context.Context, wait, took time.Duration, failed bool) {
	m.GateWaitDuration.Record(ctx, wait.Seconds())
	m.DecodeDuration.Record(ctx, took.Seconds())
	if failed {
		m.DecodeErrors.Add(ctx, 1)
	}
}
