package observe_test

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/arivox/arivox/internal/observe"
)

// collect gathers all recorded metrics from the reader into a name → data map.
func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func newTestMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func TestRecordFinalizeCountsByReason(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFinalize(ctx, false)
	m.RecordFinalize(ctx, false)
	m.RecordFinalize(ctx, true)

	data := collect(t, reader)
	sum, ok := data["arivox.utterances.finalized"].Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("finalized counter not recorded: %+v", data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 3 {
		t.Errorf("finalized total = %d, want 3", total)
	}
	if len(sum.DataPoints) != 2 {
		t.Errorf("got %d reason attribute sets, want 2", len(sum.DataPoints))
	}
}

func TestRecordDecodeTracksLatencyAndErrors(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordDecode(ctx, 5*time.Millisecond, 120*time.Millisecond, false)
	m.RecordDecode(ctx, 2*time.Millisecond, 80*time.Millisecond, true)

	data := collect(t, reader)

	hist, ok := data["arivox.decode.duration"].Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) == 0 {
		t.Fatal("decode duration histogram not recorded")
	}
	if got := hist.DataPoints[0].Count; got != 2 {
		t.Errorf("decode duration count = %d, want 2", got)
	}

	errs, ok := data["arivox.decode.errors"].Data.(metricdata.Sum[int64])
	if !ok || len(errs.DataPoints) == 0 {
		t.Fatal("decode error counter not recorded")
	}
	if got := errs.DataPoints[0].Value; got != 1 {
		t.Errorf("decode errors = %d, want 1", got)
	}
}

func TestDefaultMetricsIsSingleton(t *testing.T) {
	t.Parallel()
	if observe.DefaultMetrics() != observe.DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}
