package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"voxwire.recording.duration", m.RecordingDuration},
		{"voxwire.conversion.duration", m.ConversionDuration},
		{"voxwire.send.duration", m.SendDuration},
		{"voxwire.download.duration", m.DownloadDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 4.56)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if hist.DataPoints[0].Count != 2 {
				t.Errorf("metric %q count = %d, want 2", tc.name, hist.DataPoints[0].Count)
			}
		})
	}
}

func TestRecordSendAttempt_StatusAttribute(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSendAttempt(ctx, "sent")
	m.RecordSendAttempt(ctx, "sent")
	m.RecordSendAttempt(ctx, "failed")

	rm := collect(t, reader)
	met := findMetric(rm, "voxwire.send.attempts")
	if met == nil {
		t.Fatal("voxwire.send.attempts not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("voxwire.send.attempts is not a sum")
	}
	if len(sum.DataPoints) != 2 {
		t.Fatalf("expected 2 attribute sets, got %d", len(sum.DataPoints))
	}
	for _, dp := range sum.DataPoints {
		status, _ := dp.Attributes.Value(attribute.Key("status"))
		switch status.AsString() {
		case "sent":
			if dp.Value != 2 {
				t.Errorf("sent count = %d, want 2", dp.Value)
			}
		case "failed":
			if dp.Value != 1 {
				t.Errorf("failed count = %d, want 1", dp.Value)
			}
		default:
			t.Errorf("unexpected status attribute %q", status.AsString())
		}
	}
}

func TestGauges_UpAndDown(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveRecordings.Add(ctx, 1)
	m.ActiveRecordings.Add(ctx, -1)
	m.PendingRetries.Add(ctx, 1)

	rm := collect(t, reader)

	rec := findMetric(rm, "voxwire.active_recordings")
	if rec == nil {
		t.Fatal("voxwire.active_recordings not found")
	}
	if sum, ok := rec.Data.(metricdata.Sum[int64]); ok {
		if sum.DataPoints[0].Value != 0 {
			t.Errorf("active recordings = %d, want 0", sum.DataPoints[0].Value)
		}
	}

	pend := findMetric(rm, "voxwire.pending_retries")
	if pend == nil {
		t.Fatal("voxwire.pending_retries not found")
	}
	if sum, ok := pend.Data.(metricdata.Sum[int64]); ok {
		if sum.DataPoints[0].Value != 1 {
			t.Errorf("pending retries = %d, want 1", sum.DataPoints[0].Value)
		}
	}
}
