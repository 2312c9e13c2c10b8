package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupReader(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		otel.SetMeterProvider(prev)
		ResetMetricsForTest()
	})

	ResetMetricsForTest()
	return reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	metrics := map[string]metricdata.Metrics{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			metrics[m.Name] = m
		}
	}
	return metrics
}

func TestRecordStepMetrics(t *testing.T) {
	reader := setupReader(t)
	ctx := context.Background()

	RecordStepMetrics(ctx, StepMetrics{
		Step:     "fetch_editorial",
		Priority: 1000,
		Outcome:  "continue",
		Duration: 150 * time.Millisecond,
	})

	metrics := collect(t, reader)

	exec, ok := metrics["contentapi.step.executions_total"]
	require.True(t, ok, "missing step executions metric")
	execData, ok := exec.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, execData.DataPoints, 1)
	require.Equal(t, int64(1), execData.DataPoints[0].Value)
	value, ok := execData.DataPoints[0].Attributes.Value(attribute.Key("step.name"))
	require.True(t, ok)
	require.Equal(t, "fetch_editorial", value.AsString())

	hist, ok := metrics["contentapi.step.duration_ms"]
	require.True(t, ok, "missing step duration metric")
	histData := hist.Data.(metricdata.Histogram[float64])
	require.Equal(t, uint64(1), histData.DataPoints[0].Count)
	require.InDelta(t, 150, histData.DataPoints[0].Sum, 0.001)
}

func TestRecordBatchMetricsSplitsByState(t *testing.T) {
	reader := setupReader(t)

	RecordBatchMetrics(context.Background(), BatchMetrics{
		Name:      "photos",
		Size:      3,
		Fulfilled: 2,
		Rejected:  1,
		Duration:  10 * time.Millisecond,
	})

	metrics := collect(t, reader)
	ops, ok := metrics["contentapi.batch.operations_total"]
	require.True(t, ok)

	byState := map[string]int64{}
	for _, dp := range ops.Data.(metricdata.Sum[int64]).DataPoints {
		state, _ := dp.Attributes.Value(attribute.Key("batch.state"))
		byState[state.AsString()] = dp.Value
	}
	require.Equal(t, map[string]int64{"fulfilled": 2, "rejected": 1}, byState)
}

func TestRecordEnricherMetricsCountsFailures(t *testing.T) {
	reader := setupReader(t)
	ctx := context.Background()

	RecordEnricherMetrics(ctx, EnricherMetrics{Enricher: "*handlers.TagsEnricher"})
	RecordEnricherMetrics(ctx, EnricherMetrics{Enricher: "*handlers.TagsEnricher", Failed: true})

	metrics := collect(t, reader)
	runs := metrics["contentapi.enricher.executions_total"].Data.(metricdata.Sum[int64])
	require.Equal(t, int64(2), runs.DataPoints[0].Value)
	failures := metrics["contentapi.enricher.failures_total"].Data.(metricdata.Sum[int64])
	require.Equal(t, int64(1), failures.DataPoints[0].Value)
}

func TestRecordDegradation(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider()
	tp.RegisterSpanProcessor(recorder)
	tracer := tp.Tracer("test")

	_, span := tracer.Start(context.Background(), "step")
	RecordDegradation(span, "comments", "42", errors.New("comments service down"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	events := spans[0].Events()
	require.Len(t, events, 1)
	require.Equal(t, "contentapi.degraded", events[0].Name)

	attrs := attribute.NewSet(events[0].Attributes...)
	value, ok := attrs.Value(attribute.Key("degradation.component"))
	require.True(t, ok)
	require.Equal(t, "comments", value.AsString())
	value, ok = attrs.Value(attribute.Key("degradation.error"))
	require.True(t, ok)
	require.Equal(t, "comments service down", value.AsString())

	require.NoError(t, tp.Shutdown(context.Background()))
}

func TestSetupProviderWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := SetupProvider(context.Background(), Config{})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
