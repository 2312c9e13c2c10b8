package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	metricsOnce              sync.Once
	metricsInitErr           error
	stepExecutionCounter     metric.Int64Counter
	stepLatencyHistogram     metric.Float64Histogram
	enricherExecutionCounter metric.Int64Counter
	enricherFailureCounter   metric.Int64Counter
	batchOperationCounter    metric.Int64Counter
	batchLatencyHistogram    metric.Float64Histogram
	pipelineRunCounter       metric.Int64Counter
)

// StepMetrics captures the fields needed to record one pipeline step execution.
type StepMetrics struct {
	Step     string
	Priority int
	Outcome  string
	Duration time.Duration
}

// RecordStepMetrics emits the counter and latency histogram of a step execution.
func RecordStepMetrics(ctx context.Context, m StepMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("step.name", m.Step),
		attribute.Int("step.priority", m.Priority),
		attribute.String("step.outcome", m.Outcome),
	)
	stepExecutionCounter.Add(ctx, 1, attrs)
	if m.Duration > 0 {
		stepLatencyHistogram.Record(ctx, millis(m.Duration), attrs)
	}
}

// EnricherMetrics captures one enricher invocation.
type EnricherMetrics struct {
	Enricher string
	Failed   bool
}

// RecordEnricherMetrics counts enricher runs and isolated failures.
func RecordEnricherMetrics(ctx context.Context, m EnricherMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("enricher.name", m.Enricher))
	enricherExecutionCounter.Add(ctx, 1, attrs)
	if m.Failed {
		enricherFailureCounter.Add(ctx, 1, attrs)
	}
}

// BatchMetrics summarises one settled batch.
type BatchMetrics struct {
	Name      string
	Size      int
	Fulfilled int
	Rejected  int
	Duration  time.Duration
}

// RecordBatchMetrics counts settled operations per state and records batch latency.
func RecordBatchMetrics(ctx context.Context, m BatchMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	if m.Fulfilled > 0 {
		batchOperationCounter.Add(ctx, int64(m.Fulfilled), metric.WithAttributes(
			attribute.String("batch.name", m.Name),
			attribute.String("batch.state", "fulfilled"),
		))
	}
	if m.Rejected > 0 {
		batchOperationCounter.Add(ctx, int64(m.Rejected), metric.WithAttributes(
			attribute.String("batch.name", m.Name),
			attribute.String("batch.state", "rejected"),
		))
	}
	if m.Duration > 0 {
		batchLatencyHistogram.Record(ctx, millis(m.Duration), metric.WithAttributes(
			attribute.String("batch.name", m.Name),
		))
	}
}

// RecordPipelineRun counts finished pipeline runs by result kind, e.g. "content",
// "not_published" or "error".
func RecordPipelineRun(ctx context.Context, result string) {
	if err := ensureMetrics(); err != nil {
		return
	}
	pipelineRunCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("pipeline.result", result)))
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("contentapi.pipeline")

		stepExecutionCounter, metricsInitErr = meter.Int64Counter(
			"contentapi.step.executions_total",
			metric.WithDescription("Pipeline step executions partitioned by outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		stepLatencyHistogram, metricsInitErr = meter.Float64Histogram(
			"contentapi.step.duration_ms",
			metric.WithDescription("Observed step execution latency"),
			metric.WithUnit("ms"),
		)
		if metricsInitErr != nil {
			return
		}

		enricherExecutionCounter, metricsInitErr = meter.Int64Counter(
			"contentapi.enricher.executions_total",
			metric.WithDescription("Enricher invocations"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		enricherFailureCounter, metricsInitErr = meter.Int64Counter(
			"contentapi.enricher.failures_total",
			metric.WithDescription("Enricher failures isolated by the chain"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		batchOperationCounter, metricsInitErr = meter.Int64Counter(
			"contentapi.batch.operations_total",
			metric.WithDescription("Batch operations partitioned by settled state"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		batchLatencyHistogram, metricsInitErr = meter.Float64Histogram(
			"contentapi.batch.duration_ms",
			metric.WithDescription("Time until every operation of a batch settled"),
			metric.WithUnit("ms"),
		)
		if metricsInitErr != nil {
			return
		}

		pipelineRunCounter, metricsInitErr = meter.Int64Counter(
			"contentapi.pipeline.runs_total",
			metric.WithDescription("Completed pipeline runs partitioned by result"),
			metric.WithUnit("{count}"),
		)
	})

	return metricsInitErr
}

// RecordDegradation attaches a span event when optional data is dropped without
// failing the request.
func RecordDegradation(span trace.Span, component, contentID string, err error) {
	if span == nil || !span.IsRecording() {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("degradation.component", component),
		attribute.String("content.id", contentID),
	}
	if err != nil {
		attrs = append(attrs, attribute.String("degradation.error", err.Error()))
	}

	span.AddEvent("contentapi.degraded", trace.WithAttributes(attrs...))
}
