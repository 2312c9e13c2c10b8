package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"pgregory.net/rapid"

	"github.com/arazvan-ec/contentapi/pkg/domain"
	"github.com/arazvan-ec/contentapi/pkg/engine/runtime"
	"github.com/arazvan-ec/contentapi/pkg/telemetry"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestExecutor(steps ...runtime.Step) *PipelineExecutor {
	executor := NewPipelineExecutor(PipelineExecutorConfig{Logger: discardLogger()})
	for _, s := range steps {
		executor.AddStep(s)
	}
	return executor
}

// recordingStep appends its name to trace and returns result.
func recordingStep(name string, priority int, trace *[]string, result runtime.StepResult, err error) runtime.Step {
	return runtime.StepFunc{
		StepName:     name,
		StepPriority: priority,
		Fn: func(context.Context, *domain.PipelineContext) (runtime.StepResult, error) {
			*trace = append(*trace, name)
			return result, err
		},
	}
}

func okResponse() *domain.Response {
	return &domain.Response{Status: http.StatusOK, Kind: domain.ResponseKindContent, Body: "done"}
}

func TestExecuteRunsStepsByPriority(t *testing.T) {
	var trace []string
	executor := newTestExecutor(
		recordingStep("low", 10, &trace, runtime.Terminate(okResponse()), nil),
		recordingStep("high", 100, &trace, runtime.Continue(), nil),
		recordingStep("mid-b", 50, &trace, runtime.Skip("nothing to do"), nil),
		recordingStep("mid-a", 50, &trace, runtime.Continue(), nil),
	)

	response, err := executor.Execute(context.Background(), domain.NewPipelineContext("1", "req"))
	require.NoError(t, err)
	assert.Equal(t, "done", response.Body)
	assert.Equal(t, []string{"high", "mid-a", "mid-b", "low"}, trace)
}

func TestExecuteOrderProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		priorities := rapid.SliceOfN(rapid.IntRange(-5, 5), 1, 12).Draw(t, "priorities")

		var trace []string
		priorityOf := map[string]int{"zz-final": -100}
		executor := newTestExecutor()
		for i, p := range priorities {
			name := fmt.Sprintf("s%02d", i)
			priorityOf[name] = p
			executor.AddStep(recordingStep(name, p, &trace, runtime.Continue(), nil))
		}
		executor.AddStep(recordingStep("zz-final", -100, &trace, runtime.Terminate(okResponse()), nil))

		_, err := executor.Execute(context.Background(), domain.NewPipelineContext("1", ""))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for i := 1; i < len(trace); i++ {
			prev, cur := trace[i-1], trace[i]
			if priorityOf[prev] < priorityOf[cur] {
				t.Fatalf("%s (%d) ran before %s (%d)", prev, priorityOf[prev], cur, priorityOf[cur])
			}
			if priorityOf[prev] == priorityOf[cur] && prev > cur {
				t.Fatalf("tie broken out of name order: %s before %s", prev, cur)
			}
		}
		if len(trace) != len(priorities)+1 {
			t.Fatalf("ran %d steps, want %d", len(trace), len(priorities)+1)
		}
		if trace[len(trace)-1] != "zz-final" {
			t.Fatalf("terminating step ran at position %d", len(trace)-1)
		}
	})
}

func TestExecuteTerminateStopsLowerPriority(t *testing.T) {
	var trace []string
	executor := newTestExecutor(
		recordingStep("fetch", 1000, &trace, runtime.Continue(), nil),
		recordingStep("check", 900, &trace, runtime.Terminate(&domain.Response{Status: http.StatusNotFound, Kind: domain.ResponseKindNotPublished}), nil),
		recordingStep("aggregate", 100, &trace, runtime.Terminate(okResponse()), nil),
	)

	response, err := executor.Execute(context.Background(), domain.NewPipelineContext("1", ""))
	require.NoError(t, err)
	assert.Equal(t, domain.ResponseKindNotPublished, response.Kind)
	assert.Equal(t, []string{"fetch", "check"}, trace)
}

func TestExecuteFetchCheckAggregate(t *testing.T) {
	var published bool
	fetch := runtime.StepFunc{StepName: "fetch", StepPriority: 1000, Fn: func(_ context.Context, pctx *domain.PipelineContext) (runtime.StepResult, error) {
		return runtime.Continue(), pctx.SetEditorial(&domain.Editorial{ID: pctx.ContentID(), Visible: published})
	}}
	check := runtime.StepFunc{StepName: "check", StepPriority: 900, Fn: func(_ context.Context, pctx *domain.PipelineContext) (runtime.StepResult, error) {
		if !pctx.Editorial().Visible {
			return runtime.Terminate(&domain.Response{Status: http.StatusNotFound, Kind: domain.ResponseKindNotPublished}), nil
		}
		return runtime.Continue(), nil
	}}
	aggregate := runtime.StepFunc{StepName: "aggregate", StepPriority: 100, Fn: func(_ context.Context, pctx *domain.PipelineContext) (runtime.StepResult, error) {
		return runtime.Terminate(&domain.Response{Status: http.StatusOK, Kind: domain.ResponseKindContent, Body: pctx.Editorial().ID}), nil
	}}
	executor := newTestExecutor(aggregate, check, fetch)

	response, err := executor.Execute(context.Background(), domain.NewPipelineContext("1000", ""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, response.Status)

	published = true
	response, err = executor.Execute(context.Background(), domain.NewPipelineContext("1000", ""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, response.Status)
	assert.Equal(t, "1000", response.Body)
}

func TestExecuteWithoutTerminateFails(t *testing.T) {
	var trace []string
	executor := newTestExecutor(
		recordingStep("a", 2, &trace, runtime.Continue(), nil),
		recordingStep("b", 1, &trace, runtime.Skip("idle"), nil),
	)

	response, err := executor.Execute(context.Background(), domain.NewPipelineContext("1", ""))
	assert.Nil(t, response)
	assert.ErrorIs(t, err, domain.ErrNoResponse)
	assert.Equal(t, []string{"a", "b"}, trace)
}

func TestExecuteEmptyPipelineFails(t *testing.T) {
	_, err := newTestExecutor().Execute(context.Background(), domain.NewPipelineContext("1", ""))
	assert.ErrorIs(t, err, domain.ErrNoResponse)
}

func TestExecuteStepErrorStopsPipeline(t *testing.T) {
	var trace []string
	var logs bytes.Buffer
	executor := NewPipelineExecutor(PipelineExecutorConfig{Logger: slog.New(slog.NewJSONHandler(&logs, nil))})
	executor.AddStep(recordingStep("fetch", 10, &trace, runtime.StepResult{}, domain.ErrUpstreamUnreachable))
	executor.AddStep(recordingStep("aggregate", 1, &trace, runtime.Terminate(okResponse()), nil))

	_, err := executor.Execute(context.Background(), domain.NewPipelineContext("1", ""))
	require.Error(t, err)
	assert.Equal(t, domain.ErrUpstreamUnreachable, err, "step errors propagate unchanged")
	assert.Equal(t, []string{"fetch"}, trace)
	assert.Contains(t, logs.String(), `"step":"fetch"`)
	assert.Contains(t, logs.String(), `"content_id":"1"`)
}

func TestExecuteRejectsTerminateWithoutResponse(t *testing.T) {
	var trace []string
	executor := newTestExecutor(recordingStep("broken", 1, &trace, runtime.StepResult{Outcome: runtime.OutcomeTerminate}, nil))

	_, err := executor.Execute(context.Background(), domain.NewPipelineContext("1", ""))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrNoResponse))
}

func TestExecuteHonoursCanceledContext(t *testing.T) {
	var trace []string
	executor := newTestExecutor(recordingStep("a", 1, &trace, runtime.Terminate(okResponse()), nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := executor.Execute(ctx, domain.NewPipelineContext("1", ""))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, trace)
}

func TestExecuteEmitsTelemetry(t *testing.T) {
	recorder, tracerCleanup := setupTestTracer(t)
	defer tracerCleanup()
	reader, meterCleanup := setupTestMeter(t)
	defer meterCleanup()
	telemetry.ResetMetricsForTest()
	defer telemetry.ResetMetricsForTest()

	var trace []string
	executor := newTestExecutor(
		recordingStep("skipper", 2, &trace, runtime.Skip("not needed"), nil),
		recordingStep("final", 1, &trace, runtime.Terminate(okResponse()), nil),
	)
	_, err := executor.Execute(context.Background(), domain.NewPipelineContext("42", "req-1"))
	require.NoError(t, err)

	spans := recorder.Ended()
	names := make([]string, 0, len(spans))
	for _, s := range spans {
		names = append(names, s.Name())
	}
	assert.Equal(t, 2, countOf(names, "pipeline.step"))
	assert.Equal(t, 1, countOf(names, "pipeline.execute"))

	for _, s := range spans {
		if s.Name() != "pipeline.execute" {
			continue
		}
		attrs := attribute.NewSet(s.Attributes()...)
		v, ok := attrs.Value("pipeline.terminated_by")
		require.True(t, ok)
		assert.Equal(t, "final", v.AsString())
		v, ok = attrs.Value("content.id")
		require.True(t, ok)
		assert.Equal(t, "42", v.AsString())
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	outcomes := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != "contentapi.step.executions_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				outcome, _ := dp.Attributes.Value("step.outcome")
				outcomes[outcome.AsString()] += dp.Value
			}
		}
	}
	assert.Equal(t, int64(1), outcomes["skip"])
	assert.Equal(t, int64(1), outcomes["terminate"])
}

func countOf(items []string, want string) int {
	n := 0
	for _, item := range items {
		if item == want {
			n++
		}
	}
	return n
}

func setupTestTracer(t *testing.T) (*tracetest.SpanRecorder, func()) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prevTracer := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	return recorder, func() {
		otel.SetTracerProvider(prevTracer)
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("tracer provider shutdown: %v", err)
		}
	}
}

func setupTestMeter(t *testing.T) (*sdkmetric.ManualReader, func()) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prevMeter := otel.GetMeterProvider()
	otel.SetMeterProvider(meterProvider)
	return reader, func() {
		otel.SetMeterProvider(prevMeter)
		if err := meterProvider.Shutdown(context.Background()); err != nil {
			t.Logf("meter provider shutdown: %v", err)
		}
	}
}
