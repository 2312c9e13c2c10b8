package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/arazvan-ec/contentapi/pkg/domain"
	"github.com/arazvan-ec/contentapi/pkg/engine/runtime"
	"github.com/arazvan-ec/contentapi/pkg/telemetry"
)

// PipelineExecutor runs registered steps in descending priority order until one
// of them terminates with a response.
type PipelineExecutor struct {
	logger *slog.Logger

	mu     sync.Mutex
	steps  []runtime.Step
	sorted bool
}

// PipelineExecutorConfig holds dependencies for creating a PipelineExecutor.
type PipelineExecutorConfig struct {
	Logger *slog.Logger
}

// NewPipelineExecutor creates an executor with no steps.
func NewPipelineExecutor(cfg PipelineExecutorConfig) *PipelineExecutor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PipelineExecutor{logger: logger}
}

// AddStep registers a step. Steps added after a run are ordered before the next run.
func (e *PipelineExecutor) AddStep(step runtime.Step) {
	if step == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.steps = append(e.steps, step)
	e.sorted = false
}

// Steps returns the registered steps in execution order.
func (e *PipelineExecutor) Steps() []runtime.Step {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sortLocked()
	return append([]runtime.Step(nil), e.steps...)
}

// sortLocked orders by priority descending, then by name so equal priorities run
// in a stable, documented order.
func (e *PipelineExecutor) sortLocked() {
	if e.sorted {
		return
	}
	sort.SliceStable(e.steps, func(i, j int) bool {
		pi, pj := e.steps[i].Priority(), e.steps[j].Priority()
		if pi != pj {
			return pi > pj
		}
		return e.steps[i].Name() < e.steps[j].Name()
	})
	e.sorted = true
}

// Execute runs the pipeline against pipelineCtx.
//
// The first step returning OutcomeTerminate ends the run and its response is
// returned. A step error stops the run immediately and is returned as the step
// produced it; the step name goes to the log and the span. When every step continues, Execute fails with domain.ErrNoResponse.
func (e *PipelineExecutor) Execute(ctx context.Context, pipelineCtx *domain.PipelineContext) (*domain.Response, error) {
	if pipelineCtx == nil {
		return nil, errors.New("pipeline context must not be nil")
	}
	steps := e.Steps()
	contentID := pipelineCtx.ContentID()

	tracer := otel.Tracer("contentapi.pipeline")
	ctx, span := tracer.Start(ctx, "pipeline.execute", trace.WithAttributes(
		attribute.String("content.id", contentID),
		attribute.String("request.id", pipelineCtx.RequestID()),
		attribute.Int("pipeline.steps", len(steps)),
	))
	defer span.End()

	e.logger.Debug("executing pipeline",
		"content_id", contentID,
		"request_id", pipelineCtx.RequestID(),
		"steps", len(steps),
	)

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			telemetry.RecordPipelineRun(ctx, "error")
			return nil, fmt.Errorf("pipeline aborted before step %q: %w", step.Name(), err)
		}

		result, err := e.runStep(ctx, tracer, step, pipelineCtx)
		if err != nil {
			e.logger.Error("step failed",
				"step", step.Name(),
				"content_id", contentID,
				"error", err,
			)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			telemetry.RecordPipelineRun(ctx, "error")
			return nil, err
		}

		switch result.Outcome {
		case runtime.OutcomeTerminate:
			if result.Response == nil {
				err := fmt.Errorf("step %q terminated without a response", step.Name())
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				telemetry.RecordPipelineRun(ctx, "error")
				return nil, err
			}
			e.logger.Debug("pipeline terminated",
				"step", step.Name(),
				"content_id", contentID,
				"kind", result.Response.Kind,
			)
			span.SetAttributes(
				attribute.String("pipeline.terminated_by", step.Name()),
				attribute.String("response.kind", result.Response.Kind),
			)
			telemetry.RecordPipelineRun(ctx, result.Response.Kind)
			return result.Response, nil
		case runtime.OutcomeSkip:
			e.logger.Debug("step skipped",
				"step", step.Name(),
				"content_id", contentID,
				"reason", result.Reason,
			)
		case runtime.OutcomeContinue:
		default:
			err := fmt.Errorf("step %q returned unknown outcome %q", step.Name(), result.Outcome)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			telemetry.RecordPipelineRun(ctx, "error")
			return nil, err
		}
	}

	e.logger.Error("pipeline completed without producing a response",
		"content_id", contentID,
		"set_fields", pipelineCtx.SetFields(),
	)
	span.RecordError(domain.ErrNoResponse)
	span.SetStatus(codes.Error, domain.ErrNoResponse.Error())
	telemetry.RecordPipelineRun(ctx, "error")
	return nil, domain.ErrNoResponse
}

func (e *PipelineExecutor) runStep(ctx context.Context, tracer trace.Tracer, step runtime.Step, pipelineCtx *domain.PipelineContext) (runtime.StepResult, error) {
	stepCtx, stepSpan := tracer.Start(ctx, "pipeline.step", trace.WithAttributes(
		attribute.String("step.name", step.Name()),
		attribute.Int("step.priority", step.Priority()),
	))
	defer stepSpan.End()

	start := time.Now()
	result, err := step.Process(stepCtx, pipelineCtx)
	duration := time.Since(start)
	result = result.WithDefaults()

	outcome := result.Outcome
	if err != nil {
		outcome = runtime.OutcomeError
		stepSpan.RecordError(err)
		stepSpan.SetStatus(codes.Error, err.Error())
	}
	stepSpan.SetAttributes(
		attribute.String("step.outcome", string(outcome)),
		attribute.Int64("step.duration_ms", duration.Milliseconds()),
	)
	if result.Reason != "" {
		stepSpan.SetAttributes(attribute.String("step.skip_reason", result.Reason))
	}

	telemetry.RecordStepMetrics(stepCtx, telemetry.StepMetrics{
		Step:     step.Name(),
		Priority: step.Priority(),
		Outcome:  string(outcome),
		Duration: duration,
	})

	return result, err
}
