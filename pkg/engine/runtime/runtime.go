// Package runtime defines the core contracts shared by the pipeline executor, the
// enricher chain and their handlers, keeping business logic decoupled from execution
// mechanics.
package runtime

import (
	"context"

	"github.com/arazvan-ec/contentapi/pkg/domain"
)

// StepOutcome classifies the result of a step and tells the executor what to do next.
type StepOutcome string

const (
	// OutcomeContinue indicates the step did its work and the next step should run.
	OutcomeContinue StepOutcome = "continue"
	// OutcomeSkip indicates the step had nothing to do. Control flow is the same as
	// OutcomeContinue; the distinction only shows up in logs and metrics.
	OutcomeSkip StepOutcome = "skip"
	// OutcomeTerminate stops the pipeline and returns the attached response.
	OutcomeTerminate StepOutcome = "terminate"
	// OutcomeError is recorded in telemetry when a step returns an error. Steps never
	// return it themselves.
	OutcomeError StepOutcome = "error"
)

// StepResult bundles the outcome, the optional final response and a skip reason.
type StepResult struct {
	Outcome  StepOutcome
	Response *domain.Response
	Reason   string
}

// WithDefaults ensures the outcome is set even when steps omit it.
func (r StepResult) WithDefaults() StepResult {
	if r.Outcome == "" {
		r.Outcome = OutcomeContinue
	}
	return r
}

// Continue constructs a continue result.
func Continue() StepResult {
	return StepResult{Outcome: OutcomeContinue}
}

// Skip constructs a skip result with a reason for diagnostics.
func Skip(reason string) StepResult {
	return StepResult{Outcome: OutcomeSkip, Reason: reason}
}

// Terminate constructs a result that ends the pipeline with response.
func Terminate(response *domain.Response) StepResult {
	return StepResult{Outcome: OutcomeTerminate, Response: response}
}

// Step is one pluggable unit of the request pipeline.
type Step interface {
	// Name identifies the step in logs, metrics and registries.
	Name() string
	// Priority orders steps; higher runs first.
	Priority() int
	// Process reads and writes the shared context and classifies the result.
	Process(ctx context.Context, pipelineCtx *domain.PipelineContext) (StepResult, error)
}

// Enricher is an optional, independently failing unit that augments an
// EnrichmentContext with side data.
type Enricher interface {
	// Supports reports whether the enricher applies to the primary record.
	Supports(editorial *domain.Editorial) bool
	// Priority orders enrichers; higher runs first.
	Priority() int
	// Enrich writes its outputs into the enrichment context.
	Enrich(ctx context.Context, enrichCtx *domain.EnrichmentContext) error
}

// StepFunc adapts a function to the Step interface.
type StepFunc struct {
	StepName     string
	StepPriority int
	Fn           func(ctx context.Context, pipelineCtx *domain.PipelineContext) (StepResult, error)
}

// Name implements Step.
func (s StepFunc) Name() string { return s.StepName }

// Priority implements Step.
func (s StepFunc) Priority() int { return s.StepPriority }

// Process implements Step.
func (s StepFunc) Process(ctx context.Context, pipelineCtx *domain.PipelineContext) (StepResult, error) {
	return s.Fn(ctx, pipelineCtx)
}
