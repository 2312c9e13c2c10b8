package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/arazvan-ec/contentapi/pkg/domain"
	"github.com/arazvan-ec/contentapi/pkg/engine/enrich"
	"github.com/arazvan-ec/contentapi/pkg/engine/runtime"
)

// EnrichmentStep runs the enricher chain over a snapshot of the pipeline context and
// copies its outputs back.
type EnrichmentStep struct {
	chain  *enrich.Chain
	logger *slog.Logger
}

// NewEnrichmentStep constructs the step.
func NewEnrichmentStep(chain *enrich.Chain, logger *slog.Logger) *EnrichmentStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &EnrichmentStep{chain: chain, logger: logger}
}

// Name implements runtime.Step.
func (s *EnrichmentStep) Name() string { return StepEnrichment }

// Priority implements runtime.Step.
func (s *EnrichmentStep) Priority() int { return PriorityEnrichment }

// Process implements runtime.Step.
func (s *EnrichmentStep) Process(ctx context.Context, pipelineCtx *domain.PipelineContext) (runtime.StepResult, error) {
	if !pipelineCtx.HasEditorial() {
		return runtime.Skip("no editorial"), nil
	}
	if s.chain == nil || s.chain.Len() == 0 {
		return runtime.Skip("no enrichers"), nil
	}

	enrichCtx, err := pipelineCtx.NewEnrichmentContext()
	if err != nil {
		return runtime.StepResult{}, err
	}
	report := s.chain.EnrichAll(ctx, enrichCtx)
	if err := pipelineCtx.ApplyEnrichment(enrichCtx); err != nil {
		return runtime.StepResult{}, fmt.Errorf("apply enrichment: %w", err)
	}

	s.logger.DebugContext(ctx, "enrichment finished",
		"content_id", pipelineCtx.ContentID(),
		"ran", report.Ran,
		"skipped", report.Skipped,
		"failed", report.FailedNames(),
	)
	return runtime.Continue(), nil
}
