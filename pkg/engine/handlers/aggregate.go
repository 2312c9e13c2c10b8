package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/arazvan-ec/contentapi/pkg/domain"
	"github.com/arazvan-ec/contentapi/pkg/engine/runtime"
)

// AggregateStep is the terminal step: it asks the aggregator for the final response.
type AggregateStep struct {
	aggregator domain.Aggregator
}

// NewAggregateStep constructs the step. A nil aggregator uses DefaultAggregator.
func NewAggregateStep(aggregator domain.Aggregator) *AggregateStep {
	if aggregator == nil {
		aggregator = DefaultAggregator{}
	}
	return &AggregateStep{aggregator: aggregator}
}

// Name implements runtime.Step.
func (s *AggregateStep) Name() string { return StepAggregate }

// Priority implements runtime.Step.
func (s *AggregateStep) Priority() int { return PriorityAggregate }

// Process implements runtime.Step.
func (s *AggregateStep) Process(ctx context.Context, pipelineCtx *domain.PipelineContext) (runtime.StepResult, error) {
	if !pipelineCtx.HasEditorial() {
		return runtime.Skip("no editorial"), nil
	}
	response, err := s.aggregator.Aggregate(ctx, pipelineCtx)
	if err != nil {
		return runtime.StepResult{}, fmt.Errorf("aggregate response: %w", err)
	}
	return runtime.Terminate(response), nil
}

// DefaultAggregator composes a domain.ContentDocument from whatever the pipeline
// resolved. Missing optional data yields empty collections.
type DefaultAggregator struct{}

// Aggregate implements domain.Aggregator.
func (DefaultAggregator) Aggregate(_ context.Context, view *domain.PipelineContext) (*domain.Response, error) {
	if !view.HasEditorial() {
		return nil, fmt.Errorf("aggregate: %w", domain.ErrNotFound)
	}

	doc := domain.ContentDocument{
		Editorial:       view.Editorial(),
		Section:         view.Section(),
		Tags:            orEmpty(view.Tags()),
		Signatures:      orEmpty(view.Signatures()),
		Photos:          view.Photos(),
		Media:           view.Media(),
		Embedded:        orEmpty(view.EmbeddedEditorials()),
		Recommended:     orEmpty(view.RecommendedEditorials()),
		MembershipLinks: orEmpty(view.MembershipLinks()),
	}
	if doc.Photos == nil {
		doc.Photos = map[string]domain.Photo{}
	}
	if doc.Media == nil {
		doc.Media = map[string]domain.Media{}
	}
	if view.HasCommentCount() {
		count := view.CommentCount()
		doc.CommentCount = &count
	}
	if extras := view.Extras(); len(extras) > 0 {
		doc.Extras = extras
	}

	return &domain.Response{
		Status:  http.StatusOK,
		Kind:    domain.ResponseKindContent,
		Headers: map[string][]string{"Content-Type": {"application/json"}},
		Body:    doc,
	}, nil
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
