package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arazvan-ec/contentapi/pkg/domain"
	"github.com/arazvan-ec/contentapi/pkg/engine/runtime"
)

// Built-in step names and priorities.
const (
	StepFetchEditorial   = "fetch_editorial"
	StepLegacyRedirect   = "legacy_redirect"
	StepPublicationCheck = "publication_check"
	StepEmbeddedContent  = "embedded_content"
	StepEnrichment       = "enrichment"
	StepRelatedContent   = "related_content"
	StepMedia            = "media"
	StepComments         = "comments"
	StepSignatures       = "signatures"
	StepAggregate        = "aggregate"

	PriorityFetchEditorial   = 1000
	PriorityLegacyRedirect   = 950
	PriorityPublicationCheck = 900
	PriorityEmbeddedContent  = 800
	PriorityEnrichment       = 700
	PriorityRelatedContent   = 650
	PriorityMedia            = 600
	PriorityComments         = 500
	PrioritySignatures       = 400
	PriorityAggregate        = 100
)

// FetchEditorialStep loads the primary record. An editorial the upstream refuses as
// unpublished ends the pipeline with a not-published response; any other error,
// including domain.ErrNotFound, fails the request.
type FetchEditorialStep struct {
	fetcher domain.EditorialFetcher
	logger  *slog.Logger
}

// NewFetchEditorialStep constructs the step.
func NewFetchEditorialStep(fetcher domain.EditorialFetcher, logger *slog.Logger) *FetchEditorialStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &FetchEditorialStep{fetcher: fetcher, logger: logger}
}

// Name implements runtime.Step.
func (s *FetchEditorialStep) Name() string { return StepFetchEditorial }

// Priority implements runtime.Step.
func (s *FetchEditorialStep) Priority() int { return PriorityFetchEditorial }

// Process implements runtime.Step.
func (s *FetchEditorialStep) Process(ctx context.Context, pipelineCtx *domain.PipelineContext) (runtime.StepResult, error) {
	if pipelineCtx.HasEditorial() {
		return runtime.Skip("editorial already loaded"), nil
	}

	editorial, err := s.fetcher.FetchEditorial(ctx, pipelineCtx.ContentID())
	if errors.Is(err, domain.ErrNotPublished) {
		s.logger.DebugContext(ctx, "upstream refused unpublished editorial", "content_id", pipelineCtx.ContentID())
		return runtime.Terminate(NotPublishedResponse(pipelineCtx.ContentID())), nil
	}
	if editorial == nil && err == nil {
		err = domain.ErrNotFound
	}
	if errors.Is(err, domain.ErrNotFound) {
		return runtime.StepResult{}, domain.NewDomainError(err, "NOT_FOUND",
			fmt.Sprintf("content %q not found", pipelineCtx.ContentID())).
			WithDetail("content_id", pipelineCtx.ContentID())
	}
	if err != nil {
		return runtime.StepResult{}, fmt.Errorf("fetch editorial %q: %w", pipelineCtx.ContentID(), err)
	}

	if err := pipelineCtx.SetEditorial(editorial); err != nil {
		return runtime.StepResult{}, err
	}
	return runtime.Continue(), nil
}

// LegacyRedirectStep sends legacy editorials to their old location.
type LegacyRedirectStep struct{}

// NewLegacyRedirectStep constructs the step.
func NewLegacyRedirectStep() *LegacyRedirectStep { return &LegacyRedirectStep{} }

// Name implements runtime.Step.
func (s *LegacyRedirectStep) Name() string { return StepLegacyRedirect }

// Priority implements runtime.Step.
func (s *LegacyRedirectStep) Priority() int { return PriorityLegacyRedirect }

// Process implements runtime.Step.
func (s *LegacyRedirectStep) Process(_ context.Context, pipelineCtx *domain.PipelineContext) (runtime.StepResult, error) {
	if !pipelineCtx.HasEditorial() {
		return runtime.Skip("no editorial"), nil
	}
	editorial := pipelineCtx.Editorial()
	if !editorial.Legacy || editorial.LegacyURL == "" {
		return runtime.Continue(), nil
	}
	return runtime.Terminate(LegacyResponse(editorial.LegacyURL)), nil
}

// PublicationCheckStep stops the pipeline for editorials that are hidden or
// scheduled for the future.
type PublicationCheckStep struct {
	now func() time.Time
}

// NewPublicationCheckStep constructs the step. A nil clock uses time.Now.
func NewPublicationCheckStep(now func() time.Time) *PublicationCheckStep {
	if now == nil {
		now = time.Now
	}
	return &PublicationCheckStep{now: now}
}

// Name implements runtime.Step.
func (s *PublicationCheckStep) Name() string { return StepPublicationCheck }

// Priority implements runtime.Step.
func (s *PublicationCheckStep) Priority() int { return PriorityPublicationCheck }

// Process implements runtime.Step.
func (s *PublicationCheckStep) Process(_ context.Context, pipelineCtx *domain.PipelineContext) (runtime.StepResult, error) {
	if !pipelineCtx.HasEditorial() {
		return runtime.Skip("no editorial"), nil
	}
	editorial := pipelineCtx.Editorial()
	if !editorial.Visible {
		return runtime.Terminate(NotPublishedResponse(pipelineCtx.ContentID())), nil
	}
	if !editorial.PublishedAt.IsZero() && editorial.PublishedAt.After(s.now()) {
		return runtime.Terminate(NotPublishedResponse(pipelineCtx.ContentID())), nil
	}
	return runtime.Continue(), nil
}

// EmbeddedContentStep loads the bundle of related identifiers.
type EmbeddedContentStep struct {
	fetcher domain.EmbeddedContentFetcher
}

// NewEmbeddedContentStep constructs the step.
func NewEmbeddedContentStep(fetcher domain.EmbeddedContentFetcher) *EmbeddedContentStep {
	return &EmbeddedContentStep{fetcher: fetcher}
}

// Name implements runtime.Step.
func (s *EmbeddedContentStep) Name() string { return StepEmbeddedContent }

// Priority implements runtime.Step.
func (s *EmbeddedContentStep) Priority() int { return PriorityEmbeddedContent }

// Process implements runtime.Step.
func (s *EmbeddedContentStep) Process(ctx context.Context, pipelineCtx *domain.PipelineContext) (runtime.StepResult, error) {
	if !pipelineCtx.HasEditorial() {
		return runtime.Skip("no editorial"), nil
	}
	bundle, err := s.fetcher.FetchEmbedded(ctx, pipelineCtx.Editorial(), pipelineCtx.Section())
	if err != nil {
		return runtime.StepResult{}, fmt.Errorf("fetch embedded content: %w", err)
	}
	if bundle == nil {
		bundle = &domain.EmbeddedBundle{}
	}
	if err := pipelineCtx.SetEmbedded(bundle); err != nil {
		return runtime.StepResult{}, err
	}
	return runtime.Continue(), nil
}
