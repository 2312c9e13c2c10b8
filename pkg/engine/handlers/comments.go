package handlers

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/arazvan-ec/contentapi/pkg/domain"
	"github.com/arazvan-ec/contentapi/pkg/engine/batch"
	"github.com/arazvan-ec/contentapi/pkg/engine/runtime"
	"github.com/arazvan-ec/contentapi/pkg/telemetry"
)

// CommentsStep fetches the comment count. The count is optional: a failing comments
// service leaves it unset instead of failing the request.
type CommentsStep struct {
	fetcher domain.CommentsFetcher
	logger  *slog.Logger
}

// NewCommentsStep constructs the step.
func NewCommentsStep(fetcher domain.CommentsFetcher, logger *slog.Logger) *CommentsStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommentsStep{fetcher: fetcher, logger: logger}
}

// Name implements runtime.Step.
func (s *CommentsStep) Name() string { return StepComments }

// Priority implements runtime.Step.
func (s *CommentsStep) Priority() int { return PriorityComments }

// Process implements runtime.Step.
func (s *CommentsStep) Process(ctx context.Context, pipelineCtx *domain.PipelineContext) (runtime.StepResult, error) {
	if !pipelineCtx.HasEditorial() {
		return runtime.Skip("no editorial"), nil
	}
	count, err := s.fetcher.CountComments(ctx, pipelineCtx.Editorial().ID)
	if err != nil {
		s.logger.WarnContext(ctx, "comment count unavailable",
			"step", StepComments,
			"content_id", pipelineCtx.ContentID(),
			"error", err,
		)
		telemetry.RecordDegradation(trace.SpanFromContext(ctx), StepComments, pipelineCtx.ContentID(), err)
		return runtime.Skip("comments unavailable"), nil
	}
	if err := pipelineCtx.SetCommentCount(count); err != nil {
		return runtime.StepResult{}, err
	}
	return runtime.Continue(), nil
}

// SignaturesStep resolves the author signatures of the bundle, keeping bundle order.
type SignaturesStep struct {
	fetcher  domain.SignatureFetcher
	resolver *batch.Resolver
	logger   *slog.Logger
}

// NewSignaturesStep constructs the step.
func NewSignaturesStep(fetcher domain.SignatureFetcher, resolver *batch.Resolver, logger *slog.Logger) *SignaturesStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &SignaturesStep{fetcher: fetcher, resolver: resolver, logger: logger}
}

// Name implements runtime.Step.
func (s *SignaturesStep) Name() string { return StepSignatures }

// Priority implements runtime.Step.
func (s *SignaturesStep) Priority() int { return PrioritySignatures }

// Process implements runtime.Step.
func (s *SignaturesStep) Process(ctx context.Context, pipelineCtx *domain.PipelineContext) (runtime.StepResult, error) {
	if !pipelineCtx.HasEmbedded() {
		return runtime.Skip("no embedded bundle"), nil
	}
	ids := unique(pipelineCtx.Embedded().SignatureIDs)
	if len(ids) == 0 {
		return runtime.Skip("no signatures"), nil
	}

	ops := make(map[string]batch.Operation[*domain.Signature], len(ids))
	for _, id := range ids {
		ops[id] = func(ctx context.Context) (*domain.Signature, error) {
			return s.fetcher.FetchSignature(ctx, id)
		}
	}
	result := batch.Resolve(ctx, s.resolver, StepSignatures, ops)
	logRejected(ctx, s.logger, StepSignatures, pipelineCtx.ContentID(), result.Rejected())

	signatures := make([]domain.Signature, 0, len(ids))
	for _, id := range ids {
		if sig, ok := result.Value(id); ok && sig != nil {
			signatures = append(signatures, *sig)
		}
	}
	if err := pipelineCtx.SetSignatures(signatures); err != nil {
		return runtime.StepResult{}, err
	}
	return runtime.Continue(), nil
}
