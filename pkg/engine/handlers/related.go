package handlers

import (
	"context"
	"log/slog"
	"sort"

	"github.com/arazvan-ec/contentapi/pkg/domain"
	"github.com/arazvan-ec/contentapi/pkg/engine/batch"
	"github.com/arazvan-ec/contentapi/pkg/engine/runtime"
)

// RelatedContentStep resolves the embedded and recommended editorials referenced by
// the bundle in one batch. Failed or unpublished records are dropped.
type RelatedContentStep struct {
	fetcher  domain.EditorialFetcher
	resolver *batch.Resolver
	logger   *slog.Logger
}

// NewRelatedContentStep constructs the step.
func NewRelatedContentStep(fetcher domain.EditorialFetcher, resolver *batch.Resolver, logger *slog.Logger) *RelatedContentStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &RelatedContentStep{fetcher: fetcher, resolver: resolver, logger: logger}
}

// Name implements runtime.Step.
func (s *RelatedContentStep) Name() string { return StepRelatedContent }

// Priority implements runtime.Step.
func (s *RelatedContentStep) Priority() int { return PriorityRelatedContent }

// Process implements runtime.Step.
func (s *RelatedContentStep) Process(ctx context.Context, pipelineCtx *domain.PipelineContext) (runtime.StepResult, error) {
	if !pipelineCtx.HasEmbedded() {
		return runtime.Skip("no embedded bundle"), nil
	}
	bundle := pipelineCtx.Embedded()
	ids := unique(append(append([]string(nil), bundle.EmbeddedIDs...), bundle.RecommendedIDs...))
	if len(ids) == 0 {
		return runtime.Skip("no related identifiers"), nil
	}

	ops := make(map[string]batch.Operation[*domain.Editorial], len(ids))
	for _, id := range ids {
		ops[id] = func(ctx context.Context) (*domain.Editorial, error) {
			return s.fetcher.FetchEditorial(ctx, id)
		}
	}
	result := batch.Resolve(ctx, s.resolver, StepRelatedContent, ops)
	logRejected(ctx, s.logger, StepRelatedContent, pipelineCtx.ContentID(), result.Rejected())

	pick := func(ids []string) []*domain.Editorial {
		out := make([]*domain.Editorial, 0, len(ids))
		for _, id := range ids {
			editorial, ok := result.Value(id)
			if !ok || editorial == nil || !editorial.Visible {
				continue
			}
			out = append(out, editorial)
		}
		return out
	}

	if err := pipelineCtx.SetRelated(pick(bundle.EmbeddedIDs), pick(bundle.RecommendedIDs)); err != nil {
		return runtime.StepResult{}, err
	}
	return runtime.Continue(), nil
}

// unique drops empty and repeated identifiers, keeping first-seen order.
func unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// logRejected reports dropped keys in a deterministic order.
func logRejected(ctx context.Context, logger *slog.Logger, component, contentID string, rejected map[string]error) {
	if len(rejected) == 0 {
		return
	}
	keys := make([]string, 0, len(rejected))
	for k := range rejected {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		logger.WarnContext(ctx, "dropping unresolved item",
			"component", component,
			"content_id", contentID,
			"key", k,
			"error", rejected[k],
		)
	}
}
