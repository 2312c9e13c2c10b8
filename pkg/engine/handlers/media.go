package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/arazvan-ec/contentapi/pkg/domain"
	"github.com/arazvan-ec/contentapi/pkg/engine/batch"
	"github.com/arazvan-ec/contentapi/pkg/engine/dispatch"
	"github.com/arazvan-ec/contentapi/pkg/engine/runtime"
)

// MediaRegistry routes a media kind to the fetcher that resolves it.
type MediaRegistry = dispatch.Registry[string, *domain.Media]

// MediaFetchers groups the fetchers behind the built-in media kinds.
type MediaFetchers struct {
	Photos  domain.PhotoFetcher
	Videos  domain.VideoFetcher
	Widgets domain.WidgetFetcher
}

// NewMediaRegistry registers a resolver for every non-nil fetcher. "image" is an
// alias of "photo".
func NewMediaRegistry(fetchers MediaFetchers) *MediaRegistry {
	registry := dispatch.NewRegistry[string, *domain.Media]("media")
	if fetchers.Photos != nil {
		registry.MustRegister(domain.MediaKindPhoto, func(ctx context.Context, id string) (*domain.Media, error) {
			photo, err := fetchers.Photos.FetchPhoto(ctx, id)
			if err != nil {
				return nil, err
			}
			if photo == nil {
				return nil, fmt.Errorf("photo %q: %w", id, domain.ErrNotFound)
			}
			return &domain.Media{
				Kind:  domain.MediaKindPhoto,
				ID:    photo.ID,
				Title: photo.Caption,
				URL:   photo.URL,
				Photo: photo,
			}, nil
		})
		if err := registry.RegisterAlias("image", domain.MediaKindPhoto); err != nil {
			panic(err)
		}
	}
	if fetchers.Videos != nil {
		registry.MustRegister(domain.MediaKindVideo, func(ctx context.Context, id string) (*domain.Media, error) {
			return fetchers.Videos.FetchVideo(ctx, id)
		})
	}
	if fetchers.Widgets != nil {
		registry.MustRegister(domain.MediaKindWidget, func(ctx context.Context, id string) (*domain.Media, error) {
			return fetchers.Widgets.FetchWidget(ctx, id)
		})
	}
	return registry
}

// MediaStep resolves every media reference of the bundle by dispatching on its kind.
// A kind with no registered handler fails the step before anything is fetched;
// failed fetches of known kinds are dropped.
type MediaStep struct {
	registry *MediaRegistry
	resolver *batch.Resolver
	logger   *slog.Logger
}

// NewMediaStep constructs the step.
func NewMediaStep(registry *MediaRegistry, resolver *batch.Resolver, logger *slog.Logger) *MediaStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &MediaStep{registry: registry, resolver: resolver, logger: logger}
}

// Name implements runtime.Step.
func (s *MediaStep) Name() string { return StepMedia }

// Priority implements runtime.Step.
func (s *MediaStep) Priority() int { return PriorityMedia }

// Process implements runtime.Step.
func (s *MediaStep) Process(ctx context.Context, pipelineCtx *domain.PipelineContext) (runtime.StepResult, error) {
	if !pipelineCtx.HasEmbedded() {
		return runtime.Skip("no embedded bundle"), nil
	}
	refs := pipelineCtx.Embedded().Media
	if len(refs) == 0 {
		return runtime.Skip("no media references"), nil
	}

	for _, ref := range refs {
		if s.registry.Has(ref.Kind) {
			continue
		}
		err := &dispatch.NotFoundError{Registry: s.registry.Name(), Discriminant: ref.Kind}
		s.logger.ErrorContext(ctx, "media kind has no handler",
			"step", StepMedia,
			"content_id", pipelineCtx.ContentID(),
			"media_id", ref.ID,
			"error", err,
		)
		return runtime.StepResult{}, fmt.Errorf("media %q: %w", ref.Key(), err)
	}

	ops := make(map[string]batch.Operation[*domain.Media], len(refs))
	for _, ref := range refs {
		ops[ref.Key()] = func(ctx context.Context) (*domain.Media, error) {
			media, err := s.registry.Dispatch(ctx, ref.Kind, ref.ID)
			if err != nil {
				return nil, err
			}
			if media == nil {
				return nil, fmt.Errorf("%s %q: %w", ref.Kind, ref.ID, domain.ErrNotFound)
			}
			return media, nil
		}
	}
	result := batch.Resolve(ctx, s.resolver, StepMedia, ops)
	logRejected(ctx, s.logger, StepMedia, pipelineCtx.ContentID(), result.Rejected())

	media := make(map[string]domain.Media, len(ops))
	for key, m := range result.Fulfilled() {
		media[key] = *m
	}
	if err := pipelineCtx.SetMedia(media); err != nil {
		return runtime.StepResult{}, err
	}
	return runtime.Continue(), nil
}
