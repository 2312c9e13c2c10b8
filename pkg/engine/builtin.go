package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/arazvan-ec/contentapi/pkg/domain"
	"github.com/arazvan-ec/contentapi/pkg/engine/batch"
	"github.com/arazvan-ec/contentapi/pkg/engine/dispatch"
	"github.com/arazvan-ec/contentapi/pkg/engine/enrich"
	"github.com/arazvan-ec/contentapi/pkg/engine/handlers"
	"github.com/arazvan-ec/contentapi/pkg/engine/runtime"
)

// Dependencies is what a step or enricher factory may draw from.
type Dependencies struct {
	Source             domain.ContentSource
	Aggregator         domain.Aggregator
	Batch              *batch.Resolver
	Chain              *enrich.Chain
	Media              *handlers.MediaRegistry
	MembershipSections []string
	Logger             *slog.Logger
	Now                func() time.Time
}

// StepFactories builds pipeline steps by name.
type StepFactories = dispatch.Registry[Dependencies, runtime.Step]

// EnricherFactories builds enrichers by name.
type EnricherFactories = dispatch.Registry[Dependencies, runtime.Enricher]

var errSourceRequired = errors.New("content source is required")

func step(build func(Dependencies) runtime.Step) dispatch.Handler[Dependencies, runtime.Step] {
	return func(_ context.Context, deps Dependencies) (runtime.Step, error) {
		if deps.Source == nil {
			return nil, errSourceRequired
		}
		return build(deps), nil
	}
}

func enricher(build func(Dependencies) runtime.Enricher) dispatch.Handler[Dependencies, runtime.Enricher] {
	return func(_ context.Context, deps Dependencies) (runtime.Enricher, error) {
		if deps.Source == nil {
			return nil, errSourceRequired
		}
		return build(deps), nil
	}
}

// RegisterBuiltinSteps adds the factories of every built-in step.
func RegisterBuiltinSteps(r *StepFactories) error {
	builtins := []struct {
		name    string
		factory dispatch.Handler[Dependencies, runtime.Step]
	}{
		{handlers.StepFetchEditorial, step(func(d Dependencies) runtime.Step {
			return handlers.NewFetchEditorialStep(d.Source, d.Logger)
		})},
		{handlers.StepLegacyRedirect, func(context.Context, Dependencies) (runtime.Step, error) {
			return handlers.NewLegacyRedirectStep(), nil
		}},
		{handlers.StepPublicationCheck, func(_ context.Context, d Dependencies) (runtime.Step, error) {
			return handlers.NewPublicationCheckStep(d.Now), nil
		}},
		{handlers.StepEmbeddedContent, step(func(d Dependencies) runtime.Step {
			return handlers.NewEmbeddedContentStep(d.Source)
		})},
		{handlers.StepEnrichment, func(_ context.Context, d Dependencies) (runtime.Step, error) {
			return handlers.NewEnrichmentStep(d.Chain, d.Logger), nil
		}},
		{handlers.StepRelatedContent, step(func(d Dependencies) runtime.Step {
			return handlers.NewRelatedContentStep(d.Source, d.Batch, d.Logger)
		})},
		{handlers.StepMedia, step(func(d Dependencies) runtime.Step {
			media := d.Media
			if media == nil {
				media = handlers.NewMediaRegistry(handlers.MediaFetchers{Photos: d.Source, Videos: d.Source, Widgets: d.Source})
			}
			return handlers.NewMediaStep(media, d.Batch, d.Logger)
		})},
		{handlers.StepComments, step(func(d Dependencies) runtime.Step {
			return handlers.NewCommentsStep(d.Source, d.Logger)
		})},
		{handlers.StepSignatures, step(func(d Dependencies) runtime.Step {
			return handlers.NewSignaturesStep(d.Source, d.Batch, d.Logger)
		})},
		{handlers.StepAggregate, func(_ context.Context, d Dependencies) (runtime.Step, error) {
			return handlers.NewAggregateStep(d.Aggregator), nil
		}},
	}

	for _, b := range builtins {
		if err := r.Register(b.name, b.factory); err != nil {
			return err
		}
	}
	return nil
}

// RegisterBuiltinEnrichers adds the factories of every built-in enricher.
func RegisterBuiltinEnrichers(r *EnricherFactories) error {
	if err := r.Register(handlers.EnricherTags, enricher(func(d Dependencies) runtime.Enricher {
		return handlers.NewTagsEnricher(d.Source, d.Batch, d.Logger)
	})); err != nil {
		return err
	}
	if err := r.Register(handlers.EnricherMembership, enricher(func(d Dependencies) runtime.Enricher {
		return handlers.NewMembershipEnricher(d.Source, d.Batch, d.MembershipSections, d.Logger)
	})); err != nil {
		return err
	}
	return r.Register(handlers.EnricherPhotos, enricher(func(d Dependencies) runtime.Enricher {
		return handlers.NewPhotosEnricher(d.Source, d.Batch, d.Logger)
	}))
}

// NewStepFactories returns a registry holding the built-in steps.
func NewStepFactories() *StepFactories {
	r := dispatch.NewRegistry[Dependencies, runtime.Step]("steps")
	if err := RegisterBuiltinSteps(r); err != nil {
		panic(err)
	}
	return r
}

// NewEnricherFactories returns a registry holding the built-in enrichers.
func NewEnricherFactories() *EnricherFactories {
	r := dispatch.NewRegistry[Dependencies, runtime.Enricher]("enrichers")
	if err := RegisterBuiltinEnrichers(r); err != nil {
		panic(err)
	}
	return r
}
