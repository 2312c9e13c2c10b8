package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arazvan-ec/contentapi/internal/governance"
	"github.com/arazvan-ec/contentapi/pkg/domain"
	"github.com/arazvan-ec/contentapi/pkg/engine/batch"
	"github.com/arazvan-ec/contentapi/pkg/engine/enrich"
	"github.com/arazvan-ec/contentapi/pkg/engine/handlers"
	"github.com/arazvan-ec/contentapi/pkg/engine/runtime"
)

type requestIDContextKey struct{}

// WithRequestID attaches a correlation identifier to ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, requestID)
}

// RequestIDFromContext extracts the correlation identifier from ctx.
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDContextKey{}).(string); ok {
		return requestID
	}
	return ""
}

// OrchestratorConfig holds what is needed to assemble the pipeline of the process.
type OrchestratorConfig struct {
	Source     domain.ContentSource
	Aggregator domain.Aggregator
	Logger     *slog.Logger

	Timeouts       governance.TimeoutConfig
	MaxConcurrency int

	// DisabledSteps and DisabledEnrichers name built-ins to leave out.
	DisabledSteps      []string
	DisabledEnrichers  []string
	MembershipSections []string

	// StepFactories and EnricherFactories default to the built-in registries.
	StepFactories     *StepFactories
	EnricherFactories *EnricherFactories

	// ExtraSteps and ExtraEnrichers are added as-is after the factory-built ones.
	ExtraSteps     []runtime.Step
	ExtraEnrichers []runtime.Enricher

	Now func() time.Time
}

// Orchestrator resolves a content identifier into one composed response.
type Orchestrator struct {
	executor *PipelineExecutor
	chain    *enrich.Chain
	timeouts *governance.TimeoutManager
	logger   *slog.Logger
}

// NewOrchestrator wires every enabled step and enricher. Unknown names in the
// disabled lists and factory failures are configuration errors.
func NewOrchestrator(ctx context.Context, cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfigInvalid, errSourceRequired)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	stepFactories := cfg.StepFactories
	if stepFactories == nil {
		stepFactories = NewStepFactories()
	}
	enricherFactories := cfg.EnricherFactories
	if enricherFactories == nil {
		enricherFactories = NewEnricherFactories()
	}

	timeouts := governance.NewTimeoutManager(cfg.Timeouts)
	chain := enrich.NewChain(enrich.Config{Logger: logger})
	deps := Dependencies{
		Source:     cfg.Source,
		Aggregator: cfg.Aggregator,
		Batch: batch.NewResolver(batch.Config{
			Timeout:        timeouts.EffectiveBatchTimeout(),
			MaxConcurrency: cfg.MaxConcurrency,
			Logger:         logger,
		}),
		Chain:              chain,
		Media:              handlers.NewMediaRegistry(handlers.MediaFetchers{Photos: cfg.Source, Videos: cfg.Source, Widgets: cfg.Source}),
		MembershipSections: cfg.MembershipSections,
		Logger:             logger,
		Now:                cfg.Now,
	}

	enricherNames, err := enabled(enricherFactories.Discriminants(), cfg.DisabledEnrichers, "enricher")
	if err != nil {
		return nil, err
	}
	for _, name := range enricherNames {
		e, err := enricherFactories.Dispatch(ctx, name, deps)
		if err != nil {
			return nil, fmt.Errorf("build enricher %q: %w", name, err)
		}
		chain.AddEnricher(e)
	}
	for _, e := range cfg.ExtraEnrichers {
		chain.AddEnricher(e)
	}

	executor := NewPipelineExecutor(PipelineExecutorConfig{Logger: logger})
	stepNames, err := enabled(stepFactories.Discriminants(), cfg.DisabledSteps, "step")
	if err != nil {
		return nil, err
	}
	for _, name := range stepNames {
		s, err := stepFactories.Dispatch(ctx, name, deps)
		if err != nil {
			return nil, fmt.Errorf("build step %q: %w", name, err)
		}
		executor.AddStep(s)
	}
	for _, s := range cfg.ExtraSteps {
		executor.AddStep(s)
	}

	logger.Info("orchestrator ready",
		"steps", stepNames,
		"enrichers", enricherNames,
		"request_timeout", cfg.Timeouts.RequestTimeout,
		"batch_timeout", timeouts.EffectiveBatchTimeout(),
	)

	return &Orchestrator{
		executor: executor,
		chain:    chain,
		timeouts: timeouts,
		logger:   logger,
	}, nil
}

func enabled(all, disabled []string, kind string) ([]string, error) {
	for _, name := range disabled {
		if !slices.Contains(all, strings.ToLower(strings.TrimSpace(name))) {
			return nil, fmt.Errorf("%w: unknown %s %q in disabled list", domain.ErrConfigInvalid, kind, name)
		}
	}
	out := make([]string, 0, len(all))
	for _, name := range all {
		if slices.ContainsFunc(disabled, func(d string) bool {
			return strings.EqualFold(strings.TrimSpace(d), name)
		}) {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

// Executor exposes the assembled pipeline.
func (o *Orchestrator) Executor() *PipelineExecutor { return o.executor }

// Chain exposes the assembled enricher chain.
func (o *Orchestrator) Chain() *enrich.Chain { return o.chain }

// Resolve runs the pipeline for contentID. The request identifier is taken from ctx
// (see WithRequestID) or generated.
func (o *Orchestrator) Resolve(ctx context.Context, contentID string) (*domain.Response, error) {
	contentID = strings.TrimSpace(contentID)
	if contentID == "" {
		return nil, domain.NewDomainError(domain.ErrNotFound, "NOT_FOUND", "content id is blank")
	}
	requestID := RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	ctx, cancel := o.timeouts.WithRequestTimeout(ctx)
	defer cancel()

	pipelineCtx := domain.NewPipelineContext(contentID, requestID)
	response, err := o.executor.Execute(ctx, pipelineCtx)
	if err != nil {
		if cause := context.Cause(ctx); errors.Is(cause, governance.ErrRequestTimeout) && !errors.Is(err, governance.ErrRequestTimeout) {
			err = fmt.Errorf("%w: %w", governance.ErrRequestTimeout, err)
		}
		return nil, err
	}
	return response, nil
}
