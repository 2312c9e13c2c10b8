// Package enrich runs optional enrichers over an enrichment context. A failing
// enricher never stops the chain or the request; its contribution is just absent.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/arazvan-ec/contentapi/pkg/domain"
	"github.com/arazvan-ec/contentapi/pkg/engine/runtime"
	"github.com/arazvan-ec/contentapi/pkg/telemetry"
)

// Failure is one isolated enricher error.
type Failure struct {
	Enricher string
	Err      error
}

// Report lists what happened to each enricher during one pass, in execution order.
// Two instances sharing a name each get their own entry.
type Report struct {
	Ran     []string
	Skipped []string
	Failed  []Failure
}

// OK reports whether no enricher failed.
func (r Report) OK() bool { return len(r.Failed) == 0 }

// FailedNames returns the names of the failed enrichers.
func (r Report) FailedNames() []string {
	names := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		names = append(names, f.Enricher)
	}
	return names
}

// Config holds dependencies for creating a Chain.
type Config struct {
	Logger *slog.Logger
}

// Chain holds enrichers and runs them in descending priority order.
type Chain struct {
	logger *slog.Logger

	mu        sync.Mutex
	enrichers []runtime.Enricher
	sorted    bool
}

// NewChain creates an empty chain.
func NewChain(cfg Config) *Chain {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{logger: logger}
}

// AddEnricher registers an enricher.
func (c *Chain) AddEnricher(enricher runtime.Enricher) {
	if enricher == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enrichers = append(c.enrichers, enricher)
	c.sorted = false
}

// Enrichers returns the registered enrichers in execution order.
func (c *Chain) Enrichers() []runtime.Enricher {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.sorted {
		sort.SliceStable(c.enrichers, func(i, j int) bool {
			pi, pj := c.enrichers[i].Priority(), c.enrichers[j].Priority()
			if pi != pj {
				return pi > pj
			}
			return Name(c.enrichers[i]) < Name(c.enrichers[j])
		})
		c.sorted = true
	}
	return append([]runtime.Enricher(nil), c.enrichers...)
}

// Len returns the number of registered enrichers.
func (c *Chain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.enrichers)
}

// Named is implemented by enrichers that carry their own name, typically the
// factory discriminant they were built from.
type Named interface {
	Name() string
}

// Name identifies an enricher by its own name, or by its concrete type when it has
// none.
func Name(enricher runtime.Enricher) string {
	if named, ok := enricher.(Named); ok && named.Name() != "" {
		return named.Name()
	}
	return fmt.Sprintf("%T", enricher)
}

// EnrichAll runs every supporting enricher against enrichCtx. Errors and panics are
// logged and recorded in the report; the remaining enrichers still run.
func (c *Chain) EnrichAll(ctx context.Context, enrichCtx *domain.EnrichmentContext) Report {
	var report Report
	if enrichCtx == nil || enrichCtx.Editorial() == nil {
		return report
	}
	editorial := enrichCtx.Editorial()

	tracer := otel.Tracer("contentapi.enrich")
	ctx, span := tracer.Start(ctx, "enrich.chain", trace.WithAttributes(
		attribute.String("content.id", editorial.ID),
	))
	defer span.End()

	for _, enricher := range c.Enrichers() {
		name := Name(enricher)
		supported, err := supports(enricher, editorial)
		if err == nil && !supported {
			report.Skipped = append(report.Skipped, name)
			continue
		}

		if err == nil {
			err = c.run(ctx, tracer, name, enricher, enrichCtx)
		}
		telemetry.RecordEnricherMetrics(ctx, telemetry.EnricherMetrics{Enricher: name, Failed: err != nil})
		if err != nil {
			c.logger.Warn("enricher failed",
				"enricher", name,
				"type", fmt.Sprintf("%T", enricher),
				"content_id", editorial.ID,
				"error", err,
			)
			telemetry.RecordDegradation(span, name, editorial.ID, err)
			report.Failed = append(report.Failed, Failure{Enricher: name, Err: err})
			continue
		}
		report.Ran = append(report.Ran, name)
	}

	span.SetAttributes(
		attribute.Int("enrich.ran", len(report.Ran)),
		attribute.Int("enrich.skipped", len(report.Skipped)),
		attribute.Int("enrich.failed", len(report.Failed)),
	)
	return report
}

func supports(enricher runtime.Enricher, editorial *domain.Editorial) (ok bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("enricher Supports panicked: %v", rec)
		}
	}()
	return enricher.Supports(editorial), nil
}

func (c *Chain) run(ctx context.Context, tracer trace.Tracer, name string, enricher runtime.Enricher, enrichCtx *domain.EnrichmentContext) (err error) {
	ctx, span := tracer.Start(ctx, "enrich.enricher", trace.WithAttributes(
		attribute.String("enricher.name", name),
		attribute.Int("enricher.priority", enricher.Priority()),
	))
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("enricher panicked: %v", rec)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	return enricher.Enrich(ctx, enrichCtx)
}
