// Package batch runs many independently keyed operations concurrently and joins
// their settled outcomes without letting one failure affect another.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/arazvan-ec/contentapi/pkg/telemetry"
)

// ErrSettlementTimeout marks keys whose operation had not settled when the batch
// deadline expired.
var ErrSettlementTimeout = errors.New("batch operation did not settle before the deadline")

// Operation is one asynchronous unit of work, typically an upstream fetch.
type Operation[V any] func(ctx context.Context) (V, error)

// Result separates the settled outcomes of one batch. Every submitted key appears in
// exactly one of the two maps.
type Result[K comparable, V any] struct {
	fulfilled map[K]V
	rejected  map[K]error
}

func newResult[K comparable, V any](size int) *Result[K, V] {
	return &Result[K, V]{
		fulfilled: make(map[K]V, size),
		rejected:  make(map[K]error),
	}
}

// Fulfilled returns a copy of the successful values keyed by operation key.
func (r *Result[K, V]) Fulfilled() map[K]V { return maps.Clone(r.fulfilled) }

// Rejected returns a copy of the errors keyed by operation key.
func (r *Result[K, V]) Rejected() map[K]error { return maps.Clone(r.rejected) }

// Value returns the value for key when its operation succeeded.
func (r *Result[K, V]) Value(key K) (V, bool) {
	v, ok := r.fulfilled[key]
	return v, ok
}

// Err returns the error for key when its operation failed.
func (r *Result[K, V]) Err(key K) error { return r.rejected[key] }

// Size is the number of settled keys, equal to the number submitted.
func (r *Result[K, V]) Size() int { return len(r.fulfilled) + len(r.rejected) }

// HasFailures reports whether any operation was rejected.
func (r *Result[K, V]) HasFailures() bool { return len(r.rejected) > 0 }

// Config controls how a Resolver runs batches.
type Config struct {
	// Timeout bounds how long a batch waits for settlement. Zero waits until every
	// operation returns.
	Timeout time.Duration
	// MaxConcurrency limits operations running at once. Zero means no limit.
	MaxConcurrency int
	Logger         *slog.Logger
}

// Resolver holds the batch policy shared by every step and enricher of a process.
type Resolver struct {
	timeout        time.Duration
	maxConcurrency int
	logger         *slog.Logger
}

// NewResolver creates a resolver with the given configuration.
func NewResolver(cfg Config) *Resolver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		timeout:        cfg.Timeout,
		maxConcurrency: cfg.MaxConcurrency,
		logger:         logger,
	}
}

// Timeout returns the configured settlement deadline.
func (r *Resolver) Timeout() time.Duration { return r.timeout }

type settlement[K comparable, V any] struct {
	key   K
	value V
	err   error
}

// Resolve starts every operation concurrently, waits for all of them to settle and
// returns the fulfilled and rejected outcomes. It never fails as a whole; callers
// decide what a rejected key means. name labels logs, spans and metrics.
//
// A nil resolver runs with no timeout and no concurrency limit.
func Resolve[K comparable, V any](ctx context.Context, r *Resolver, name string, ops map[K]Operation[V]) *Result[K, V] {
	if len(ops) == 0 {
		return newResult[K, V](0)
	}
	if r == nil {
		r = NewResolver(Config{})
	}

	tracer := otel.Tracer("contentapi.batch")
	ctx, span := tracer.Start(ctx, "batch.resolve", trace.WithAttributes(
		attribute.String("batch.name", name),
		attribute.Int("batch.size", len(ops)),
	))
	defer span.End()

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if r.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	start := time.Now()

	// Buffered so operations that outlive the deadline never block.
	slots := make(chan settlement[K, V], len(ops))

	var g errgroup.Group
	if r.maxConcurrency > 0 {
		g.SetLimit(r.maxConcurrency)
	}
	// Operations not admitted by the time runCtx is done never start; Resolve
	// reports their keys as abandoned.
	go func() {
		for key, op := range ops {
			if runCtx.Err() != nil {
				break
			}
			g.Go(func() error {
				if runCtx.Err() != nil {
					return nil
				}
				slots <- run(runCtx, key, op)
				return nil
			})
		}
		_ = g.Wait()
	}()

	result := newResult[K, V](len(ops))
	settled := make(map[K]struct{}, len(ops))
	record := func(s settlement[K, V]) {
		if _, dup := settled[s.key]; dup {
			return
		}
		settled[s.key] = struct{}{}
		if s.err != nil {
			result.rejected[s.key] = s.err
			return
		}
		result.fulfilled[s.key] = s.value
	}

wait:
	for len(settled) < len(ops) {
		select {
		case s := <-slots:
			record(s)
		case <-runCtx.Done():
			break wait
		}
	}

	if len(settled) < len(ops) {
		// Keep whatever settled in the same instant as the deadline.
	drain:
		for {
			select {
			case s := <-slots:
				record(s)
			default:
				break drain
			}
		}
		cause := abandonCause(runCtx, r.timeout)
		for key := range ops {
			if _, ok := settled[key]; !ok {
				settled[key] = struct{}{}
				result.rejected[key] = cause
			}
		}
		r.logger.Warn("batch abandoned unsettled operations",
			"batch", name,
			"size", len(ops),
			"timeout", r.timeout,
			"error", cause,
		)
	}

	duration := time.Since(start)
	span.SetAttributes(
		attribute.Int("batch.fulfilled", len(result.fulfilled)),
		attribute.Int("batch.rejected", len(result.rejected)),
	)
	telemetry.RecordBatchMetrics(ctx, telemetry.BatchMetrics{
		Name:      name,
		Size:      len(ops),
		Fulfilled: len(result.fulfilled),
		Rejected:  len(result.rejected),
		Duration:  duration,
	})
	r.logger.Debug("batch settled",
		"batch", name,
		"size", len(ops),
		"fulfilled", len(result.fulfilled),
		"rejected", len(result.rejected),
		"duration_ms", duration.Milliseconds(),
	)

	return result
}

func run[K comparable, V any](ctx context.Context, key K, op Operation[V]) (s settlement[K, V]) {
	s.key = key
	defer func() {
		if rec := recover(); rec != nil {
			var zero V
			s.value = zero
			s.err = fmt.Errorf("operation panicked: %v\nStack trace:\n%s", rec, debug.Stack())
		}
	}()
	if op == nil {
		s.err = fmt.Errorf("operation for key %v is nil", key)
		return s
	}
	s.value, s.err = op(ctx)
	return s
}

func abandonCause(ctx context.Context, timeout time.Duration) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) && timeout > 0 {
		return fmt.Errorf("%w after %s: %w", ErrSettlementTimeout, timeout, err)
	}
	if err == nil {
		return ErrSettlementTimeout
	}
	return fmt.Errorf("batch canceled: %w", err)
}
