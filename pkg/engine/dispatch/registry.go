// Package dispatch provides the type-dispatch registry that routes a discriminant
// string to exactly one handler.
//
// The same registry backs two concerns: wiring pluggable pipeline steps and
// enrichers by name at process start, and routing variant values such as the kind
// of an embedded media item at request time.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrDuplicateRegistration is returned when a discriminant or alias is registered twice.
	ErrDuplicateRegistration = errors.New("duplicate registration")
	// ErrHandlerNotFound matches every *NotFoundError.
	ErrHandlerNotFound = errors.New("handler not found")
)

// NotFoundError names the discriminant that has no handler.
type NotFoundError struct {
	Registry     string
	Discriminant string
}

func (e *NotFoundError) Error() string {
	if e.Registry == "" {
		return fmt.Sprintf("handler not found for %q", e.Discriminant)
	}
	return fmt.Sprintf("%s: handler not found for %q", e.Registry, e.Discriminant)
}

// Is makes errors.Is(err, ErrHandlerNotFound) true.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrHandlerNotFound
}

// Handler processes a payload routed by discriminant.
type Handler[P, R any] func(ctx context.Context, payload P) (R, error)

// Registry maps discriminants (and their aliases) to handlers. It is safe for
// concurrent use; registration normally happens once at startup.
type Registry[P, R any] struct {
	name     string
	mu       sync.RWMutex
	handlers map[string]Handler[P, R]
	aliases  map[string]string
}

// NewRegistry creates an empty registry. name only appears in error messages.
func NewRegistry[P, R any](name string) *Registry[P, R] {
	return &Registry[P, R]{
		name:     name,
		handlers: make(map[string]Handler[P, R]),
		aliases:  make(map[string]string),
	}
}

// Name returns the registry name.
func (r *Registry[P, R]) Name() string { return r.name }

// Register stores handler under discriminant. Registering a discriminant that is
// already known, as a handler or as an alias, fails with ErrDuplicateRegistration.
func (r *Registry[P, R]) Register(discriminant string, handler Handler[P, R]) error {
	key := normalize(discriminant)
	if key == "" {
		return fmt.Errorf("%s: discriminant must not be empty", r.name)
	}
	if handler == nil {
		return fmt.Errorf("%s: handler for %q must not be nil", r.name, discriminant)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.taken(key) {
		return fmt.Errorf("%s: %w for %q", r.name, ErrDuplicateRegistration, discriminant)
	}
	r.handlers[key] = handler
	return nil
}

// MustRegister is Register for startup wiring; it panics on error.
func (r *Registry[P, R]) MustRegister(discriminant string, handler Handler[P, R]) {
	if err := r.Register(discriminant, handler); err != nil {
		panic(err)
	}
}

// RegisterAlias routes alias to the handler of an existing discriminant.
func (r *Registry[P, R]) RegisterAlias(alias, discriminant string) error {
	aliasKey := normalize(alias)
	target := normalize(discriminant)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handlers[target]; !ok {
		return &NotFoundError{Registry: r.name, Discriminant: discriminant}
	}
	if aliasKey == "" || r.taken(aliasKey) {
		return fmt.Errorf("%s: %w for alias %q", r.name, ErrDuplicateRegistration, alias)
	}
	r.aliases[aliasKey] = target
	return nil
}

func (r *Registry[P, R]) taken(key string) bool {
	if _, ok := r.handlers[key]; ok {
		return true
	}
	_, ok := r.aliases[key]
	return ok
}

// Lookup returns the handler for discriminant, following aliases.
func (r *Registry[P, R]) Lookup(discriminant string) (Handler[P, R], bool) {
	key := normalize(discriminant)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if target, ok := r.aliases[key]; ok {
		key = target
	}
	handler, ok := r.handlers[key]
	return handler, ok
}

// Has reports whether discriminant can be dispatched.
func (r *Registry[P, R]) Has(discriminant string) bool {
	_, ok := r.Lookup(discriminant)
	return ok
}

// Dispatch invokes the handler registered for discriminant with payload. An
// unknown discriminant yields a *NotFoundError naming it.
func (r *Registry[P, R]) Dispatch(ctx context.Context, discriminant string, payload P) (R, error) {
	handler, ok := r.Lookup(discriminant)
	if !ok {
		var zero R
		return zero, &NotFoundError{Registry: r.name, Discriminant: discriminant}
	}
	return handler(ctx, payload)
}

// Discriminants returns the registered discriminants (aliases excluded), sorted.
func (r *Registry[P, R]) Discriminants() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered discriminants.
func (r *Registry[P, R]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

func normalize(discriminant string) string {
	return strings.ToLower(strings.TrimSpace(discriminant))
}
