package trigger

import (
	"context"
	"strings"
	"sync"

	"github.com/esino-sf/lightweight-apex-trigger-framework/pkg/sobject"
)

// HandlerSuffix is the reserved suffix of canonical handler names.
const HandlerSuffix = "Handler"

// CanonicalHandlerName normalizes a handler-type reference: a name
// already carrying the suffix resolves as-is, any other name resolves
// as name + suffix. Appending is idempotent.
func CanonicalHandlerName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasSuffix(name, HandlerSuffix) {
		return name
	}
	return name + HandlerSuffix
}

// Factory produces a handler bound to the given batch for one
// invocation. Factories are registered at process start.
type Factory func(tc Context, batch []*sobject.Record) Handler

// Registry maps canonical handler names to factories. It replaces a
// reflection-style lookup with an explicit registration table so
// completeness is checkable at load time.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register installs a factory under the canonical form of name.
// Registering an empty name, a nil factory, or a name twice is a
// configuration error.
func (r *Registry) Register(name string, factory Factory) error {
	canonical := CanonicalHandlerName(name)
	if canonical == "" {
		return NewConfiguration("handler name required")
	}
	if factory == nil {
		return NewConfiguration("handler %q: nil factory", canonical)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[canonical]; ok {
		return NewConfiguration("handler %q already registered", canonical)
	}
	r.factories[canonical] = factory
	return nil
}

// Resolve returns the factory for a handler-type reference, or a
// configuration error when none was registered.
func (r *Registry) Resolve(name string) (Factory, error) {
	canonical := CanonicalHandlerName(name)
	r.mu.RLock()
	factory, ok := r.factories[canonical]
	r.mu.RUnlock()
	if !ok {
		return nil, NewConfiguration("no factory registered for handler %q", canonical)
	}
	return factory, nil
}

// Dispatch routes one lifecycle event: it selects the source batch,
// constructs the handler through the resolved factory, and invokes the
// single phase entry point matching the event flags. A flag combination
// that names no phase dispatches nothing and is not an error.
func (r *Registry) Dispatch(ctx context.Context, handlerName string, tc Context) error {
	ph, ok := tc.eventPhase()
	if !ok {
		return nil
	}

	factory, err := r.Resolve(handlerName)
	if err != nil {
		return err
	}
	h := factory(tc, tc.sourceBatch())
	if h == nil {
		return NewConfiguration("handler %q: factory returned nil", CanonicalHandlerName(handlerName))
	}

	switch ph {
	case phaseBeforeInsert:
		return h.HandleBeforeInsert(ctx)
	case phaseBeforeUpdate:
		return h.HandleBeforeUpdate(ctx)
	case phaseBeforeDelete:
		return h.HandleBeforeDelete(ctx)
	case phaseAfterInsert:
		return h.HandleAfterInsert(ctx)
	case phaseAfterUpdate:
		return h.HandleAfterUpdate(ctx)
	case phaseAfterDelete:
		return h.HandleAfterDelete(ctx)
	case phaseAfterUndelete:
		return h.HandleAfterUndelete(ctx)
	}
	return nil
}
