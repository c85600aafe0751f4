package health

import (
	"context"
	"sync"
)

// CheckFunc probes one component and reports its status.
type CheckFunc func(ctx context.Context) Status

// Registry holds named health checks and produces an aggregated snapshot on
// demand. Checks run synchronously at snapshot time; they should be cheap
// (cache sizes, connection state), never remote calls.
type Registry struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc
	order  []string
}

// NewRegistry creates an empty check registry.
func NewRegistry() *Registry {
	return &Registry{checks: make(map[string]CheckFunc)}
}

// Register adds a check under a component name. Re-registering a name
// replaces the previous check.
func (r *Registry) Register(component string, check CheckFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.checks[component]; !exists {
		r.order = append(r.order, component)
	}
	r.checks[component] = check
}

// Snapshot runs every check and aggregates the results in registration
// order.
func (r *Registry) Snapshot(ctx context.Context) Status {
	r.mu.RLock()
	order := make([]string, len(r.order))
	copy(order, r.order)
	checks := make(map[string]CheckFunc, len(r.checks))
	for name, check := range r.checks {
		checks[name] = check
	}
	r.mu.RUnlock()

	subs := make([]Status, 0, len(order))
	for _, name := range order {
		subs = append(subs, checks[name](ctx))
	}
	return Aggregate("gateway", subs)
}
