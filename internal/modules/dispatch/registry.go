package dispatch

import (
	"context"
	"sort"
	"sync"
)

// Registry hands out one Engine per driver, created on first use.
type Registry struct {
	mu      sync.Mutex
	engines map[string]*Engine
	factory func(driverID string) *Engine
}

func NewRegistry(factory func(driverID string) *Engine) *Registry {
	return &Registry{engines: make(map[string]*Engine), factory: factory}
}

// Get returns the driver's engine. A new engine restores saved settings
// first; when that fails nothing is cached and the error is returned, so the
// next call retries instead of overwriting the snapshot with defaults.
func (r *Registry) Get(ctx context.Context, driverID string) (*Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.engines[driverID]; ok {
		return e, nil
	}
	e := r.factory(driverID)
	if err := e.Restore(ctx); err != nil {
		e.logger.Error("failed to restore dispatch settings", "error", err)
		return nil, err
	}
	r.engines[driverID] = e
	return e, nil
}

func (r *Registry) Drivers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.engines))
	for id := range r.engines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close waits for every engine's in-flight pushes.
func (r *Registry) Close() {
	r.mu.Lock()
	engines := make([]*Engine, 0, len(r.engines))
	for _, e := range r.engines {
		engines = append(engines, e)
	}
	r.mu.Unlock()
	for _, e := range engines {
		e.Close()
	}
}
