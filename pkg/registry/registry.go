// Package registry keeps named actions so graphs can be assembled from
// configuration instead of Go code.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
)

// Registry manages the available actions.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]domain.Action
}

// NewRegistry creates a registry holding the given actions.
func NewRegistry(actions ...domain.Action) *Registry {
	r := &Registry{actions: make(map[string]domain.Action, len(actions))}
	for _, a := range actions {
		r.Register(a)
	}
	return r
}

// Register adds an action to the registry.
// If an action with the same name exists, it is overwritten.
func (r *Registry) Register(action domain.Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[action.Name()] = action
}

// Get looks up an action by name.
func (r *Registry) Get(name string) (domain.Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[name]
	return a, ok
}

// Names returns the registered action names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Actions resolves names in order. With no names it returns every
// registered action sorted by name.
func (r *Registry) Actions(names ...string) ([]domain.Action, error) {
	if len(names) == 0 {
		names = r.Names()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Action, 0, len(names))
	for _, name := range names {
		a, ok := r.actions[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownAction, name)
		}
		out = append(out, a)
	}
	return out, nil
}
