package gateway

import (
	"fmt"
	"sort"
	"sync"

	"github.com/allisson/courier/internal/errors"
	messageDomain "github.com/allisson/courier/internal/message/domain"
)

// ErrAdapterNotFound indicates no adapter is registered under the requested name.
var ErrAdapterNotFound = errors.Wrap(errors.ErrNotFound, "gateway adapter not found")

// Registry holds the adapters available to the dispatcher, keyed by gateway name.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates a registry holding the given adapters.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an adapter. Names must be unique.
func (r *Registry) Register(adapter Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := adapter.Name()
	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("gateway adapter %q already registered", name)
	}
	r.adapters[name] = adapter
	return nil
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[name]
	if !ok {
		return nil, errors.Wrapf(ErrAdapterNotFound, "%s", name)
	}
	return a, nil
}

// Names returns the registered gateway names in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// ForChannel returns the adapters serving a channel ordered by name.
func (r *Registry) ForChannel(channel messageDomain.Channel) []Adapter {
	adapters := make([]Adapter, 0)
	for _, name := range r.Names() {
		a, err := r.Get(name)
		if err == nil && a.Channel() == channel {
			adapters = append(adapters, a)
		}
	}
	return adapters
}
