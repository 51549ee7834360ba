// Package resources describes the Vultr resource kinds vultrsync can reconcile.
package resources

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dokzlo13/vultrsync/internal/reconcile"
)

// ErrUnknownKind is returned by Lookup for unregistered kinds.
var ErrUnknownKind = errors.New("unknown resource kind")

// Registry holds resource descriptors keyed by kind.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]*reconcile.Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		kinds: make(map[string]*reconcile.Descriptor),
	}
}

// Default returns a registry with every built-in kind.
func Default() *Registry {
	r := NewRegistry()
	for _, d := range builtin() {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

func builtin() []*reconcile.Descriptor {
	return []*reconcile.Descriptor{
		DNSDomain(),
		StartupScript(),
		SSHKey(),
		BlockStorage(),
		LoadBalancer(),
		FirewallGroup(),
	}
}

// Register validates and adds a descriptor.
func (r *Registry) Register(d *reconcile.Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.kinds[d.Kind]; exists {
		return fmt.Errorf("resource kind %q already registered", d.Kind)
	}

	r.kinds[d.Kind] = d
	return nil
}

// Lookup retrieves a descriptor by kind.
func (r *Registry) Lookup(kind string) (*reconcile.Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.kinds[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return d, nil
}

// Kinds returns all registered kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.kinds))
	for kind := range r.kinds {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
