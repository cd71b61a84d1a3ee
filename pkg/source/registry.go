package source

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/paperscope/paperscope/pkg/config"
	"github.com/paperscope/paperscope/pkg/models"
)

// Registry holds the registered adapters and routes paper-id lookups by
// id prefix. Registration happens once at startup; lookups are
// concurrent thereafter.
type Registry struct {
	mu       sync.RWMutex
	byName   map[config.SourceName]Adapter
	byPrefix map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:   make(map[config.SourceName]Adapter),
		byPrefix: make(map[string]Adapter),
	}
}

// Register adds an adapter. Registering a duplicate name or prefix is a
// programming error and fails loudly.
func (r *Registry) Register(adapter Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[adapter.Name()]; ok {
		return fmt.Errorf("adapter %q already registered", adapter.Name())
	}
	if _, ok := r.byPrefix[adapter.IDPrefix()]; ok {
		return fmt.Errorf("id prefix %q already registered", adapter.IDPrefix())
	}
	r.byName[adapter.Name()] = adapter
	r.byPrefix[adapter.IDPrefix()] = adapter
	return nil
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name config.SourceName) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.byName[name]
	return adapter, ok
}

// Names returns the registered source names in stable order.
func (r *Registry) Names() []config.SourceName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]config.SourceName, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// GetPaper routes a prefixed paper id (oa-, arxiv-, s2-, pubmed-,
// core-) to the adapter that minted it.
func (r *Registry) GetPaper(ctx context.Context, id string) (*models.Paper, error) {
	r.mu.RLock()
	var match Adapter
	for prefix, adapter := range r.byPrefix {
		if strings.HasPrefix(id, prefix) {
			match = adapter
			break
		}
	}
	r.mu.RUnlock()
	if match == nil {
		return nil, fmt.Errorf("no adapter for paper id %q", id)
	}
	return match.GetPaper(ctx, id)
}
