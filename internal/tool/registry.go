package tool

import (
	"fmt"
	"slices"
	"sync"

	"github.com/jackzampolin/toolrun/internal/toolerr"
)

// Registry is the dispatch table from kind to implementation.
type Registry struct {
	mu    sync.RWMutex
	tools map[Kind]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[Kind]Tool)}
}

// Register installs t as the implementation for kind, replacing any previous one.
func (r *Registry) Register(kind Kind, t Tool) error {
	if !kind.Valid() {
		return fmt.Errorf("register %q: %w", kind, ErrUnknownKind)
	}
	if t == nil {
		return fmt.Errorf("register %q: nil tool", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[kind] = t
	return nil
}

// Lookup returns the implementation for kind, or a ToolNotFound error.
func (r *Registry) Lookup(kind Kind) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[kind]
	if !ok {
		return nil, toolerr.NewToolNotFound(string(kind))
	}
	return t, nil
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]Kind, 0, len(r.tools))
	for k := range r.tools {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}
