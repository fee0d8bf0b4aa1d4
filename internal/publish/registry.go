package publish

import (
	"fmt"
	"sort"
	"sync"

	"github.com/LeventeLantos/outreach-scheduler/internal/apperrors"
)

type Registry struct {
	mu         sync.RWMutex
	publishers map[string]Publisher
}

func NewRegistry(publishers ...Publisher) *Registry {
	r := &Registry{publishers: make(map[string]Publisher)}
	for _, p := range publishers {
		r.Register(p)
	}
	return r
}

func (r *Registry) Register(p Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishers[p.Provider()] = p
}

// Lookup fails closed: an unknown provider is an Unsupported error naming
// the provider.
func (r *Registry) Lookup(provider string) (Publisher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.publishers[provider]
	if !ok {
		return nil, apperrors.Unsupported(fmt.Sprintf("Provider %s not supported yet", provider))
	}
	return p, nil
}

func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.publishers))
	for name := range r.publishers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
