package scanner

import (
	"context"
	"fmt"

	"AdvisoryScanner/internal/domain"
)

// Collector captures a single feed implementation (NVD, The Hacker News,
// GitHub advisories, etc.).
type Collector interface {
	Name() string
	Collect(ctx context.Context) ([]domain.Item, error)
}

// Registry keeps collectors by name and remembers registration order.
type Registry struct {
	collectors map[string]Collector
	order      []string
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{collectors: map[string]Collector{}}
}

// Register adds or replaces a collector implementation.
func (r *Registry) Register(collector Collector) {
	if r.collectors == nil {
		r.collectors = map[string]Collector{}
	}
	name := collector.Name()
	if _, exists := r.collectors[name]; !exists {
		r.order = append(r.order, name)
	}
	r.collectors[name] = collector
}

// Resolve returns a collector by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Collector, error) {
	if collector, ok := r.collectors[name]; ok {
		return collector, nil
	}
	return nil, fmt.Errorf("collector %s is not registered", name)
}

// Names lists collectors in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
