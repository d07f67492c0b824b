package sources

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	factories = make(map[string]SourceFactory)
	mu        sync.RWMutex
)

// Register adds a source factory to the registry
func Register(name string, factory SourceFactory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = factory
}

// Create creates a new source instance by name
func Create(sourceType, name string, config map[string]interface{}) (Source, error) {
	mu.RLock()
	defer mu.RUnlock()

	key := fmt.Sprintf("%s.%s", sourceType, name)
	factory, ok := factories[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSourceFactory, key)
	}

	return factory(config)
}

// List returns all registered factory keys
func List() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Health is a snapshot of one source's state.
type Health struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Region      Region `json:"region"`
	Healthy     bool   `json:"healthy"`
	Symbols     int    `json:"symbols"`
}

// Registry is the fixed, ordered set of configured sources. It is built
// once at startup and read concurrently afterwards without locking.
type Registry struct {
	sources []Source
	byName  map[string]Source
}

// NewRegistry builds a registry preserving the given order. Names are
// matched case-insensitively and must be unique.
func NewRegistry(list ...Source) (*Registry, error) {
	r := &Registry{
		sources: make([]Source, 0, len(list)),
		byName:  make(map[string]Source, len(list)),
	}
	for _, s := range list {
		key := strings.ToLower(s.Name())
		if _, exists := r.byName[key]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSource, s.Name())
		}
		r.byName[key] = s
		r.sources = append(r.sources, s)
	}
	return r, nil
}

// All returns every source in registration order.
func (r *Registry) All() []Source {
	out := make([]Source, len(r.sources))
	copy(out, r.sources)
	return out
}

// Len returns the number of sources.
func (r *Registry) Len() int {
	return len(r.sources)
}

// Get looks a source up by name, case-insensitively.
func (r *Registry) Get(name string) (Source, bool) {
	s, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return s, ok
}

// ByRegion returns the sources of one region in registration order.
func (r *Registry) ByRegion(region Region) []Source {
	var out []Source
	for _, s := range r.sources {
		if s.Region() == region {
			out = append(out, s)
		}
	}
	return out
}

// Healthy returns the sources currently flagged healthy.
func (r *Registry) Healthy() []Source {
	var out []Source
	for _, s := range r.sources {
		if s.IsHealthy() {
			out = append(out, s)
		}
	}
	return out
}

// Names returns source names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.sources))
	for i, s := range r.sources {
		names[i] = s.Name()
	}
	return names
}

// IndexOf returns the registration position of a source, or -1.
func (r *Registry) IndexOf(name string) int {
	for i, s := range r.sources {
		if strings.EqualFold(s.Name(), name) {
			return i
		}
	}
	return -1
}

// SupportedSymbols returns the sorted union of every source's symbols.
func (r *Registry) SupportedSymbols() []string {
	seen := make(map[string]struct{})
	for _, s := range r.sources {
		for _, sym := range s.Symbols() {
			seen[sym] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for sym := range seen {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Health returns a health snapshot for every source.
func (r *Registry) Health() []Health {
	out := make([]Health, len(r.sources))
	for i, s := range r.sources {
		out[i] = Health{
			Name:        s.Name(),
			DisplayName: s.DisplayName(),
			Region:      s.Region(),
			Healthy:     s.IsHealthy(),
			Symbols:     len(s.Symbols()),
		}
	}
	return out
}
