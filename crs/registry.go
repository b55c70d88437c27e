package crs

import (
	"fmt"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"golang.org/x/exp/maps"
)

type pair struct {
	from, to Identifier
}

// Registry holds the projections a load may use. It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	projections map[pair]orb.Projection
}

// NewRegistry returns an empty registry. Identity projections need no registration.
func NewRegistry() *Registry {
	return &Registry{projections: make(map[pair]orb.Projection)}
}

// NewDefaultRegistry returns a registry knowing web mercator <-> WGS84.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(WebMercator, WGS84, project.Mercator.ToWGS84)
	r.Register(WGS84, WebMercator, project.WGS84.ToMercator)
	return r
}

// Register adds (or replaces) the projection from one CRS to another.
func (r *Registry) Register(from, to Identifier, p orb.Projection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projections[pair{canonical(from), canonical(to)}] = p
}

// Projection returns the projection from one CRS to another. A nil projection
// with a nil error means both identifiers denote the same CRS.
func (r *Registry) Projection(from, to Identifier) (orb.Projection, error) {
	from, to = canonical(from), canonical(to)
	if from == to {
		return nil, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projections[pair{from, to}]
	if !ok {
		return nil, fmt.Errorf("%w: %s to %s", ErrNoTransform, from, to)
	}
	return p, nil
}

// Pairs lists the registered transforms as "FROM -> TO", sorted.
func (r *Registry) Pairs() []string {
	r.mu.RLock()
	keys := maps.Keys(r.projections)
	r.mu.RUnlock()

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k.from.String() + " -> " + k.to.String()
	}
	sort.Strings(pairs)
	return pairs
}
