// ABOUTME: GraphSet: an in-memory GraphResolver over preloaded, validated graphs.
// ABOUTME: Projects load every referenced graph up front so run-time resolution never parses.
package engine

import (
	"fmt"
	"sync"
)

// GraphSet resolves graph references from a preloaded map. Safe for
// concurrent use; graphs are immutable once registered.
type GraphSet struct {
	mu     sync.RWMutex
	graphs map[string]*Graph
}

// NewGraphSet creates an empty GraphSet.
func NewGraphSet() *GraphSet {
	return &GraphSet{graphs: make(map[string]*Graph)}
}

// Register adds a graph under a reference, replacing any previous entry.
func (gs *GraphSet) Register(ref string, g *Graph) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.graphs[ref] = g
}

// ResolveGraph returns the graph registered under ref.
func (gs *GraphSet) ResolveGraph(ref string) (*Graph, error) {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	g, ok := gs.graphs[ref]
	if !ok {
		return nil, fmt.Errorf("unknown graph ref %q", ref)
	}
	return g, nil
}

// Refs returns the registered references.
func (gs *GraphSet) Refs() []string {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	refs := make([]string, 0, len(gs.graphs))
	for ref := range gs.graphs {
		refs = append(refs, ref)
	}
	return refs
}

var _ GraphResolver = (*GraphSet)(nil)
