package graph

import "github.com/jward/trellis/internal/store"

// StoreEdges adapts a store.Reader to EdgeReader.
type StoreEdges struct {
	Store store.Reader
}

// Dependencies implements EdgeReader.
func (s StoreEdges) Dependencies(path string) ([]string, error) {
	edges, err := s.Store.GetFileDependencies(path)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(edges))
	seen := make(map[string]bool, len(edges))
	for _, e := range edges {
		if seen[e.To] {
			continue
		}
		seen[e.To] = true
		out = append(out, e.To)
	}
	return out, nil
}

// Dependents implements EdgeReader.
func (s StoreEdges) Dependents(path string) ([]string, error) {
	return s.Store.GetDependents(path)
}

// NewForStore returns an Engine over the edges held in r.
func NewForStore(r store.Reader) *Engine {
	return New(StoreEdges{Store: r})
}
