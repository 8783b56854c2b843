// Package graph answers reachability questions over the dependency edges held
// in the index. It keeps no state of its own: every call reads the current
// edges through an EdgeReader.
package graph

import (
	"fmt"
)

// EdgeReader is the slice of the store the graph engine needs.
type EdgeReader interface {
	// Dependencies returns the direct targets of path's outgoing edges.
	Dependencies(path string) ([]string, error)
	// Dependents returns the files with an edge targeting path.
	Dependents(path string) ([]string, error)
}

// Engine computes transitive closures over an EdgeReader.
type Engine struct {
	edges EdgeReader
}

// New returns an Engine reading edges from r.
func New(r EdgeReader) *Engine {
	return &Engine{edges: r}
}

// TransitiveDependencies returns every file reachable from path by following
// outgoing edges, in breadth-first discovery order. path itself is never
// included, even when a cycle leads back to it. Targets that are not indexed
// have no outgoing edges and end their branch.
func (g *Engine) TransitiveDependencies(path string) ([]string, error) {
	out, err := walk(path, g.edges.Dependencies)
	if err != nil {
		return nil, fmt.Errorf("transitive dependencies of %s: %w", path, err)
	}
	return out, nil
}

// InvalidationSet returns every file that transitively depends on path: the
// files that must be reconsidered when path changes. path is excluded.
func (g *Engine) InvalidationSet(path string) ([]string, error) {
	out, err := walk(path, g.edges.Dependents)
	if err != nil {
		return nil, fmt.Errorf("invalidation set of %s: %w", path, err)
	}
	return out, nil
}

// walk is a breadth-first traversal with a visited set, so cycles terminate
// and the work is bounded by the number of distinct files.
func walk(start string, next func(string) ([]string, error)) ([]string, error) {
	visited := map[string]bool{start: true}
	queue := []string{start}
	var order []string

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		neighbors, err := next(current)
		if err != nil {
			return nil, err
		}
		for _, n := range neighbors {
			if n == current || visited[n] {
				continue
			}
			visited[n] = true
			order = append(order, n)
			queue = append(queue, n)
		}
	}
	return order, nil
}
