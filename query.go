package trellis

import (
	"fmt"
	"os"
	"sync"

	"github.com/jward/trellis/internal/graph"
	"github.com/jward/trellis/internal/pathnorm"
	"github.com/jward/trellis/internal/store"
)

// Outcome tells a caller whether a query produced anything. It is separate
// from the error: an empty answer is a valid NotFound result.
type Outcome int

const (
	NotFound Outcome = iota
	Found
)

func (o Outcome) String() string {
	if o == Found {
		return "found"
	}
	return "not_found"
}

func outcomeOf(n int) Outcome {
	if n > 0 {
		return Found
	}
	return NotFound
}

// QueryBuilder answers read-only questions over the index. Safe for
// concurrent use.
type QueryBuilder struct {
	root  string
	store store.Reader
	graph *graph.Engine

	mu    sync.Mutex
	lines map[string]cachedLines
}

// cachedLines is a line index valid while the stored hash stays the same.
type cachedLines struct {
	hash string
	li   *lineIndex
}

// NewQueryBuilder returns a QueryBuilder over r for the workspace at root,
// for callers that open a store without an Engine.
func NewQueryBuilder(root string, r store.Reader) *QueryBuilder {
	return &QueryBuilder{root: root, store: r, graph: graph.NewForStore(r)}
}

// Location is a span in a file, as byte offsets and as 1-based line and
// character. Line fields are zero when the file cannot be read.
type Location struct {
	File      string `json:"file"`
	StartLine int    `json:"start_line"`
	StartCol  int    `json:"start_character"`
	EndLine   int    `json:"end_line"`
	EndCol    int    `json:"end_character"`
	StartByte int    `json:"start_byte"`
	EndByte   int    `json:"end_byte"`
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.StartLine, l.StartCol)
}

// SymbolResult is a symbol with its resolved location.
type SymbolResult struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Kind       string   `json:"kind"`
	Visibility string   `json:"visibility,omitempty"`
	Container  string   `json:"container,omitempty"`
	Location   Location `json:"location"`
	// Score is the fuzzy similarity to the query, when fuzzy matching.
	Score float64 `json:"score,omitempty"`
	// Source is the declaration's text, when requested.
	Source string `json:"source,omitempty"`
}

// Usage is one reference site.
type Usage struct {
	Name     string   `json:"name"`
	Location Location `json:"location"`
	Source   string   `json:"source,omitempty"`
}

func (q *QueryBuilder) key(file string) (string, error) {
	return pathnorm.Normalize(q.root, file)
}

// location converts a byte span in key into a Location. Line tables are
// cached per file and rebuilt once the file is re-indexed.
func (q *QueryBuilder) location(key string, start, end int) Location {
	loc := Location{File: key, StartByte: start, EndByte: end}
	li := q.lineIndexFor(key)
	if li == nil {
		return loc
	}
	loc.StartLine, loc.StartCol = li.position(start)
	loc.EndLine, loc.EndCol = li.position(end)
	return loc
}

func (q *QueryBuilder) lineIndexFor(key string) *lineIndex {
	var hash string
	if f, err := q.store.FileByPath(key); err == nil && f != nil {
		hash = f.Hash
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if c, ok := q.lines[key]; ok && hash != "" && c.hash == hash {
		return c.li
	}
	content, err := os.ReadFile(pathnorm.Abs(q.root, key))
	if err != nil {
		return nil
	}
	li := newLineIndex(content)
	if hash != "" {
		if q.lines == nil {
			q.lines = make(map[string]cachedLines)
		}
		q.lines[key] = cachedLines{hash: hash, li: li}
	}
	return li
}

func (q *QueryBuilder) symbolResult(s store.Symbol) SymbolResult {
	return SymbolResult{
		ID:         s.ID(),
		Name:       s.Name,
		Kind:       s.Kind,
		Visibility: s.Visibility,
		Container:  s.Container,
		Location:   q.location(s.File, s.Start, s.End),
	}
}

func (q *QueryBuilder) symbolResults(syms []store.Symbol) []SymbolResult {
	out := make([]SymbolResult, 0, len(syms))
	for _, s := range syms {
		out = append(out, q.symbolResult(s))
	}
	return out
}

// FindIncludes returns the files file depends on: direct edge targets, or
// the full forward closure when transitive. Dangling targets are included.
// limit > 0 truncates the complete answer.
func (q *QueryBuilder) FindIncludes(file string, transitive bool, limit int) ([]string, Outcome, error) {
	key, err := q.key(file)
	if err != nil {
		return nil, NotFound, err
	}
	var out []string
	if transitive {
		out, err = q.graph.TransitiveDependencies(key)
	} else {
		out, err = graph.StoreEdges{Store: q.store}.Dependencies(key)
	}
	if err != nil {
		return nil, NotFound, fmt.Errorf("find includes: %w", err)
	}
	out = truncate(withoutSelf(out, key), limit)
	return out, outcomeOf(len(out)), nil
}

// FindIncluders returns the files depending on file: direct dependents, or
// the invalidation set when transitive. limit > 0 truncates.
func (q *QueryBuilder) FindIncluders(file string, transitive bool, limit int) ([]string, Outcome, error) {
	key, err := q.key(file)
	if err != nil {
		return nil, NotFound, err
	}
	var out []string
	if transitive {
		out, err = q.graph.InvalidationSet(key)
	} else {
		out, err = q.store.GetDependents(key)
	}
	if err != nil {
		return nil, NotFound, fmt.Errorf("find includers: %w", err)
	}
	out = truncate(withoutSelf(out, key), limit)
	return out, outcomeOf(len(out)), nil
}

// Stats returns index statistics recomputed from the store.
func (q *QueryBuilder) Stats() (*Stats, error) {
	st, err := q.store.GetIndexStats()
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

func withoutSelf(paths []string, self string) []string {
	out := paths[:0:0]
	for _, p := range paths {
		if p != self {
			out = append(out, p)
		}
	}
	return out
}

func skip[T any](items []T, offset int) []T {
	if offset <= 0 {
		return items
	}
	if offset >= len(items) {
		return nil
	}
	return items[offset:]
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
