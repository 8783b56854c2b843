// Package extract turns source files into symbols, references and import
// targets. Each language is an Extractor; the Registry picks one by file
// extension, so adding a language never touches the indexer.
package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Symbol kinds produced by the built-in extractors.
const (
	KindFunction  = "function"
	KindMethod    = "method"
	KindStruct    = "struct"
	KindInterface = "interface"
	KindClass     = "class"
	KindTrait     = "trait"
	KindEnum      = "enum"
	KindType      = "type"
	KindImpl      = "impl"
	KindConst     = "const"
	KindVar       = "var"
	KindModule    = "module"
)

// Symbol is a declaration found in one file.
type Symbol struct {
	Name       string
	Kind       string
	Start      int
	End        int
	Visibility string
	Container  string
}

// Reference is an identifier use that is not itself a declaration.
type Reference struct {
	Name  string
	Start int
	End   int
}

// Import is a raw dependency target as written in the source, before
// resolution to workspace paths.
type Import struct {
	Target string
	Kind   string
}

// Result is everything an Extractor reports for one file.
type Result struct {
	Symbols    []Symbol
	References []Reference
	Imports    []Import
}

// Extractor is the per-language capability consumed by the indexer.
type Extractor interface {
	// Language returns the canonical language name, e.g. "go".
	Language() string
	// Extensions lists the file extensions handled, with leading dots.
	Extensions() []string
	// Extract parses content. path is the workspace key of the file and is
	// used only for error messages and relative lookups.
	Extract(ctx context.Context, path string, content []byte) (*Result, error)
	// Resolve maps one raw import target written in file from to the
	// workspace keys it refers to. Unresolvable external imports yield nil.
	Resolve(from string, imp Import, ws Workspace) []string
}

// ExtractionError reports that a single file could not be parsed. It never
// aborts a build; the file is recorded as a parse failure instead.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Registry maps file extensions to extractors. Later registrations for the
// same extension replace earlier ones, which lets scripted extractors
// override built-in languages.
type Registry struct {
	mu    sync.RWMutex
	byExt map[string]Extractor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string]Extractor)}
}

// DefaultRegistry returns a registry with every built-in tree-sitter extractor.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, ex := range builtinExtractors() {
		r.Register(ex)
	}
	return r
}

// Register adds ex for each of its extensions.
func (r *Registry) Register(ex Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range ex.Extensions() {
		r.byExt[strings.ToLower(ext)] = ex
	}
}

// ForPath returns the extractor for a file path based on its extension.
func (r *Registry) ForPath(path string) (Extractor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ex, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return ex, ok
}

// Languages returns the sorted names of all registered languages.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[string]bool{}
	for _, ex := range r.byExt {
		seen[ex.Language()] = true
	}
	out := make([]string, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Extensions returns every registered extension, sorted.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// ResolvedImport is an import target mapped to a workspace key.
type ResolvedImport struct {
	To   string
	Kind string
}

// ResolveImports resolves every import in res for the file from, dropping
// duplicates. Order follows the source order of the imports.
func ResolveImports(ex Extractor, from string, res *Result, ws Workspace) []ResolvedImport {
	var out []ResolvedImport
	seen := map[ResolvedImport]bool{}
	for _, imp := range res.Imports {
		for _, to := range ex.Resolve(from, imp, ws) {
			ri := ResolvedImport{To: to, Kind: imp.Kind}
			if seen[ri] {
				continue
			}
			seen[ri] = true
			out = append(out, ri)
		}
	}
	return out
}
