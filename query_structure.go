package trellis

import (
	"bytes"
	"cmp"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/jward/trellis/internal/pathnorm"
	"github.com/jward/trellis/internal/store"
)

// typeKinds are the kinds a structure summary can name as key types.
var typeKinds = map[string]bool{
	"struct":    true,
	"class":     true,
	"trait":     true,
	"interface": true,
	"enum":      true,
	"type":      true,
}

// SymbolNode is a symbol with the declarations nested inside it.
type SymbolNode struct {
	SymbolResult
	Children []*SymbolNode `json:"children,omitempty"`
}

// FileStructure is the declaration tree of one file with a short summary.
type FileStructure struct {
	File  string `json:"file"`
	Lines int    `json:"lines"`
	// Counts is the number of symbols per kind.
	Counts map[string]int `json:"counts"`
	// KeyTypes names the public types with the most methods.
	KeyTypes []string      `json:"key_types,omitempty"`
	Symbols  []*SymbolNode `json:"symbols"`
}

// FileStructure returns the symbols of file as a tree nested by byte range.
// NotFound means the file has no indexed symbols.
func (q *QueryBuilder) FileStructure(file string) (*FileStructure, Outcome, error) {
	key, err := q.key(file)
	if err != nil {
		return nil, NotFound, err
	}
	syms, err := q.store.ListSymbols(SymbolFilter{File: key})
	if err != nil {
		return nil, NotFound, fmt.Errorf("file structure: %w", err)
	}
	fs := &FileStructure{File: key, Counts: map[string]int{}, Symbols: []*SymbolNode{}}
	if content, err := os.ReadFile(pathnorm.Abs(q.root, key)); err == nil {
		fs.Lines = countLines(content)
	}
	if len(syms) == 0 {
		return fs, NotFound, nil
	}

	// Symbols arrive ordered by start, outermost first on ties, so a stack
	// of open ranges is enough to nest them.
	var stack []*SymbolNode
	for _, s := range syms {
		fs.Counts[s.Kind]++
		node := &SymbolNode{SymbolResult: q.symbolResult(s)}
		for len(stack) > 0 {
			top := stack[len(stack)-1].Location
			if top.StartByte <= s.Start && s.End <= top.EndByte {
				break
			}
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			fs.Symbols = append(fs.Symbols, node)
		} else {
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, node)
		}
		stack = append(stack, node)
	}
	fs.KeyTypes = keyTypes(syms)
	return fs, Found, nil
}

// keyTypes lists up to five public types with at least three methods, most
// methods first.
func keyTypes(syms []store.Symbol) []string {
	methods := map[string]int{}
	for _, s := range syms {
		if s.Container != "" && (s.Kind == "method" || s.Kind == "function") {
			methods[s.Container]++
		}
	}
	type counted struct {
		name string
		n    int
	}
	var types []counted
	seen := map[string]bool{}
	for _, s := range syms {
		if !typeKinds[s.Kind] || s.Visibility != "public" || seen[s.Name] || methods[s.Name] < 3 {
			continue
		}
		seen[s.Name] = true
		types = append(types, counted{s.Name, methods[s.Name]})
	}
	slices.SortStableFunc(types, func(a, b counted) int { return cmp.Compare(b.n, a.n) })
	var out []string
	for _, t := range truncate(types, 5) {
		out = append(out, fmt.Sprintf("%s (%d methods)", t.name, t.n))
	}
	return out
}

func countLines(content []byte) int {
	n := bytes.Count(content, []byte{'\n'})
	if len(content) > 0 && content[len(content)-1] != '\n' {
		n++
	}
	return n
}

// DuplicateGroup is a set of declarations whose bodies match once layout
// is ignored.
type DuplicateGroup struct {
	Hash    string         `json:"hash"`
	Count   int            `json:"count"`
	Symbols []SymbolResult `json:"symbols"`
}

// FindDuplicates groups declarations with identical normalized bodies.
// Bodies under a minimum size are never grouped.
func (q *QueryBuilder) FindDuplicates(filter DuplicateFilter) ([]DuplicateGroup, Outcome, error) {
	files := make([]string, 0, len(filter.Files))
	for _, f := range filter.Files {
		key, err := q.key(f)
		if err != nil {
			return nil, NotFound, err
		}
		files = append(files, key)
	}
	filter.Files = files

	groups, err := q.store.DuplicateGroups(filter)
	if err != nil {
		return nil, NotFound, fmt.Errorf("find duplicates: %w", err)
	}
	out := make([]DuplicateGroup, 0, len(groups))
	for _, g := range groups {
		out = append(out, DuplicateGroup{Hash: g.Hash, Count: len(g.Symbols), Symbols: q.symbolResults(g.Symbols)})
	}
	return out, outcomeOf(len(out)), nil
}

// Source returns the lines loc spans, widened by context lines on each side.
// It is empty when the file cannot be read or loc has no line information.
func (q *QueryBuilder) Source(loc Location, context int) string {
	if loc.StartLine < 1 {
		return ""
	}
	content, err := os.ReadFile(pathnorm.Abs(q.root, loc.File))
	if err != nil {
		return ""
	}
	lines := strings.Split(strings.TrimSuffix(string(content), "\n"), "\n")
	first := max(loc.StartLine-max(context, 0), 1)
	last := min(max(loc.EndLine, loc.StartLine)+max(context, 0), len(lines))
	if first > last {
		return ""
	}
	out := make([]string, 0, last-first+1)
	for _, l := range lines[first-1 : last] {
		out = append(out, strings.TrimSuffix(l, "\r"))
	}
	return strings.Join(out, "\n")
}
