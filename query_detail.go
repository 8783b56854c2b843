package trellis

import (
	"fmt"
	"os"

	"github.com/jward/trellis/internal/pathnorm"
	"github.com/jward/trellis/internal/store"
)

// implementingKinds are the kinds FindImplementation reports when no kind is
// requested.
var implementingKinds = map[string]bool{
	"function": true,
	"method":   true,
	"class":    true,
	"struct":   true,
	"impl":     true,
}

// declKeywords introduce a declaration. A cursor on one stands for the
// symbol it declares.
var declKeywords = map[string]bool{
	"fn":        true,
	"function":  true,
	"class":     true,
	"interface": true,
	"enum":      true,
	"struct":    true,
	"impl":      true,
}

// target is what a Position resolves to. sym is nil when the cursor names a
// symbol without sitting on any declaration of it.
type target struct {
	key  string
	name string
	sym  *store.Symbol
}

// resolve maps pos to the symbol under the cursor. A recorded reference at
// the offset wins. Next comes the innermost declaration named by the
// identifier at the offset. On whitespace or a declaration keyword it is the
// innermost declaration covering the offset. Any other identifier resolves
// by name only. The zero target means nothing nameable is there.
func (q *QueryBuilder) resolve(pos Position) (target, error) {
	key, err := q.key(pos.File)
	if err != nil {
		return target{}, err
	}
	content, err := os.ReadFile(pathnorm.Abs(q.root, key))
	if err != nil {
		return target{}, fmt.Errorf("resolve %s: %w", pos, err)
	}
	offset, err := OffsetAt(content, pos.Line, pos.Character)
	if err != nil {
		return target{}, fmt.Errorf("resolve %s: %w", pos, err)
	}
	t := target{key: key}

	ref, err := q.store.ReferenceAt(key, offset)
	if err != nil {
		return target{}, err
	}
	if ref != nil {
		t.name = ref.Name
		return t, nil
	}

	syms, err := q.store.SymbolsAt(key, offset)
	if err != nil {
		return target{}, err
	}
	ident := identifierAt(content, offset)
	if ident != "" {
		for i := range syms {
			if syms[i].Name == ident {
				t.name, t.sym = ident, &syms[i]
				return t, nil
			}
		}
	}
	if ident == "" || declKeywords[ident] {
		if len(syms) > 0 {
			t.name, t.sym = syms[0].Name, &syms[0]
		}
		return t, nil
	}
	t.name = ident
	return t, nil
}

// definitions looks name up in key and its transitive dependencies, then
// across the whole index.
func (q *QueryBuilder) definitions(key, name string) ([]store.Symbol, error) {
	deps, err := q.graph.TransitiveDependencies(key)
	if err != nil {
		return nil, err
	}
	syms, err := q.store.SymbolsInFiles(name, append([]string{key}, deps...))
	if err != nil {
		return nil, err
	}
	if len(syms) > 0 {
		return syms, nil
	}
	return q.store.SymbolsByName(name)
}

// anchor returns the declaration queries should hang off: the symbol under
// the cursor, or the first definition of the name it references.
func (q *QueryBuilder) anchor(t target) (*store.Symbol, error) {
	if t.sym != nil || t.name == "" {
		return t.sym, nil
	}
	defs, err := q.definitions(t.key, t.name)
	if err != nil || len(defs) == 0 {
		return nil, err
	}
	return &defs[0], nil
}

// FindDefinition returns where the symbol at pos is declared. On a
// declaration that is the declaration itself.
func (q *QueryBuilder) FindDefinition(pos Position) ([]SymbolResult, Outcome, error) {
	t, err := q.resolve(pos)
	if err != nil {
		return nil, NotFound, err
	}
	if t.sym != nil {
		return []SymbolResult{q.symbolResult(*t.sym)}, Found, nil
	}
	if t.name == "" {
		return nil, NotFound, nil
	}
	defs, err := q.definitions(t.key, t.name)
	if err != nil {
		return nil, NotFound, fmt.Errorf("find definition: %w", err)
	}
	out := q.symbolResults(defs)
	return out, outcomeOf(len(out)), nil
}

// FindImplementation returns other declarations of the name at pos in the
// declaring file and the files depending on it. kind, when set, replaces the
// default implementing kinds. Without any dependents the whole index is
// searched.
func (q *QueryBuilder) FindImplementation(pos Position, kind string, limit int) ([]SymbolResult, Outcome, error) {
	t, err := q.resolve(pos)
	if err != nil {
		return nil, NotFound, err
	}
	if t.name == "" {
		return nil, NotFound, nil
	}
	decl, err := q.anchor(t)
	if err != nil {
		return nil, NotFound, fmt.Errorf("find implementation: %w", err)
	}
	file, exclude := t.key, ""
	if decl != nil {
		file, exclude = decl.File, decl.ID()
	}

	dependents, err := q.store.GetDependents(file)
	if err != nil {
		return nil, NotFound, fmt.Errorf("find implementation: %w", err)
	}
	var candidates []store.Symbol
	if len(dependents) == 0 {
		candidates, err = q.store.SymbolsByName(t.name)
	} else {
		candidates, err = q.store.SymbolsInFiles(t.name, append(dependents, file))
	}
	if err != nil {
		return nil, NotFound, fmt.Errorf("find implementation: %w", err)
	}

	seen := make(map[string]bool)
	var out []SymbolResult
	for _, s := range candidates {
		id := s.ID()
		if id == exclude || seen[id] {
			continue
		}
		if kind != "" && s.Kind != kind || kind == "" && !implementingKinds[s.Kind] {
			continue
		}
		seen[id] = true
		out = append(out, q.symbolResult(s))
	}
	out = truncate(out, limit)
	return out, outcomeOf(len(out)), nil
}

// FindUsages returns references to the symbol at pos from its declaring file
// and everything that transitively depends on it, skipping the declaration
// itself. When the recorded dependents yield nothing, every reference to the
// name in the index is considered.
func (q *QueryBuilder) FindUsages(pos Position, limit int) ([]Usage, Outcome, error) {
	t, err := q.resolve(pos)
	if err != nil {
		return nil, NotFound, err
	}
	if t.name == "" {
		return nil, NotFound, nil
	}
	decl, err := q.anchor(t)
	if err != nil {
		return nil, NotFound, fmt.Errorf("find usages: %w", err)
	}
	file := t.key
	if decl != nil {
		file = decl.File
	}

	inv, err := q.graph.InvalidationSet(file)
	if err != nil {
		return nil, NotFound, fmt.Errorf("find usages: %w", err)
	}
	refs, err := q.store.ReferencesInFiles(t.name, append([]string{file}, inv...))
	if err != nil {
		return nil, NotFound, fmt.Errorf("find usages: %w", err)
	}
	out := q.usages(refs, decl)
	if len(out) == 0 {
		refs, err = q.store.ReferencesByName(t.name)
		if err != nil {
			return nil, NotFound, fmt.Errorf("find usages: %w", err)
		}
		out = q.usages(refs, decl)
	}
	out = truncate(out, limit)
	return out, outcomeOf(len(out)), nil
}

func (q *QueryBuilder) usages(refs []store.Reference, decl *store.Symbol) []Usage {
	type span struct {
		file       string
		start, end int
	}
	seen := make(map[span]bool)
	var out []Usage
	for _, r := range refs {
		if decl != nil && r.File == decl.File && r.Start >= decl.Start && r.End <= decl.End {
			continue
		}
		k := span{r.File, r.Start, r.End}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, Usage{Name: r.Name, Location: q.location(r.File, r.Start, r.End)})
	}
	return out
}

// identifierAt returns the identifier covering offset, also accepting a
// cursor placed just past its last byte.
func identifierAt(content []byte, offset int) string {
	if offset >= len(content) || !isIdentByte(content[offset]) {
		if offset == 0 || offset > len(content) || !isIdentByte(content[offset-1]) {
			return ""
		}
		offset--
	}
	start, end := offset, offset
	for start > 0 && isIdentByte(content[start-1]) {
		start--
	}
	for end < len(content) && isIdentByte(content[end]) {
		end++
	}
	return string(content[start:end])
}

func isIdentByte(b byte) bool {
	return b == '_' || b == '$' ||
		b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' ||
		b >= 0x80
}
