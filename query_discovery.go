package trellis

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/hbollon/go-edlib"
)

// fuzzyThreshold is the minimum Jaro-Winkler similarity for a fuzzy match.
const fuzzyThreshold = 0.8

// ListSymbols returns symbols matching filter, ordered by file and start
// offset. With fuzzy set, filter.Name is matched by similarity instead of
// equality and results are ordered best match first; a name containing the
// query always matches. filter.Offset pages through either ordering.
func (q *QueryBuilder) ListSymbols(filter SymbolFilter, fuzzy bool) ([]SymbolResult, Outcome, error) {
	if filter.File != "" {
		key, err := q.key(filter.File)
		if err != nil {
			return nil, NotFound, err
		}
		filter.File = key
	}
	if !fuzzy || filter.Name == "" {
		syms, err := q.store.ListSymbols(filter)
		if err != nil {
			return nil, NotFound, fmt.Errorf("list symbols: %w", err)
		}
		out := q.symbolResults(syms)
		return out, outcomeOf(len(out)), nil
	}

	name, limit, offset := filter.Name, filter.Limit, filter.Offset
	filter.Name, filter.Limit, filter.Offset = "", 0, 0
	syms, err := q.store.ListSymbols(filter)
	if err != nil {
		return nil, NotFound, fmt.Errorf("list symbols: %w", err)
	}

	var out []SymbolResult
	for _, s := range syms {
		score, ok := fuzzyScore(name, s.Name)
		if !ok {
			continue
		}
		r := q.symbolResult(s)
		r.Score = score
		out = append(out, r)
	}
	slices.SortStableFunc(out, func(a, b SymbolResult) int {
		return cmp.Compare(b.Score, a.Score)
	})
	out = truncate(skip(out, offset), limit)
	return out, outcomeOf(len(out)), nil
}

func fuzzyScore(query, name string) (float64, bool) {
	lq, ln := strings.ToLower(query), strings.ToLower(name)
	if lq == ln {
		return 1, true
	}
	sim, err := edlib.StringsSimilarity(lq, ln, edlib.JaroWinkler)
	if err != nil {
		return 0, false
	}
	score := float64(sim)
	if strings.Contains(ln, lq) {
		score = max(score, fuzzyThreshold)
	}
	return score, score >= fuzzyThreshold
}

// ShowSymbol returns every symbol named name with its file and span.
func (q *QueryBuilder) ShowSymbol(name string) ([]SymbolResult, Outcome, error) {
	syms, err := q.store.SymbolsByName(name)
	if err != nil {
		return nil, NotFound, fmt.Errorf("show symbol %s: %w", name, err)
	}
	out := q.symbolResults(syms)
	return out, outcomeOf(len(out)), nil
}
