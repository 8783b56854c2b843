package store

import (
	"cmp"
	"slices"
)

// DuplicateFilter narrows DuplicateGroups. Zero-valued fields do not filter.
type DuplicateFilter struct {
	Kind string
	// Files keeps only groups with at least one member in these files.
	Files []string
	// MinCount is the smallest group reported. Values below 2 mean 2.
	MinCount int
}

// DuplicateGroup is a set of symbols whose bodies hash alike.
type DuplicateGroup struct {
	Hash    string
	Symbols []Symbol
}

// DuplicateGroups returns groups of symbols sharing a body hash, largest
// group first. Members are ordered by file and start offset.
func (s *Store) DuplicateGroups(f DuplicateFilter) ([]DuplicateGroup, error) {
	minCount := max(f.MinCount, 2)
	kindClause, args := "", []any{}
	if f.Kind != "" {
		kindClause = " AND kind = ?"
		args = append(args, f.Kind)
	}
	args = append(args, minCount)
	args = append(args, args[:len(args)-1]...)

	syms, err := s.querySymbols("duplicate groups",
		"SELECT "+symbolColumns+` FROM symbols
		 WHERE body_hash IN (
		   SELECT body_hash FROM symbols
		   WHERE body_hash != ''`+kindClause+`
		   GROUP BY body_hash HAVING COUNT(*) >= ?
		 )`+kindClause+`
		 ORDER BY body_hash, file, start_byte`,
		args...,
	)
	if err != nil {
		return nil, err
	}

	var only map[string]bool
	if len(f.Files) > 0 {
		only = make(map[string]bool, len(f.Files))
		for _, p := range f.Files {
			only[p] = true
		}
	}
	var groups []DuplicateGroup
	for i := 0; i < len(syms); {
		j := i
		for j < len(syms) && syms[j].BodyHash == syms[i].BodyHash {
			j++
		}
		members := syms[i:j:j]
		if only == nil || slices.ContainsFunc(members, func(m Symbol) bool { return only[m.File] }) {
			groups = append(groups, DuplicateGroup{Hash: syms[i].BodyHash, Symbols: members})
		}
		i = j
	}
	slices.SortStableFunc(groups, func(a, b DuplicateGroup) int {
		return cmp.Compare(len(b.Symbols), len(a.Symbols))
	})
	return groups, nil
}
