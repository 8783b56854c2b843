package store

import (
	"os"
	"time"
)

// GetIndexStats recomputes index metadata from the stored rows.
func (s *Store) GetIndexStats() (*Stats, error) {
	st := &Stats{
		Files:         FileStats{ByLanguage: map[string]int{}},
		Symbols:       SymbolStats{ByKind: map[string]int{}},
		ParseFailures: []ParseFailure{},
		Index:         IndexInfo{Path: s.path},
	}

	if err := s.countBy("SELECT language, COUNT(*) FROM files GROUP BY language", st.Files.ByLanguage); err != nil {
		return nil, err
	}
	for _, n := range st.Files.ByLanguage {
		st.Files.Total += n
	}
	if err := s.countBy("SELECT kind, COUNT(*) FROM symbols GROUP BY kind", st.Symbols.ByKind); err != nil {
		return nil, err
	}
	for _, n := range st.Symbols.ByKind {
		st.Symbols.Total += n
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM edges").Scan(&st.Edges); err != nil {
		return nil, &StorageError{Op: "count edges", Err: err}
	}

	rows, err := s.db.Query("SELECT path, parse_error FROM files WHERE NOT parse_ok ORDER BY path")
	if err != nil {
		return nil, &StorageError{Op: "parse failures", Err: err}
	}
	defer rows.Close()
	for rows.Next() {
		var pf ParseFailure
		if err := rows.Scan(&pf.Path, &pf.Reason); err != nil {
			return nil, &StorageError{Op: "scan parse failure", Err: err}
		}
		st.ParseFailures = append(st.ParseFailures, pf)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "parse failures", Err: err}
	}

	if v, err := s.SchemaVersion(); err == nil {
		st.Index.SchemaVersion = v
	}
	if raw, err := s.meta("last_updated"); err == nil && raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			st.Index.LastUpdated = &ts
		}
	}
	for _, p := range []string{s.path, s.path + "-wal"} {
		if info, err := os.Stat(p); err == nil {
			st.Index.SizeBytes += info.Size()
		}
	}
	return st, nil
}

func (s *Store) countBy(query string, into map[string]int) error {
	rows, err := s.db.Query(query)
	if err != nil {
		return &StorageError{Op: "stats", Err: err}
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return &StorageError{Op: "stats: scan", Err: err}
		}
		into[key] = n
	}
	return rows.Err()
}
