package store

// GetFileDependencies returns the direct outgoing edges of path ordered by
// target. Unknown paths and leaves yield an empty slice.
func (s *Store) GetFileDependencies(path string) ([]Edge, error) {
	rows, err := s.db.Query(
		"SELECT from_file, to_file, kind FROM edges WHERE from_file = ? ORDER BY to_file, kind", path,
	)
	if err != nil {
		return nil, &StorageError{Op: "file dependencies", Path: path, Err: err}
	}
	defer rows.Close()
	var edges []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.From, &e.To, &e.Kind); err != nil {
			return nil, &StorageError{Op: "scan edge", Path: path, Err: err}
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "file dependencies", Path: path, Err: err}
	}
	return edges, nil
}

// GetDependents returns the distinct files with an edge targeting path,
// ordered by path.
func (s *Store) GetDependents(path string) ([]string, error) {
	rows, err := s.db.Query(
		"SELECT DISTINCT from_file FROM edges WHERE to_file = ? ORDER BY from_file", path,
	)
	if err != nil {
		return nil, &StorageError{Op: "dependents", Path: path, Err: err}
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var from string
		if err := rows.Scan(&from); err != nil {
			return nil, &StorageError{Op: "scan dependent", Path: path, Err: err}
		}
		out = append(out, from)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "dependents", Path: path, Err: err}
	}
	return out, nil
}
