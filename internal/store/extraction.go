package store

import (
	"database/sql"
	"strings"
)

// --- Files ---

const fileColumns = "path, language, hash, parse_ok, parse_error, last_indexed"

func scanFile(scanner interface{ Scan(...any) error }) (*File, error) {
	f := &File{}
	err := scanner.Scan(&f.Path, &f.Language, &f.Hash, &f.ParseOK, &f.ParseError, &f.LastIndexed)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// FileByPath returns the file record for path, or nil if it is not indexed.
func (s *Store) FileByPath(path string) (*File, error) {
	row := s.db.QueryRow("SELECT "+fileColumns+" FROM files WHERE path = ?", path)
	f, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "file by path", Path: path, Err: err}
	}
	return f, nil
}

// AllFiles returns every indexed file ordered by path.
func (s *Store) AllFiles() ([]*File, error) {
	rows, err := s.db.Query("SELECT " + fileColumns + " FROM files ORDER BY path")
	if err != nil {
		return nil, &StorageError{Op: "all files", Err: err}
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, &StorageError{Op: "scan file", Err: err}
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "all files", Err: err}
	}
	return files, nil
}

// --- Symbols ---

const symbolColumns = "file, name, kind, start_byte, end_byte, visibility, container, body_hash"

func scanSymbol(scanner interface{ Scan(...any) error }) (Symbol, error) {
	var sym Symbol
	err := scanner.Scan(&sym.File, &sym.Name, &sym.Kind, &sym.Start, &sym.End, &sym.Visibility, &sym.Container, &sym.BodyHash)
	return sym, err
}

func (s *Store) querySymbols(op, query string, args ...any) ([]Symbol, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, &StorageError{Op: op, Err: err}
	}
	defer rows.Close()
	var syms []Symbol
	for rows.Next() {
		sym, err := scanSymbol(rows)
		if err != nil {
			return nil, &StorageError{Op: op + ": scan", Err: err}
		}
		syms = append(syms, sym)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: op, Err: err}
	}
	return syms, nil
}

// ListSymbols returns symbols matching every non-empty field of f, ordered by
// file and then start offset. A zero Limit means no limit; Offset skips
// matches for paging.
func (s *Store) ListSymbols(f SymbolFilter) ([]Symbol, error) {
	var (
		where []string
		args  []any
	)
	if f.Name != "" {
		where = append(where, "name = ?")
		args = append(args, f.Name)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}
	if f.File != "" {
		where = append(where, "file = ?")
		args = append(args, f.File)
	}

	q := "SELECT " + symbolColumns + " FROM symbols"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY file, start_byte, end_byte DESC, id"
	switch {
	case f.Limit > 0:
		q += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, max(f.Offset, 0))
	case f.Offset > 0:
		q += " LIMIT -1 OFFSET ?"
		args = append(args, f.Offset)
	}
	return s.querySymbols("list symbols", q, args...)
}

// SymbolsAt returns the symbols in path whose range contains offset,
// innermost (smallest span) first.
func (s *Store) SymbolsAt(path string, offset int) ([]Symbol, error) {
	return s.querySymbols("symbols at",
		"SELECT "+symbolColumns+` FROM symbols
		 WHERE file = ? AND start_byte <= ? AND end_byte >= ?
		 ORDER BY (end_byte - start_byte), start_byte DESC`,
		path, offset, offset,
	)
}

// SymbolsByName returns every symbol named name across the index.
func (s *Store) SymbolsByName(name string) ([]Symbol, error) {
	return s.querySymbols("symbols by name",
		"SELECT "+symbolColumns+" FROM symbols WHERE name = ? ORDER BY file, start_byte",
		name,
	)
}

// SymbolsInFiles returns symbols named name that live in one of files.
func (s *Store) SymbolsInFiles(name string, files []string) ([]Symbol, error) {
	if len(files) == 0 {
		return nil, nil
	}
	args := append([]any{name}, stringsToArgs(files)...)
	return s.querySymbols("symbols in files",
		"SELECT "+symbolColumns+" FROM symbols WHERE name = ? AND file IN ("+placeholderList(len(files))+
			") ORDER BY file, start_byte",
		args...,
	)
}

// --- References ---

func (s *Store) queryReferences(op, query string, args ...any) ([]Reference, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, &StorageError{Op: op, Err: err}
	}
	defer rows.Close()
	var refs []Reference
	for rows.Next() {
		var r Reference
		if err := rows.Scan(&r.File, &r.Name, &r.Start, &r.End); err != nil {
			return nil, &StorageError{Op: op + ": scan", Err: err}
		}
		refs = append(refs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: op, Err: err}
	}
	return refs, nil
}

// ReferenceAt returns the reference in path covering offset, or nil.
func (s *Store) ReferenceAt(path string, offset int) (*Reference, error) {
	refs, err := s.queryReferences("reference at",
		`SELECT file, name, start_byte, end_byte FROM refs
		 WHERE file = ? AND start_byte <= ? AND end_byte >= ?
		 ORDER BY (end_byte - start_byte) LIMIT 1`,
		path, offset, offset,
	)
	if err != nil || len(refs) == 0 {
		return nil, err
	}
	return &refs[0], nil
}

// ReferencesInFiles returns references to name recorded in any of files,
// ordered by file and offset.
func (s *Store) ReferencesInFiles(name string, files []string) ([]Reference, error) {
	if len(files) == 0 {
		return nil, nil
	}
	args := append([]any{name}, stringsToArgs(files)...)
	return s.queryReferences("references in files",
		"SELECT file, name, start_byte, end_byte FROM refs WHERE name = ? AND file IN ("+
			placeholderList(len(files))+") ORDER BY file, start_byte",
		args...,
	)
}

// ReferencesByName returns every reference to name across the index.
func (s *Store) ReferencesByName(name string) ([]Reference, error) {
	return s.queryReferences("references by name",
		"SELECT file, name, start_byte, end_byte FROM refs WHERE name = ? ORDER BY file, start_byte",
		name,
	)
}
