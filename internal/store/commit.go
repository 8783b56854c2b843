package store

import (
	"database/sql"
	"fmt"
	"time"
)

// UpsertFile replaces the file record for fi.File.Path together with all of
// its symbols, references and outgoing edges in a single transaction. Readers
// see either the previous FileIndex or the new one, never a mix.
func (s *Store) UpsertFile(fi FileIndex) error {
	path := fi.File.Path
	tx, err := s.db.Begin()
	if err != nil {
		return &StorageError{Op: "upsert: begin", Path: path, Err: err}
	}
	defer tx.Rollback()

	if err := deleteFileRowsTx(tx, path); err != nil {
		return &StorageError{Op: "upsert: clear", Path: path, Err: err}
	}

	lastIndexed := fi.File.LastIndexed
	if lastIndexed.IsZero() {
		lastIndexed = time.Now()
	}
	_, err = tx.Exec(
		`INSERT INTO files (path, language, hash, parse_ok, parse_error, last_indexed)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
		   language = excluded.language,
		   hash = excluded.hash,
		   parse_ok = excluded.parse_ok,
		   parse_error = excluded.parse_error,
		   last_indexed = excluded.last_indexed`,
		path, fi.File.Language, fi.File.Hash, fi.File.ParseOK, fi.File.ParseError, lastIndexed,
	)
	if err != nil {
		return &StorageError{Op: "upsert: file", Path: path, Err: err}
	}

	for _, sym := range fi.Symbols {
		if err := insertSymbolTx(tx, path, sym); err != nil {
			return &StorageError{Op: fmt.Sprintf("upsert: symbol %q", sym.Name), Path: path, Err: err}
		}
	}
	for _, ref := range fi.References {
		if err := insertReferenceTx(tx, path, ref); err != nil {
			return &StorageError{Op: fmt.Sprintf("upsert: reference %q", ref.Name), Path: path, Err: err}
		}
	}
	for _, e := range fi.Edges {
		if err := insertEdgeTx(tx, path, e); err != nil {
			return &StorageError{Op: "upsert: edge to " + e.To, Path: path, Err: err}
		}
	}
	if err := touchTx(tx, lastIndexed); err != nil {
		return &StorageError{Op: "upsert: meta", Path: path, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "upsert: commit", Path: path, Err: err}
	}
	return nil
}

// RemoveFile deletes the file record with its symbols, references and
// outgoing edges. Edges from other files that point at path are kept and
// become dangling. Removing an unknown path is a no-op.
func (s *Store) RemoveFile(path string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return &StorageError{Op: "remove: begin", Path: path, Err: err}
	}
	defer tx.Rollback()

	if err := deleteFileRowsTx(tx, path); err != nil {
		return &StorageError{Op: "remove", Path: path, Err: err}
	}
	if _, err := tx.Exec("DELETE FROM files WHERE path = ?", path); err != nil {
		return &StorageError{Op: "remove: file", Path: path, Err: err}
	}
	if err := touchTx(tx, time.Now()); err != nil {
		return &StorageError{Op: "remove: meta", Path: path, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "remove: commit", Path: path, Err: err}
	}
	return nil
}

// deleteFileRowsTx clears everything owned by path except the file row itself.
func deleteFileRowsTx(tx *sql.Tx, path string) error {
	for _, q := range []string{
		"DELETE FROM symbols WHERE file = ?",
		"DELETE FROM refs WHERE file = ?",
		"DELETE FROM edges WHERE from_file = ?",
	} {
		if _, err := tx.Exec(q, path); err != nil {
			return err
		}
	}
	return nil
}

func insertSymbolTx(tx *sql.Tx, path string, sym Symbol) error {
	_, err := tx.Exec(
		`INSERT INTO symbols (file, name, kind, start_byte, end_byte, visibility, container, body_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		path, sym.Name, sym.Kind, sym.Start, sym.End, sym.Visibility, sym.Container, sym.BodyHash,
	)
	return err
}

func insertReferenceTx(tx *sql.Tx, path string, ref Reference) error {
	_, err := tx.Exec(
		"INSERT INTO refs (file, name, start_byte, end_byte) VALUES (?, ?, ?, ?)",
		path, ref.Name, ref.Start, ref.End,
	)
	return err
}

func insertEdgeTx(tx *sql.Tx, path string, e Edge) error {
	kind := e.Kind
	if kind == "" {
		kind = EdgeImport
	}
	_, err := tx.Exec(
		"INSERT OR IGNORE INTO edges (from_file, to_file, kind) VALUES (?, ?, ?)",
		path, e.To, kind,
	)
	return err
}

func touchTx(tx *sql.Tx, at time.Time) error {
	_, err := tx.Exec(
		`INSERT INTO meta (key, value) VALUES ('last_updated', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		at.UTC().Format(time.RFC3339Nano),
	)
	return err
}
