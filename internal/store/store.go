package store

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SchemaVersion is bumped whenever the table layout changes. A database
// written with a different version must be rebuilt.
const SchemaVersion = 4

// ErrSchemaMismatch is returned by Open when the database was written by an
// incompatible schema version.
var ErrSchemaMismatch = errors.New("index schema version mismatch")

// Store is the SQLite-backed index. Reads may be issued from any goroutine;
// mutations should go through a Writer so there is only ever one in flight.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, &StorageError{Op: "open", Path: dbPath, Err: err}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &StorageError{Op: "ping", Path: dbPath, Err: err}
	}
	return &Store{db: db, path: dbPath}, nil
}

// Open opens the database, creates missing tables and verifies the schema
// version. On mismatch the store is closed and ErrSchemaMismatch returned.
func Open(dbPath string) (*Store, error) {
	s, err := NewStore(dbPath)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, err
	}
	v, err := s.SchemaVersion()
	if err != nil {
		s.Close()
		return nil, err
	}
	if v != SchemaVersion {
		s.Close()
		return nil, fmt.Errorf("%s has version %d, want %d: %w", dbPath, v, SchemaVersion, ErrSchemaMismatch)
	}
	return s, nil
}

// OpenReadOnly opens an existing database for reading only. It never creates
// tables or takes the write lock, so it does not wait on a writer holding the
// database. A database without the current schema yields ErrSchemaMismatch.
func OpenReadOnly(dbPath string) (*Store, error) {
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return nil, &StorageError{Op: "open", Path: dbPath, Err: err}
	}
	p := filepath.ToSlash(abs)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	dsn := (&url.URL{Scheme: "file", Path: p, RawQuery: "mode=ro&_busy_timeout=30000"}).String()
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, &StorageError{Op: "open", Path: dbPath, Err: err}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &StorageError{Op: "ping", Path: dbPath, Err: err}
	}
	s := &Store{db: db, path: dbPath}

	var tables int
	if err := db.QueryRow("SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'meta'").Scan(&tables); err != nil {
		s.Close()
		return nil, &StorageError{Op: "read schema", Path: dbPath, Err: err}
	}
	v := 0
	if tables > 0 {
		if v, err = s.SchemaVersion(); err != nil {
			s.Close()
			return nil, err
		}
	}
	if v != SchemaVersion {
		s.Close()
		return nil, fmt.Errorf("%s has version %d, want %d: %w", dbPath, v, SchemaVersion, ErrSchemaMismatch)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Migrate creates all tables and indexes and stamps the schema version on a
// fresh database. Idempotent.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return &StorageError{Op: "migrate", Path: s.path, Err: err}
	}
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO meta (key, value) VALUES ('schema_version', ?)",
		strconv.Itoa(SchemaVersion),
	)
	if err != nil {
		return &StorageError{Op: "migrate", Path: s.path, Err: err}
	}
	return nil
}

// SchemaVersion returns the version recorded in the database.
func (s *Store) SchemaVersion() (int, error) {
	raw, err := s.meta("schema_version")
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &StorageError{Op: "schema version", Path: s.path, Err: err}
	}
	return v, nil
}

func (s *Store) meta(key string) (string, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", &StorageError{Op: "read meta " + key, Path: s.path, Err: err}
	}
	return v, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS meta (
  key             TEXT PRIMARY KEY,
  value           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS files (
  path            TEXT PRIMARY KEY,
  language        TEXT NOT NULL,
  hash            TEXT NOT NULL,
  parse_ok        BOOLEAN NOT NULL DEFAULT TRUE,
  parse_error     TEXT NOT NULL DEFAULT '',
  last_indexed    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS symbols (
  id              INTEGER PRIMARY KEY,
  file            TEXT NOT NULL REFERENCES files(path) ON DELETE CASCADE,
  name            TEXT NOT NULL,
  kind            TEXT NOT NULL,
  start_byte      INTEGER NOT NULL,
  end_byte        INTEGER NOT NULL,
  visibility      TEXT NOT NULL DEFAULT '',
  container       TEXT NOT NULL DEFAULT '',
  body_hash       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS refs (
  id              INTEGER PRIMARY KEY,
  file            TEXT NOT NULL REFERENCES files(path) ON DELETE CASCADE,
  name            TEXT NOT NULL,
  start_byte      INTEGER NOT NULL,
  end_byte        INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS edges (
  from_file       TEXT NOT NULL REFERENCES files(path) ON DELETE CASCADE,
  to_file         TEXT NOT NULL,
  kind            TEXT NOT NULL,
  PRIMARY KEY (from_file, to_file, kind)
);

CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(file, start_byte);
CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
CREATE INDEX IF NOT EXISTS idx_symbols_kind ON symbols(kind);
CREATE INDEX IF NOT EXISTS idx_symbols_body ON symbols(body_hash) WHERE body_hash != '';
CREATE INDEX IF NOT EXISTS idx_refs_name ON refs(name);
CREATE INDEX IF NOT EXISTS idx_refs_file ON refs(file, start_byte);
CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(to_file);
`
