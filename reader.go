package trellis

import (
	"fmt"
	"path/filepath"

	"github.com/jward/trellis/internal/store"
)

// Index is a read-only handle on an existing index for processes that only
// answer queries. It never migrates the schema or starts a writer, so it
// keeps working while a daemon is writing.
type Index struct {
	store *store.Store
	query *QueryBuilder
}

// OpenIndex opens the index at dbPath for the workspace at root without
// write access. An index written with another schema version yields an
// error wrapping ErrSchemaMismatch.
func OpenIndex(root, dbPath string) (*Index, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("trellis: resolve root: %w", err)
	}
	s, err := store.OpenReadOnly(dbPath)
	if err != nil {
		return nil, fmt.Errorf("trellis: open index: %w", err)
	}
	return &Index{store: s, query: NewQueryBuilder(absRoot, s)}, nil
}

// Query returns the QueryBuilder over the index.
func (i *Index) Query() *QueryBuilder { return i.query }

// Store returns the underlying Store for direct reads.
func (i *Index) Store() *Store { return i.store }

// Close closes the index.
func (i *Index) Close() error { return i.store.Close() }
