package trellis

import "github.com/jward/trellis/internal/store"

// Public aliases for the store types that appear in the Engine and
// QueryBuilder API.

type Store = store.Store
type Symbol = store.Symbol
type File = store.File
type Edge = store.Edge
type Reference = store.Reference
type SymbolFilter = store.SymbolFilter
type Stats = store.Stats
type ParseFailure = store.ParseFailure
type DuplicateFilter = store.DuplicateFilter

// FileState is where a file stands in the incremental indexer.
type FileState int

const (
	// StateUnseen: never indexed.
	StateUnseen FileState = iota
	// StateIndexed: stored record matches the last content seen.
	StateIndexed
	// StateStale: a dependency changed and the file awaits re-validation.
	StateStale
	// StateError: the last extraction failed; a parse failure is recorded.
	StateError
)

func (s FileState) String() string {
	switch s {
	case StateUnseen:
		return "unseen"
	case StateIndexed:
		return "indexed"
	case StateStale:
		return "stale"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Result describes what ReindexFile did.
type Result struct {
	Path string
	// Changed is true when a new record was written.
	Changed bool
	// Skipped is true when the path is ignored or has no extractor.
	Skipped bool
	// ParseErr is set when extraction failed and a parse failure was stored.
	ParseErr error
}

// BuildSummary counts the work done by BuildFullIndex.
type BuildSummary struct {
	Discovered int
	Indexed    int
	Unchanged  int
	Failed     int
	Removed    int
}
