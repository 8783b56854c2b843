package store

import (
	"fmt"
	"time"
)

// File is one indexed source file, keyed by its normalized path.
type File struct {
	Path        string
	Language    string
	Hash        string
	ParseOK     bool
	ParseError  string
	LastIndexed time.Time
}

// Symbol is a named declaration located by byte offsets in its file.
type Symbol struct {
	File       string
	Name       string
	Kind       string
	Start      int
	End        int
	Visibility string
	Container  string
	// BodyHash is HashBody of the declaration's source. Empty for bodies
	// too small to be worth comparing.
	BodyHash string
}

// ID returns the stable identifier "path#start-end".
func (s Symbol) ID() string {
	return fmt.Sprintf("%s#%d-%d", s.File, s.Start, s.End)
}

// Contains reports whether offset falls inside the symbol's byte range.
func (s Symbol) Contains(offset int) bool {
	return offset >= s.Start && offset <= s.End
}

// Reference is an identifier occurrence that is not a declaration.
type Reference struct {
	File  string
	Name  string
	Start int
	End   int
}

// Edge kinds.
const (
	EdgeImport  = "import"
	EdgeInclude = "include"
	EdgeScript  = "script"
)

// Edge is a directed dependency from one file to another. To may name a file
// that is not indexed.
type Edge struct {
	From string
	To   string
	Kind string
}

// FileIndex is everything recorded for one file. UpsertFile replaces the
// previous FileIndex for the same path as a unit.
type FileIndex struct {
	File       File
	Symbols    []Symbol
	References []Reference
	Edges      []Edge
}

// SymbolFilter narrows ListSymbols. Zero-valued fields do not filter.
type SymbolFilter struct {
	Name  string
	Kind  string
	File  string
	Limit int
	// Offset skips that many matches before Limit applies.
	Offset int
}

// ParseFailure records a file whose extraction failed.
type ParseFailure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Stats is a snapshot of the index, recomputed from stored rows on every call.
type Stats struct {
	Files         FileStats      `json:"files"`
	Symbols       SymbolStats    `json:"symbols"`
	Edges         int            `json:"edges"`
	Index         IndexInfo      `json:"index"`
	ParseFailures []ParseFailure `json:"parse_failures"`
}

type FileStats struct {
	Total      int            `json:"total"`
	ByLanguage map[string]int `json:"by_language"`
}

type SymbolStats struct {
	Total  int            `json:"total"`
	ByKind map[string]int `json:"by_kind"`
}

type IndexInfo struct {
	Path          string     `json:"path"`
	SizeBytes     int64      `json:"size_bytes"`
	LastUpdated   *time.Time `json:"last_updated,omitempty"`
	SchemaVersion int        `json:"schema_version"`
}
