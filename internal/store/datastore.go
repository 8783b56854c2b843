package store

// Reader is the read path over the index used by the graph engine and the
// query layer.
type Reader interface {
	FileByPath(path string) (*File, error)
	AllFiles() ([]*File, error)
	GetFileDependencies(path string) ([]Edge, error)
	GetDependents(path string) ([]string, error)
	ListSymbols(f SymbolFilter) ([]Symbol, error)
	SymbolsAt(path string, offset int) ([]Symbol, error)
	SymbolsByName(name string) ([]Symbol, error)
	SymbolsInFiles(name string, files []string) ([]Symbol, error)
	ReferenceAt(path string, offset int) (*Reference, error)
	ReferencesInFiles(name string, files []string) ([]Reference, error)
	ReferencesByName(name string) ([]Reference, error)
	DuplicateGroups(f DuplicateFilter) ([]DuplicateGroup, error)
	GetIndexStats() (*Stats, error)
}

// Mutator is the write side. Only the Writer goroutine should call it.
type Mutator interface {
	UpsertFile(fi FileIndex) error
	RemoveFile(path string) error
}

// Compile-time interface checks.
var (
	_ Reader  = (*Store)(nil)
	_ Mutator = (*Store)(nil)
)
