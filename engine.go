package trellis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/jward/trellis/internal/config"
	"github.com/jward/trellis/internal/extract"
	"github.com/jward/trellis/internal/graph"
	"github.com/jward/trellis/internal/ignore"
	"github.com/jward/trellis/internal/pathnorm"
	"github.com/jward/trellis/internal/store"
)

// Engine orchestrates the indexing pipeline for one workspace: file
// discovery, change detection, extraction, and serialized writes to the
// store. Reads go straight to the store.
type Engine struct {
	root      string
	store     *store.Store
	writer    *store.Writer
	graph     *graph.Engine
	registry  *extract.Registry
	workspace extract.Workspace
	matcher   *ignore.Matcher
	include   []string
	exclude   []string
	languages map[string]bool // nil means all languages
	workers   int
	logger    *slog.Logger

	scriptsDir string
	scriptExts map[string][]string

	mu     sync.Mutex
	states map[string]FileState
}

// Option configures an Engine.
type Option func(*Engine)

// WithLanguages restricts which languages the Engine will process.
func WithLanguages(languages ...string) Option {
	return func(e *Engine) {
		if len(languages) == 0 {
			e.languages = nil
			return
		}
		e.languages = make(map[string]bool, len(languages))
		for _, lang := range languages {
			e.languages[lang] = true
		}
	}
}

// WithWorkers sets the extraction pool size for BuildFullIndex.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRegistry replaces the built-in extractor registry.
func WithRegistry(r *extract.Registry) Option {
	return func(e *Engine) {
		e.registry = r
	}
}

// WithIgnore sets the matcher deciding which paths are skipped.
func WithIgnore(m *ignore.Matcher) Option {
	return func(e *Engine) {
		e.matcher = m
	}
}

// WithWorkspace overrides the filesystem view used for import resolution.
func WithWorkspace(ws extract.Workspace) Option {
	return func(e *Engine) {
		e.workspace = ws
	}
}

// WithScriptsDir registers every <language>.risor script in dir as an
// extractor. exts maps a script language to its file extensions.
func WithScriptsDir(dir string, exts map[string][]string) Option {
	return func(e *Engine) {
		e.scriptsDir = dir
		e.scriptExts = exts
	}
}

// WithConfig applies the settings of a loaded config file.
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) {
		WithLanguages(cfg.Languages...)(e)
		WithWorkers(cfg.WorkerCount())(e)
		e.include, e.exclude = cfg.Include, cfg.Exclude
		if dir := cfg.ScriptsPath(e.root); dir != "" {
			WithScriptsDir(dir, cfg.ScriptExtensions)(e)
		}
	}
}

// New opens (creating if needed) the index at dbPath for the workspace at
// root. An index written with another schema version yields an error
// wrapping ErrSchemaMismatch; RemoveIndex then lets the caller start over.
func New(root, dbPath string, opts ...Option) (*Engine, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("trellis: resolve root: %w", err)
	}
	e := &Engine{
		root:    absRoot,
		workers: runtime.NumCPU(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		states:  make(map[string]FileState),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.registry == nil {
		e.registry = extract.DefaultRegistry()
	}
	if e.scriptsDir != "" {
		scripts, err := extract.LoadScriptDir(e.scriptsDir, e.scriptExts)
		if err != nil {
			return nil, &ConfigError{Field: "scripts_dir", Err: err}
		}
		for _, s := range scripts {
			e.registry.Register(s)
		}
	}
	if err := e.checkLanguages(); err != nil {
		return nil, err
	}
	if e.workspace == nil {
		e.workspace = extract.NewDirWorkspace(absRoot)
	}
	if e.matcher == nil {
		m, err := ignore.New(ignore.Options{Root: absRoot, Include: e.include, Exclude: e.exclude})
		if err != nil {
			return nil, &ConfigError{Field: "exclude", Err: err}
		}
		e.matcher = m
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, &StorageError{Op: "mkdir", Path: dbPath, Err: err}
	}
	s, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("trellis: open store: %w", err)
	}
	e.store = s
	e.writer = store.NewWriter(s)
	e.graph = graph.NewForStore(s)
	return e, nil
}

func (e *Engine) checkLanguages() error {
	if e.languages == nil {
		return nil
	}
	known := map[string]bool{}
	for _, l := range e.registry.Languages() {
		known[l] = true
	}
	for l := range e.languages {
		if !known[l] {
			return &ConfigError{Field: "languages", Err: fmt.Errorf("unknown language %q (known: %s)", l, strings.Join(e.registry.Languages(), ", "))}
		}
	}
	return nil
}

// RemoveIndex deletes the database at dbPath together with its WAL files.
func RemoveIndex(dbPath string) error {
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(dbPath + suffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("trellis: remove index: %w", err)
		}
	}
	return nil
}

// Close drains pending writes and closes the store.
func (e *Engine) Close() error {
	e.writer.Close()
	return e.store.Close()
}

// Root returns the absolute workspace root.
func (e *Engine) Root() string { return e.root }

// Store returns the underlying Store for direct reads.
func (e *Engine) Store() *Store { return e.store }

// Logger returns the engine's logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// Matcher returns the ignore rules in effect.
func (e *Engine) Matcher() *ignore.Matcher { return e.matcher }

// Query returns a QueryBuilder over the Engine's store and graph.
func (e *Engine) Query() *QueryBuilder {
	return &QueryBuilder{root: e.root, store: e.store, graph: e.graph}
}

// Key normalizes path, absolute or relative to the root, into a store key.
func (e *Engine) Key(path string) (string, error) {
	return pathnorm.Normalize(e.root, path)
}

// InvalidationSet returns every file transitively depending on path.
func (e *Engine) InvalidationSet(path string) ([]string, error) {
	key, err := e.Key(path)
	if err != nil {
		return nil, err
	}
	return e.graph.InvalidationSet(key)
}

// State reports the indexer state of path. Paths this Engine has not
// touched fall back to what the store holds.
func (e *Engine) State(path string) (FileState, error) {
	key, err := e.Key(path)
	if err != nil {
		return StateUnseen, err
	}
	e.mu.Lock()
	st, ok := e.states[key]
	e.mu.Unlock()
	if ok {
		return st, nil
	}
	f, err := e.store.FileByPath(key)
	if err != nil {
		return StateUnseen, err
	}
	switch {
	case f == nil:
		return StateUnseen, nil
	case !f.ParseOK:
		return StateError, nil
	default:
		return StateIndexed, nil
	}
}

func (e *Engine) setState(key string, st FileState) {
	e.mu.Lock()
	e.states[key] = st
	e.mu.Unlock()
}

// MarkStale records that key must be re-validated because something it
// depends on changed.
func (e *Engine) MarkStale(path string) {
	if key, err := e.Key(path); err == nil {
		e.setState(key, StateStale)
	}
}

// Indexable reports whether path would be indexed: not ignored, handled by a
// registered extractor, and in an enabled language.
func (e *Engine) Indexable(path string) bool {
	key, err := e.Key(path)
	if err != nil {
		return false
	}
	_, ok := e.extractorFor(key)
	return ok
}

func (e *Engine) extractorFor(key string) (extract.Extractor, bool) {
	if e.matcher.SkipFile(key) {
		return nil, false
	}
	ex, ok := e.registry.ForPath(key)
	if !ok {
		return nil, false
	}
	if e.languages != nil && !e.languages[ex.Language()] {
		return nil, false
	}
	return ex, true
}

// ReindexFile brings the stored record for path up to date with its content
// on disk. Unchanged content is a no-op unless force is set. Extraction
// failures are recorded as parse failures and reported in Result.ParseErr;
// the returned error is reserved for I/O and storage failures. Dependents
// are not touched.
func (e *Engine) ReindexFile(ctx context.Context, path string, force bool) (Result, error) {
	key, err := e.Key(path)
	if err != nil {
		return Result{}, err
	}
	return e.reindex(ctx, key, force)
}

func (e *Engine) reindex(ctx context.Context, key string, force bool) (Result, error) {
	res := Result{Path: key}
	ex, ok := e.extractorFor(key)
	if !ok {
		res.Skipped = true
		return res, nil
	}

	content, err := os.ReadFile(pathnorm.Abs(e.root, key))
	if err != nil {
		return res, fmt.Errorf("reindex %s: %w", key, err)
	}
	hash := store.HashContent(content)

	existing, err := e.store.FileByPath(key)
	if err != nil {
		return res, err
	}
	if !force && existing != nil && existing.Hash == hash {
		if existing.ParseOK {
			e.setState(key, StateIndexed)
		} else {
			e.setState(key, StateError)
		}
		return res, nil
	}

	fi, extractErr := e.extractFile(ctx, ex, key, content)
	fi.File.Hash = hash
	if extractErr != nil {
		e.logger.Warn("extraction failed", "path", key, "err", extractErr)
		res.ParseErr = extractErr
	}

	if err := e.writer.Upsert(ctx, fi); err != nil {
		e.setState(key, StateStale)
		return res, err
	}
	res.Changed = true
	if extractErr != nil {
		e.setState(key, StateError)
	} else {
		e.setState(key, StateIndexed)
	}
	e.logger.Debug("indexed", "path", key, "symbols", len(fi.Symbols), "edges", len(fi.Edges))
	return res, nil
}

// extractFile runs the extractor and resolves imports. On failure it returns
// a record carrying only the parse failure, so stale symbols and edges are
// dropped.
func (e *Engine) extractFile(ctx context.Context, ex extract.Extractor, key string, content []byte) (store.FileIndex, error) {
	fi := store.FileIndex{File: store.File{
		Path:        key,
		Language:    ex.Language(),
		ParseOK:     true,
		LastIndexed: time.Now().UTC(),
	}}

	result, err := ex.Extract(ctx, key, content)
	if err != nil {
		var exErr *extract.ExtractionError
		if !errors.As(err, &exErr) {
			err = &extract.ExtractionError{Path: key, Err: err}
		}
		fi.File.ParseOK = false
		fi.File.ParseError = err.Error()
		return fi, err
	}

	for _, s := range result.Symbols {
		fi.Symbols = append(fi.Symbols, store.Symbol{
			File:       key,
			Name:       s.Name,
			Kind:       s.Kind,
			Start:      s.Start,
			End:        s.End,
			Visibility: s.Visibility,
			Container:  s.Container,
			BodyHash:   store.HashBody(content, s.Start, s.End),
		})
	}
	for _, r := range result.References {
		fi.References = append(fi.References, store.Reference{File: key, Name: r.Name, Start: r.Start, End: r.End})
	}
	for _, ri := range extract.ResolveImports(ex, key, result, e.workspace) {
		fi.Edges = append(fi.Edges, store.Edge{From: key, To: ri.To, Kind: ri.Kind})
	}
	return fi, nil
}

// RemoveFile deletes path's record, symbols, references and outgoing edges.
// Edges from other files into path stay, now dangling.
func (e *Engine) RemoveFile(ctx context.Context, path string) error {
	key, err := e.Key(path)
	if err != nil {
		return err
	}
	if err := e.writer.Remove(ctx, key); err != nil {
		return err
	}
	e.mu.Lock()
	delete(e.states, key)
	e.mu.Unlock()
	e.logger.Debug("removed", "path", key)
	return nil
}

// discover lists indexable files under the root as keys. Inside a git
// repository it uses git ls-files so .gitignore and git's global excludes
// apply; otherwise it walks the tree.
func (e *Engine) discover(ctx context.Context) ([]string, error) {
	keys, err := e.gitListFiles(ctx)
	if err != nil {
		e.logger.Debug("git ls-files unavailable, walking", "err", err)
		keys, err = e.walkListFiles()
		if err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// gitListFiles uses git ls-files to discover tracked and untracked (but not
// ignored) files.
func (e *Engine) gitListFiles(ctx context.Context) ([]string, error) {
	lines, err := gitLines(ctx, e.root, "ls-files", "--cached", "--others", "--exclude-standard")
	if err != nil {
		return nil, err
	}

	var keys []string
	for _, line := range lines {
		key := pathnorm.Key(line)
		if _, ok := e.extractorFor(key); !ok {
			continue
		}
		// Deleted but still in git's index.
		if _, err := os.Stat(pathnorm.Abs(e.root, key)); err != nil {
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// walkListFiles discovers files by walking the filesystem.
func (e *Engine) walkListFiles() ([]string, error) {
	var keys []string
	err := filepath.WalkDir(e.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		key, kerr := e.Key(path)
		if kerr != nil {
			return kerr
		}
		if d.IsDir() {
			if key != "." && e.matcher.SkipDir(key) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if _, ok := e.extractorFor(key); ok {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	return keys, nil
}
