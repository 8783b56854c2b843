// Package ignore decides which workspace paths the indexer and watcher skip.
package ignore

import (
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/denormal/go-gitignore"
)

// IgnoreFiles are read from the workspace root, in order.
var IgnoreFiles = []string{".gitignore", ".trellisignore"}

// SkipDirs are directory names never descended into.
var SkipDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	".trellis":     true,
	"node_modules": true,
	"vendor":       true,
	"target":       true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
}

// Options configures a Matcher.
type Options struct {
	Root string
	// Include, when non-empty, restricts indexing to files matching at least
	// one doublestar pattern.
	Include []string
	// Exclude drops files and directories matching any doublestar pattern.
	Exclude []string
}

// Matcher combines built-in skip directories, ignore files found at the root,
// and include/exclude globs. Paths are workspace keys. Safe for concurrent
// use; Reload swaps the ignore files under a write lock.
type Matcher struct {
	mu      sync.RWMutex
	root    string
	include []string
	exclude []string
	files   []gitignore.GitIgnore
}

// New builds a Matcher and loads ignore files from opts.Root.
func New(opts Options) (*Matcher, error) {
	for _, p := range append(append([]string{}, opts.Include...), opts.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, &PatternError{Pattern: p}
		}
	}
	m := &Matcher{
		root:    opts.Root,
		include: opts.Include,
		exclude: opts.Exclude,
	}
	m.Reload()
	return m, nil
}

// PatternError reports a malformed include or exclude glob.
type PatternError struct {
	Pattern string
}

func (e *PatternError) Error() string {
	return "invalid glob pattern " + `"` + e.Pattern + `"`
}

// Reload re-reads the ignore files from disk.
func (m *Matcher) Reload() {
	var files []gitignore.GitIgnore
	for _, name := range IgnoreFiles {
		if gi := load(filepath.Join(m.root, name), m.root); gi != nil {
			files = append(files, gi)
		}
	}
	m.mu.Lock()
	m.files = files
	m.mu.Unlock()
}

// IsIgnoreFile reports whether key is one of the root ignore files, so a
// watcher knows to call Reload.
func IsIgnoreFile(key string) bool {
	for _, name := range IgnoreFiles {
		if key == name {
			return true
		}
	}
	return false
}

// SkipDir reports whether the directory key should not be traversed.
func (m *Matcher) SkipDir(key string) bool {
	if key == "" || key == "." {
		return false
	}
	base := path.Base(key)
	if SkipDirs[base] || (strings.HasPrefix(base, ".") && len(base) > 1) {
		return true
	}
	return m.ignored(key, true)
}

// SkipFile reports whether the file key should not be indexed. It checks
// every ancestor directory too, since watcher events arrive for files whose
// directories were never walked.
func (m *Matcher) SkipFile(key string) bool {
	for dir := path.Dir(key); dir != "." && dir != "/"; dir = path.Dir(dir) {
		if m.SkipDir(dir) {
			return true
		}
	}
	if m.ignored(key, false) {
		return true
	}
	if len(m.include) == 0 {
		return false
	}
	for _, p := range m.include {
		if ok, _ := doublestar.Match(p, key); ok {
			return false
		}
	}
	return true
}

func (m *Matcher) ignored(key string, isDir bool) bool {
	for _, p := range m.exclude {
		if ok, _ := doublestar.Match(p, key); ok {
			return true
		}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, gi := range m.files {
		if match := gi.Relative(key, isDir); match != nil && match.Ignore() {
			return true
		}
	}
	return false
}

func load(file, base string) gitignore.GitIgnore {
	f, err := os.Open(file)
	if err != nil {
		return nil
	}
	defer f.Close()
	return gitignore.New(f, base, nil)
}
