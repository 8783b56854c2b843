package extract

import (
	"bufio"
	"bytes"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/jward/trellis/internal/pathnorm"
)

// Workspace answers the filesystem questions import resolution needs.
// All paths are workspace keys.
type Workspace interface {
	Exists(key string) bool
	FilesIn(dir string) []string
	ModulePath() string
}

// DirWorkspace is a Workspace backed by the directory tree at Root.
type DirWorkspace struct {
	Root string

	modOnce sync.Once
	mod     string
}

// NewDirWorkspace returns a Workspace rooted at root.
func NewDirWorkspace(root string) *DirWorkspace {
	return &DirWorkspace{Root: root}
}

// Exists reports whether key names a regular file.
func (w *DirWorkspace) Exists(key string) bool {
	info, err := os.Stat(pathnorm.Abs(w.Root, key))
	return err == nil && !info.IsDir()
}

// FilesIn returns the keys of the regular files directly inside dir, sorted.
func (w *DirWorkspace) FilesIn(dir string) []string {
	entries, err := os.ReadDir(pathnorm.Abs(w.Root, dir))
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		out = append(out, pathnorm.Key(path.Join(dir, e.Name())))
	}
	sort.Strings(out)
	return out
}

// ModulePath returns the module path declared in the root go.mod, or "".
func (w *DirWorkspace) ModulePath() string {
	w.modOnce.Do(func() {
		data, err := os.ReadFile(pathnorm.Abs(w.Root, "go.mod"))
		if err != nil {
			return
		}
		w.mod = parseModulePath(data)
	})
	return w.mod
}

func parseModulePath(gomod []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(gomod))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if rest, ok := strings.CutPrefix(line, "module"); ok && rest != "" && (rest[0] == ' ' || rest[0] == '\t') {
			return strings.Trim(strings.TrimSpace(rest), `"`)
		}
	}
	return ""
}

// firstExisting returns the first candidate that exists in ws.
func firstExisting(ws Workspace, candidates ...string) (string, bool) {
	for _, c := range candidates {
		if ws.Exists(c) {
			return c, true
		}
	}
	return "", false
}
