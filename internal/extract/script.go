package extract

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"

	"github.com/jward/trellis/internal/pathnorm"
)

// ScriptExtractor runs a Risor script per file. The script sees two globals,
// path and content, and reports what it finds through host functions:
//
//	emit_symbol({"name": ..., "kind": ..., "start": ..., "end": ...,
//	             "visibility": ..., "container": ...})
//	emit_reference(name, start, end)
//	emit_import(target)
//
// It may also parse content with any built-in grammar via parse_src and
// walk the tree with node_text, node_child and query.
type ScriptExtractor struct {
	language string
	exts     []string
	source   string
	label    string
	dir      string
}

// NewScriptExtractor returns an extractor running source for files with the
// given extensions.
func NewScriptExtractor(language string, exts []string, source string) *ScriptExtractor {
	return &ScriptExtractor{language: language, exts: exts, source: source, label: "<inline>"}
}

// LoadScript reads a .risor file from disk.
func LoadScript(language string, exts []string, scriptPath string) (*ScriptExtractor, error) {
	data, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("loading script %s: %w", scriptPath, err)
	}
	return &ScriptExtractor{
		language: language,
		exts:     exts,
		source:   string(data),
		label:    scriptPath,
		dir:      filepath.Dir(scriptPath),
	}, nil
}

// LoadScriptDir loads every <language>.risor file in dir. Files starting
// with an underscore are helper modules for import and are skipped. The extensions a
// script handles come from exts, keyed by language; a language without an
// entry handles "."+language.
func LoadScriptDir(dir string, exts map[string][]string) ([]*ScriptExtractor, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.risor"))
	if err != nil {
		return nil, fmt.Errorf("listing scripts in %s: %w", dir, err)
	}
	var out []*ScriptExtractor
	for _, m := range matches {
		lang := strings.TrimSuffix(filepath.Base(m), ".risor")
		if strings.HasPrefix(lang, "_") {
			continue
		}
		e := exts[lang]
		if len(e) == 0 {
			e = []string{"." + lang}
		}
		se, err := LoadScript(lang, e, m)
		if err != nil {
			return nil, err
		}
		out = append(out, se)
	}
	return out, nil
}

func (s *ScriptExtractor) Language() string     { return s.language }
func (s *ScriptExtractor) Extensions() []string { return s.exts }

// Resolve treats targets as paths: relative ones against the importing file,
// everything else against the workspace root.
func (s *ScriptExtractor) Resolve(from string, imp Import, ws Workspace) []string {
	t := imp.Target
	if strings.HasPrefix(t, "./") || strings.HasPrefix(t, "../") {
		return []string{pathnorm.Resolve(from, t)}
	}
	key := pathnorm.Key(strings.TrimPrefix(t, "/"))
	if ws.Exists(key) || path.Ext(key) != "" {
		return []string{key}
	}
	return nil
}

func (s *ScriptExtractor) Extract(ctx context.Context, filePath string, content []byte) (*Result, error) {
	c := &collector{res: &Result{}, size: len(content)}
	sources := newSourceStore()
	defer sources.close()

	globals := map[string]any{
		"path":           filePath,
		"content":        string(content),
		"emit_symbol":    c.emitSymbolFn(),
		"emit_reference": c.emitReferenceFn(),
		"emit_import":    c.emitImportFn(),
		"parse_src":      makeParseSrcFn(sources),
		"node_text":      makeNodeTextFn(sources),
		"node_child":     makeNodeChildFn(),
		"query":          makeQueryFn(sources),
	}
	var opts []risor.Option
	names := make([]string, 0, len(globals))
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
		names = append(names, name)
	}
	// Scripts loaded from disk may import sibling .risor modules.
	if s.dir != "" {
		opts = append(opts, risor.WithImporter(importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: names,
			SourceDir:   s.dir,
			Extensions:  []string{".risor"},
		})))
	}

	if _, err := risor.Eval(ctx, s.source, opts...); err != nil {
		return nil, &ExtractionError{Path: filePath, Err: fmt.Errorf("script %s: %w", s.label, err)}
	}
	return c.result(), nil
}

// collector accumulates host-function calls from one script run.
type collector struct {
	mu   sync.Mutex
	res  *Result
	size int
}

func (c *collector) result() *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.res.Imports {
		c.res.Imports[i].Kind = "script"
	}
	return c.res
}

func (c *collector) checkRange(start, end int) error {
	if start < 0 || end < start || end > c.size {
		return fmt.Errorf("range %d-%d outside content of %d bytes", start, end, c.size)
	}
	return nil
}

func (c *collector) emitSymbolFn() *object.Builtin {
	return object.NewBuiltin("emit_symbol", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("emit_symbol", 1, len(args))
		}
		m, err := extractMap(args[0])
		if err != nil {
			return object.Errorf("emit_symbol: %v", err)
		}
		sym := Symbol{
			Name:       getString(m, "name"),
			Kind:       getStringDefault(m, "kind", KindFunction),
			Start:      getInt(m, "start"),
			End:        getInt(m, "end"),
			Visibility: getString(m, "visibility"),
			Container:  getString(m, "container"),
		}
		if sym.Name == "" {
			return object.Errorf("emit_symbol: name is required")
		}
		if err := c.checkRange(sym.Start, sym.End); err != nil {
			return object.Errorf("emit_symbol %q: %v", sym.Name, err)
		}
		c.mu.Lock()
		c.res.Symbols = append(c.res.Symbols, sym)
		c.mu.Unlock()
		return object.Nil
	})
}

func (c *collector) emitReferenceFn() *object.Builtin {
	return object.NewBuiltin("emit_reference", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 3 {
			return object.NewArgsError("emit_reference", 3, len(args))
		}
		name, err := toString(args[0])
		if err != nil {
			return object.Errorf("emit_reference: name: %v", err)
		}
		start, err := toInt64(args[1])
		if err != nil {
			return object.Errorf("emit_reference: start: %v", err)
		}
		end, err := toInt64(args[2])
		if err != nil {
			return object.Errorf("emit_reference: end: %v", err)
		}
		if err := c.checkRange(int(start), int(end)); err != nil {
			return object.Errorf("emit_reference %q: %v", name, err)
		}
		c.mu.Lock()
		c.res.References = append(c.res.References, Reference{Name: name, Start: int(start), End: int(end)})
		c.mu.Unlock()
		return object.Nil
	})
}

func (c *collector) emitImportFn() *object.Builtin {
	return object.NewBuiltin("emit_import", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("emit_import", 1, len(args))
		}
		target, err := toString(args[0])
		if err != nil {
			return object.Errorf("emit_import: %v", err)
		}
		c.mu.Lock()
		c.res.Imports = append(c.res.Imports, Import{Target: target})
		c.mu.Unlock()
		return object.Nil
	})
}

// --- Map extraction helpers ---

func extractMap(obj object.Object) (map[string]object.Object, error) {
	m, ok := obj.(*object.Map)
	if !ok {
		return nil, fmt.Errorf("expected map, got %s", obj.Type())
	}
	return m.Value(), nil
}

func getString(m map[string]object.Object, key string) string {
	if s, ok := m[key].(*object.String); ok {
		return s.Value()
	}
	return ""
}

func getStringDefault(m map[string]object.Object, key, def string) string {
	if v := getString(m, key); v != "" {
		return v
	}
	return def
}

func getInt(m map[string]object.Object, key string) int {
	v, ok := m[key]
	if !ok {
		return 0
	}
	n, err := toInt64(v)
	if err != nil {
		return 0
	}
	return int(n)
}

func toInt64(obj object.Object) (int64, error) {
	if i, ok := obj.(*object.Int); ok {
		return i.Value(), nil
	}
	if f, ok := obj.(*object.Float); ok {
		return int64(f.Value()), nil
	}
	return 0, fmt.Errorf("expected int, got %s", obj.Type())
}

func toString(obj object.Object) (string, error) {
	if s, ok := obj.(*object.String); ok {
		return s.Value(), nil
	}
	return "", fmt.Errorf("expected string, got %s", obj.Type())
}
